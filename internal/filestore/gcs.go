package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/dvloznov/ledger-import/internal/domain"
)

const uploadTimeout = 2 * time.Minute

// GCSStorage stores uploads in a GCS bucket. Handles are gs:// URIs so they
// remain resolvable if the bucket is ever inspected by hand. Assumes
// Application Default Credentials are configured.
type GCSStorage struct {
	client *storage.Client
	bucket string
}

// NewGCSStorage creates a GCS-backed store for the given bucket.
func NewGCSStorage(ctx context.Context, bucket string) (*GCSStorage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStorage: create storage client: %w", err)
	}
	return &GCSStorage{client: client, bucket: bucket}, nil
}

// Close releases the underlying client.
func (g *GCSStorage) Close() error {
	return g.client.Close()
}

func (g *GCSStorage) Store(ctx context.Context, userID, fileName, contentType string, data []byte) (string, error) {
	object := fmt.Sprintf("imports/%s/%s-%s", userID, uuid.New().String(), path.Base(fileName))

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Store: writing object %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Store: finalizing upload %s: %w", object, err)
	}

	return "gs://" + g.bucket + "/" + object, nil
}

func (g *GCSStorage) Read(ctx context.Context, handle string) ([]byte, error) {
	object, err := g.objectPath(handle)
	if err != nil {
		return nil, err
	}

	rc, err := g.client.Bucket(g.bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("Read: %s: %w", handle, domain.ErrStorage)
		}
		return nil, fmt.Errorf("Read: opening object %s: %w", object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Read: reading object %s: %w", object, err)
	}
	return data, nil
}

func (g *GCSStorage) Delete(ctx context.Context, handle string) error {
	object, err := g.objectPath(handle)
	if err != nil {
		return err
	}

	if err := g.client.Bucket(g.bucket).Object(object).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return fmt.Errorf("Delete: deleting object %s: %w", object, err)
	}
	return nil
}

func (g *GCSStorage) Exists(ctx context.Context, handle string) (bool, error) {
	object, err := g.objectPath(handle)
	if err != nil {
		return false, err
	}

	_, err = g.client.Bucket(g.bucket).Object(object).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("Exists: reading attrs %s: %w", object, err)
	}
	return true, nil
}

func (g *GCSStorage) GetMetadata(ctx context.Context, handle string) (*Metadata, error) {
	object, err := g.objectPath(handle)
	if err != nil {
		return nil, err
	}

	attrs, err := g.client.Bucket(g.bucket).Object(object).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("GetMetadata: %s: %w", handle, domain.ErrStorage)
		}
		return nil, fmt.Errorf("GetMetadata: reading attrs %s: %w", object, err)
	}

	return &Metadata{
		Handle:      handle,
		ContentType: attrs.ContentType,
		Size:        attrs.Size,
		CreatedAt:   attrs.Created,
	}, nil
}

// objectPath resolves a gs:// handle issued by this store back to an object
// path within the configured bucket.
func (g *GCSStorage) objectPath(handle string) (string, error) {
	prefix := "gs://" + g.bucket + "/"
	if !strings.HasPrefix(handle, prefix) {
		return "", fmt.Errorf("objectPath: invalid handle %q", handle)
	}
	return strings.TrimPrefix(handle, prefix), nil
}
