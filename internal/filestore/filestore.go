// Package filestore persists uploaded source files (statements, screenshots,
// email payloads) and hands back opaque handles the rest of the system stores
// on the job record.
package filestore

import (
	"context"
	"time"
)

// Metadata describes a stored object.
type Metadata struct {
	Handle      string    `json:"handle"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// Storage is the blob storage used for original uploads. Handles are opaque
// to callers; only the implementation that issued a handle can resolve it.
type Storage interface {
	// Store writes the payload and returns its handle.
	Store(ctx context.Context, userID, fileName, contentType string, data []byte) (string, error)
	// Read returns the payload for a handle issued by Store.
	Read(ctx context.Context, handle string) ([]byte, error)
	// Delete removes the object. Deleting a missing handle is not an error.
	Delete(ctx context.Context, handle string) error
	// Exists reports whether the handle resolves to a stored object.
	Exists(ctx context.Context, handle string) (bool, error)
	// GetMetadata returns object attributes without the payload.
	GetMetadata(ctx context.Context, handle string) (*Metadata, error)
}
