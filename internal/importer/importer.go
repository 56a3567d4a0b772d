// Package importer orchestrates the import pipeline: upload validation, job
// creation, the detached parse/normalize/dedupe task, review edits and
// confirmation, and stuck-job recovery.
package importer

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-import/internal/completion"
	"github.com/dvloznov/ledger-import/internal/dedup"
	"github.com/dvloznov/ledger-import/internal/domain"
	"github.com/dvloznov/ledger-import/internal/events"
	"github.com/dvloznov/ledger-import/internal/expense"
	"github.com/dvloznov/ledger-import/internal/filestore"
	"github.com/dvloznov/ledger-import/internal/logger"
	"github.com/dvloznov/ledger-import/internal/normalize"
	"github.com/dvloznov/ledger-import/internal/parser"
	"github.com/dvloznov/ledger-import/internal/store"
)

const (
	// MaxFileSize is the upload cap, enforced before a job exists.
	MaxFileSize = 10 << 20
	// MaxScreenshots bounds one screenshot batch.
	MaxScreenshots = 5

	// processTimeout caps the whole detached task; individual model calls
	// carry their own shorter timeouts.
	processTimeout = 10 * time.Minute

	// DefaultSweepInterval is how often the sweeper looks for stuck jobs.
	DefaultSweepInterval = 5 * time.Minute
	// DefaultStuckTimeout is how long a job may sit in PROCESSING before the
	// sweeper force-fails it.
	DefaultStuckTimeout = 30 * time.Minute
)

// Service exposes every import operation. One instance serves all users.
type Service struct {
	repo  store.Repository
	files filestore.Storage
	gen   completion.Generator
	rules *normalize.Rules
	eng   *dedup.Engine
	mat   *expense.Materializer
	bus   events.Bus
	log   zerolog.Logger
	now   func() time.Time

	// wg tracks detached parse tasks for graceful shutdown.
	wg sync.WaitGroup
}

// New creates the import service.
func New(repo store.Repository, files filestore.Storage, gen completion.Generator, rules *normalize.Rules, mat *expense.Materializer, bus events.Bus, log zerolog.Logger) *Service {
	return &Service{
		repo:  repo,
		files: files,
		gen:   gen,
		rules: rules,
		eng:   dedup.NewEngine(repo, dedup.DefaultDateVariance),
		mat:   mat,
		bus:   bus,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Wait blocks until all in-flight parse tasks finish. Called on shutdown.
func (s *Service) Wait() {
	s.wg.Wait()
}

// UploadStatement validates and accepts a PDF or CSV statement. The returned
// job is already PROCESSING; parsing continues in a detached task.
func (s *Service) UploadStatement(ctx context.Context, userID, fileName, contentType string, data []byte) (*domain.ImportJob, error) {
	if int64(len(data)) > MaxFileSize {
		return nil, fmt.Errorf("UploadStatement: %d bytes: %w", len(data), domain.ErrFileTooLarge)
	}

	source, err := statementSource(fileName, contentType)
	if err != nil {
		return nil, err
	}

	handle, err := s.files.Store(ctx, userID, fileName, contentType, data)
	if err != nil {
		return nil, fmt.Errorf("UploadStatement: %v: %w", err, domain.ErrStorage)
	}

	job := s.newJob(userID, source)
	job.FileName = fileName
	job.FileSize = int64(len(data))
	job.FileHandle = handle
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("UploadStatement: %w", err)
	}

	s.dispatch(job, parser.Input{FileName: fileName, ContentType: contentType, Data: data})
	return job, nil
}

// UploadScreenshots validates and accepts a batch of screenshots as one job.
func (s *Service) UploadScreenshots(ctx context.Context, userID string, shots []Screenshot) (*domain.ImportJob, error) {
	if len(shots) == 0 || len(shots) > MaxScreenshots {
		return nil, fmt.Errorf("UploadScreenshots: %d screenshots: %w", len(shots), domain.ErrInvalidFileType)
	}

	var total int64
	images := make([]completion.Image, 0, len(shots))
	for _, shot := range shots {
		if !isImageType(shot.ContentType) {
			return nil, fmt.Errorf("UploadScreenshots: %q: %w", shot.ContentType, domain.ErrInvalidFileType)
		}
		if int64(len(shot.Data)) > MaxFileSize {
			return nil, fmt.Errorf("UploadScreenshots: %s: %w", shot.FileName, domain.ErrFileTooLarge)
		}
		total += int64(len(shot.Data))
		images = append(images, completion.Image{Bytes: shot.Data, MIMEType: shot.ContentType})
	}

	handle, err := s.files.Store(ctx, userID, shots[0].FileName, shots[0].ContentType, shots[0].Data)
	if err != nil {
		return nil, fmt.Errorf("UploadScreenshots: %v: %w", err, domain.ErrStorage)
	}

	job := s.newJob(userID, domain.SourceScreenshot)
	job.FileName = shots[0].FileName
	job.FileSize = total
	job.FileHandle = handle
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("UploadScreenshots: %w", err)
	}

	s.dispatch(job, parser.Input{FileName: job.FileName, Images: images})
	return job, nil
}

// Screenshot is one image in a screenshot upload batch.
type Screenshot struct {
	FileName    string
	ContentType string
	Data        []byte
}

// ProcessEmailWebhook accepts a forwarded alert email. Email jobs carry no
// stored file; the body goes straight to the parse task.
func (s *Service) ProcessEmailWebhook(ctx context.Context, userID, subject, body string) (*domain.ImportJob, error) {
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("ProcessEmailWebhook: empty body: %w", domain.ErrParseFailure)
	}

	job := s.newJob(userID, domain.SourceEmailForward)
	job.FileName = subject
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("ProcessEmailWebhook: %w", err)
	}

	s.dispatch(job, parser.Input{FileName: subject, Data: []byte(body)})
	return job, nil
}

// GetJob returns one job owned by the user.
func (s *Service) GetJob(ctx context.Context, userID, jobID string) (*domain.ImportJob, error) {
	return s.repo.GetJob(ctx, userID, jobID)
}

// ListJobs returns the user's jobs, newest first.
func (s *Service) ListJobs(ctx context.Context, filter store.JobFilter) ([]*domain.ImportJob, error) {
	return s.repo.ListJobs(ctx, filter)
}

// ListTransactions returns the parsed transactions of one job.
func (s *Service) ListTransactions(ctx context.Context, userID, jobID string) ([]*domain.ParsedTransaction, error) {
	if _, err := s.repo.GetJob(ctx, userID, jobID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, userID, jobID)
}

// ConfirmTransactions materializes the given transactions into expenses.
func (s *Service) ConfirmTransactions(ctx context.Context, userID, jobID string, txIDs []string, categoryID string) (*expense.CreateResult, error) {
	return s.mat.CreateExpenses(ctx, userID, jobID, txIDs, categoryID)
}

func (s *Service) newJob(userID string, source domain.ImportSource) *domain.ImportJob {
	now := s.now()
	return &domain.ImportJob{
		ID:        uuid.New().String(),
		UserID:    userID,
		Source:    source,
		Status:    domain.JobProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func statementSource(fileName, contentType string) (domain.ImportSource, error) {
	ext := strings.ToLower(path.Ext(fileName))
	switch {
	case ext == ".csv" || strings.HasPrefix(contentType, "text/csv"):
		return domain.SourceStatementCSV, nil
	case ext == ".pdf" || contentType == "application/pdf":
		return domain.SourceStatementPDF, nil
	default:
		return "", fmt.Errorf("statementSource: %q (%s): %w", fileName, contentType, domain.ErrInvalidFileType)
	}
}

func isImageType(contentType string) bool {
	switch contentType {
	case "image/png", "image/jpeg", "image/webp":
		return true
	}
	return false
}

// dispatch runs the parse task in a detached goroutine. The request context
// is deliberately not inherited: the upload response returns immediately and
// the task owns its own deadline. The caller keeps its job pointer as the
// response snapshot, so the task works on a copy; the two must never share
// memory once this returns.
func (s *Service) dispatch(job *domain.ImportJob, in parser.Input) {
	task := *job
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()

		log := logger.WithJob(s.log, task.ID, task.UserID)
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("parse task panicked")
				s.markFailed(ctx, &task, fmt.Sprintf("internal error: %v", r))
			}
		}()

		s.process(ctx, log, &task, in)
	}()
}

func (s *Service) process(ctx context.Context, log zerolog.Logger, job *domain.ImportJob, in parser.Input) {
	p, err := parser.ForSource(job.Source, s.gen, log)
	if err != nil {
		s.markFailed(ctx, job, err.Error())
		return
	}

	result, err := p.Parse(ctx, in)
	if err != nil {
		log.Warn().Err(err).Msg("parse failed")
		s.markFailed(ctx, job, err.Error())
		return
	}
	job.RawModelOutput = result.RawModelOutput
	job.BankName = result.BankName
	job.StatementPeriod = result.StatementPeriod

	currency := result.Currency
	if currency == "" {
		currency = "NGN"
	}

	normalized := normalize.New(s.rules).Normalize(result.Transactions, currency)
	if len(normalized) == 0 {
		s.markFailed(ctx, job, "no transactions found")
		return
	}

	now := s.now()
	txs := make([]*domain.ParsedTransaction, 0, len(normalized))
	for i := range normalized {
		tx := normalized[i]
		tx.ID = uuid.New().String()
		tx.JobID = job.ID
		tx.UserID = job.UserID
		tx.CreatedAt = now
		tx.UpdatedAt = now
		txs = append(txs, &tx)
	}

	checks, err := s.eng.CheckBatch(ctx, job.UserID, job.ID, txs)
	if err != nil {
		s.markFailed(ctx, job, fmt.Sprintf("dedup failed: %v", err))
		return
	}

	duplicates := 0
	for _, res := range checks {
		if !res.IsDuplicate {
			continue
		}
		res.Transaction.Status = domain.TxDuplicate
		res.Transaction.DuplicateOfID = res.DuplicateOfID
		duplicates++
	}

	job.Status = domain.JobAwaitingReview
	job.TotalParsed = len(txs)
	job.Duplicates = duplicates
	job.UpdatedAt = s.now()

	if err := s.repo.SaveParseOutcome(ctx, job, txs); err != nil {
		log.Error().Err(err).Msg("persisting parse outcome failed")
		s.markFailed(ctx, job, fmt.Sprintf("persist failed: %v", err))
		return
	}

	log.Info().
		Int("parsed", len(txs)).
		Int("duplicates", duplicates).
		Str("bank", job.BankName).
		Msg("import parsed")

	if job.Source == domain.SourceEmailForward {
		s.bus.Publish(ctx, events.Event{
			Name:    events.EmailImportCreated,
			UserID:  job.UserID,
			JobID:   job.ID,
			Payload: map[string]any{"total_parsed": job.TotalParsed},
		})
		s.mat.AutoConfirmEmail(ctx, job)
	}
}

// markFailed moves the job to FAILED. Failures are terminal; the original
// upload stays in the filestore for reprocessing by hand.
func (s *Service) markFailed(ctx context.Context, job *domain.ImportJob, message string) {
	now := s.now()
	job.Status = domain.JobFailed
	job.ErrorMessage = message
	job.UpdatedAt = now
	job.CompletedAt = &now

	if err := s.repo.UpdateJob(ctx, job); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("marking job failed")
	}
}
