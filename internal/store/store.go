// Package store defines the persistence contract for import jobs, parsed
// transactions, expenses and categories. Two implementations exist: an
// in-memory store for tests and local development, and the BigQuery store
// used in production.
package store

import (
	"context"
	"time"

	"github.com/dvloznov/ledger-import/internal/dedup"
	"github.com/dvloznov/ledger-import/internal/domain"
)

// JobFilter narrows ListJobs. Zero values mean no constraint.
type JobFilter struct {
	UserID string
	Status domain.JobStatus
	Source domain.ImportSource
	Limit  int
}

// Repository is the full persistence surface. The two multi-row operations,
// SaveParseOutcome and Materialize, are atomic: other readers observe either
// none or all of their writes.
type Repository interface {
	CreateJob(ctx context.Context, job *domain.ImportJob) error
	GetJob(ctx context.Context, userID, jobID string) (*domain.ImportJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*domain.ImportJob, error)
	UpdateJob(ctx context.Context, job *domain.ImportJob) error
	// ListStuckJobs returns jobs still PROCESSING whose last update is older
	// than the cutoff. Used only by the sweeper.
	ListStuckJobs(ctx context.Context, cutoff time.Time) ([]*domain.ImportJob, error)

	// SaveParseOutcome persists the parsed batch together with the job's
	// transition out of PROCESSING in one atomic step.
	SaveParseOutcome(ctx context.Context, job *domain.ImportJob, txs []*domain.ParsedTransaction) error

	GetTransaction(ctx context.Context, userID, txID string) (*domain.ParsedTransaction, error)
	ListTransactions(ctx context.Context, userID, jobID string) ([]*domain.ParsedTransaction, error)
	UpdateTransaction(ctx context.Context, tx *domain.ParsedTransaction) error

	// Materialize creates the expenses, flips their source transactions to
	// CREATED and applies the job counter/status update in one atomic step.
	Materialize(ctx context.Context, job *domain.ImportJob, txs []*domain.ParsedTransaction, expenses []*domain.Expense) error

	ListExpenses(ctx context.Context, userID string) ([]*domain.Expense, error)
	GetCategory(ctx context.Context, id string) (*domain.Category, error)

	dedup.SnapshotSource
}
