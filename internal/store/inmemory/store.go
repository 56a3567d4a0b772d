// Package inmemory is the map-backed Repository used by tests and local
// development. All operations copy on read and write so callers never share
// memory with the store.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/ledger-import/internal/dedup"
	"github.com/dvloznov/ledger-import/internal/domain"
	"github.com/dvloznov/ledger-import/internal/store"
)

// Store implements store.Repository. A single mutex covers every table, which
// makes the two batch operations trivially atomic.
type Store struct {
	mu         sync.RWMutex
	jobs       map[string]*domain.ImportJob
	txs        map[string]*domain.ParsedTransaction
	expenses   map[string]*domain.Expense
	categories map[string]*domain.Category
}

// New creates an empty store seeded with the default categories, including
// the sentinel auto-confirmation category.
func New() *Store {
	s := &Store{
		jobs:       make(map[string]*domain.ImportJob),
		txs:        make(map[string]*domain.ParsedTransaction),
		expenses:   make(map[string]*domain.Expense),
		categories: make(map[string]*domain.Category),
	}
	for _, c := range []domain.Category{
		{ID: domain.AutoCategoryID, Name: "Uncategorized (auto)"},
		{ID: "subscriptions", Name: "Subscriptions"},
		{ID: "groceries", Name: "Groceries"},
		{ID: "transport", Name: "Transport"},
		{ID: "utilities", Name: "Utilities"},
	} {
		c := c
		s.categories[c.ID] = &c
	}
	return s
}

func (s *Store) CreateJob(ctx context.Context, job *domain.ImportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("CreateJob: job %s already exists", job.ID)
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *Store) GetJob(ctx context.Context, userID, jobID string) (*domain.ImportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok || job.UserID != userID {
		return nil, fmt.Errorf("GetJob: %s: %w", jobID, domain.ErrJobNotFound)
	}
	return cloneJob(job), nil
}

func (s *Store) ListJobs(ctx context.Context, filter store.JobFilter) ([]*domain.ImportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.ImportJob
	for _, job := range s.jobs {
		if filter.UserID != "" && job.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.Source != "" && job.Source != filter.Source {
			continue
		}
		out = append(out, cloneJob(job))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) UpdateJob(ctx context.Context, job *domain.ImportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return fmt.Errorf("UpdateJob: %s: %w", job.ID, domain.ErrJobNotFound)
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *Store) ListStuckJobs(ctx context.Context, cutoff time.Time) ([]*domain.ImportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.ImportJob
	for _, job := range s.jobs {
		if job.Status == domain.JobProcessing && job.UpdatedAt.Before(cutoff) {
			out = append(out, cloneJob(job))
		}
	}
	return out, nil
}

func (s *Store) SaveParseOutcome(ctx context.Context, job *domain.ImportJob, txs []*domain.ParsedTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return fmt.Errorf("SaveParseOutcome: %s: %w", job.ID, domain.ErrJobNotFound)
	}
	for _, tx := range txs {
		s.txs[tx.ID] = cloneTx(tx)
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, userID, txID string) (*domain.ParsedTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[txID]
	if !ok || tx.UserID != userID {
		return nil, fmt.Errorf("GetTransaction: %s: %w", txID, domain.ErrJobNotFound)
	}
	return cloneTx(tx), nil
}

func (s *Store) ListTransactions(ctx context.Context, userID, jobID string) ([]*domain.ParsedTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.ParsedTransaction
	for _, tx := range s.txs {
		if tx.UserID == userID && tx.JobID == jobID {
			out = append(out, cloneTx(tx))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, tx *domain.ParsedTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[tx.ID]; !ok {
		return fmt.Errorf("UpdateTransaction: %s: %w", tx.ID, domain.ErrJobNotFound)
	}
	s.txs[tx.ID] = cloneTx(tx)
	return nil
}

func (s *Store) Materialize(ctx context.Context, job *domain.ImportJob, txs []*domain.ParsedTransaction, expenses []*domain.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return fmt.Errorf("Materialize: %s: %w", job.ID, domain.ErrJobNotFound)
	}
	for _, exp := range expenses {
		s.expenses[exp.ID] = cloneExpense(exp)
	}
	for _, tx := range txs {
		s.txs[tx.ID] = cloneTx(tx)
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *Store) ListExpenses(ctx context.Context, userID string) ([]*domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Expense
	for _, exp := range s.expenses {
		if exp.UserID == userID {
			out = append(out, cloneExpense(exp))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	if !ok {
		return nil, fmt.Errorf("GetCategory: %s: %w", id, domain.ErrJobNotFound)
	}
	clone := *c
	return &clone, nil
}

// DedupSnapshot builds a fresh view of the user's other imports and existing
// expenses. Rejected transactions and duplicates do not seed hashes: a
// duplicate row points at an original that is already in the set, and a
// rejected row was declared not to belong to the user.
func (s *Store) DedupSnapshot(ctx context.Context, userID, excludeJobID string) (*dedup.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := &dedup.Snapshot{PreviousHashes: make(map[string]string)}
	for _, tx := range s.txs {
		if tx.UserID != userID || tx.JobID == excludeJobID {
			continue
		}
		if tx.Status == domain.TxRejected || tx.Status == domain.TxDuplicate {
			continue
		}
		if _, ok := snapshot.PreviousHashes[tx.DedupHash]; !ok {
			snapshot.PreviousHashes[tx.DedupHash] = tx.ID
		}
	}
	for _, exp := range s.expenses {
		if exp.UserID == userID {
			snapshot.Expenses = append(snapshot.Expenses, cloneExpense(exp))
		}
	}
	return snapshot, nil
}

func cloneJob(j *domain.ImportJob) *domain.ImportJob {
	clone := *j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		clone.CompletedAt = &t
	}
	return &clone
}

func cloneTx(t *domain.ParsedTransaction) *domain.ParsedTransaction {
	clone := *t
	return &clone
}

func cloneExpense(e *domain.Expense) *domain.Expense {
	clone := *e
	return &clone
}
