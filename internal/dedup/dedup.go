// Package dedup classifies normalized transactions as unique or duplicate
// against three scopes: the current batch, the user's previous imports, and
// the user's existing ledger entries.
package dedup

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-import/internal/domain"
)

// DefaultDateVariance absorbs bank posting-date drift between an alert or
// screenshot and the same transaction appearing later on a statement.
const DefaultDateVariance = 1

// Snapshot is a read-only view of the user's import history, computed fresh
// per job invocation and never cached across jobs.
type Snapshot struct {
	// PreviousHashes maps dedup hash to the id of the transaction that first
	// carried it, across all of the user's other jobs.
	PreviousHashes map[string]string
	// Expenses are the user's existing ledger entries.
	Expenses []*domain.Expense
}

// SnapshotSource loads a dedup snapshot for one user, excluding the job being
// processed.
type SnapshotSource interface {
	DedupSnapshot(ctx context.Context, userID, excludeJobID string) (*Snapshot, error)
}

// Result is the classification for a single transaction.
type Result struct {
	Transaction   *domain.ParsedTransaction
	IsDuplicate   bool
	DuplicateType domain.DuplicateType
	DuplicateOfID string
}

// Engine applies the three duplicate checks in strict precedence order.
type Engine struct {
	src SnapshotSource
	// varianceDays is the +/- window for existing-expense date matching.
	varianceDays int
}

// NewEngine creates an Engine with the given snapshot source. varianceDays <= 0
// falls back to DefaultDateVariance.
func NewEngine(src SnapshotSource, varianceDays int) *Engine {
	if varianceDays <= 0 {
		varianceDays = DefaultDateVariance
	}
	return &Engine{src: src, varianceDays: varianceDays}
}

// CheckBatch classifies each transaction. Checks short-circuit in order:
// same_batch, then previous_import, then existing_expense. Transactions
// matching none remain PENDING.
func (e *Engine) CheckBatch(ctx context.Context, userID, jobID string, txs []*domain.ParsedTransaction) ([]Result, error) {
	snapshot, err := e.src.DedupSnapshot(ctx, userID, jobID)
	if err != nil {
		return nil, fmt.Errorf("CheckBatch: loading snapshot: %w", err)
	}

	seen := make(map[string]*domain.ParsedTransaction, len(txs))
	results := make([]Result, 0, len(txs))

	for _, tx := range txs {
		res := Result{Transaction: tx}

		switch {
		case seen[tx.DedupHash] != nil:
			res.IsDuplicate = true
			res.DuplicateType = domain.DupSameBatch
			res.DuplicateOfID = seen[tx.DedupHash].ID

		case snapshot.PreviousHashes[tx.DedupHash] != "":
			res.IsDuplicate = true
			res.DuplicateType = domain.DupPreviousImport
			res.DuplicateOfID = snapshot.PreviousHashes[tx.DedupHash]

		default:
			if exp := e.matchExpense(snapshot.Expenses, tx); exp != nil {
				res.IsDuplicate = true
				res.DuplicateType = domain.DupExistingExpense
				res.DuplicateOfID = exp.ID
			}
		}

		if !res.IsDuplicate {
			// Only unique transactions join the running set: a row that
			// duplicates tx A should point at A, not at another duplicate.
			// Consequence: when the first of two identical rows matches a
			// previous import, the second also classifies previous_import
			// (same original) rather than same_batch.
			seen[tx.DedupHash] = tx
		}
		results = append(results, res)
	}

	return results, nil
}

// matchExpense finds an existing ledger entry whose absolute amount matches
// exactly, whose date falls within the variance window, and whose merchant
// key matches when both sides have one.
func (e *Engine) matchExpense(expenses []*domain.Expense, tx *domain.ParsedTransaction) *domain.Expense {
	amount := decimal.NewFromFloat(math.Abs(tx.Amount))

	for _, exp := range expenses {
		if !exp.Amount.Equal(amount) {
			continue
		}
		if dayDelta(exp.Date, tx.Date) > e.varianceDays {
			continue
		}
		if exp.MerchantKey != "" && tx.MerchantKey != "" && exp.MerchantKey != tx.MerchantKey {
			continue
		}
		return exp
	}
	return nil
}

func dayDelta(a, b time.Time) int {
	da := a.Truncate(24 * time.Hour)
	db := b.Truncate(24 * time.Hour)
	delta := int(da.Sub(db).Hours() / 24)
	if delta < 0 {
		delta = -delta
	}
	return delta
}
