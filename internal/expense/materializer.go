// Package expense materializes reviewed transaction candidates into ledger
// entries. Materialization is the only way transactions reach the CREATED
// state and the only writer of expenses.
package expense

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-import/internal/domain"
	"github.com/dvloznov/ledger-import/internal/events"
	"github.com/dvloznov/ledger-import/internal/store"
)

// autoConfirmMinConfidence is the floor for auto-confirming an email import.
const autoConfirmMinConfidence = 0.7

// CreateResult reports what a materialization call did.
type CreateResult struct {
	ExpenseIDs []string `json:"expense_ids"`
	Created    int      `json:"created"`
	Skipped    int      `json:"skipped"`
}

// Materializer turns confirmed transactions into expenses.
type Materializer struct {
	repo    store.Repository
	catalog SubscriptionCatalog
	bus     events.Bus
	log     zerolog.Logger
	now     func() time.Time
}

// NewMaterializer creates a materializer.
func NewMaterializer(repo store.Repository, catalog SubscriptionCatalog, bus events.Bus, log zerolog.Logger) *Materializer {
	return &Materializer{
		repo:    repo,
		catalog: catalog,
		bus:     bus,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateExpenses materializes the given transactions of one job under the
// given category. Transactions already CREATED or classified DUPLICATE are
// skipped silently and counted; everything eligible is created, the source
// rows flip to CREATED and the job moves to COMPLETED, all in one atomic
// repository call.
func (m *Materializer) CreateExpenses(ctx context.Context, userID, jobID string, txIDs []string, categoryID string) (*CreateResult, error) {
	if _, err := m.repo.GetCategory(ctx, categoryID); err != nil {
		return nil, fmt.Errorf("CreateExpenses: category %q: %w", categoryID, domain.ErrConfirmation)
	}

	job, err := m.repo.GetJob(ctx, userID, jobID)
	if err != nil {
		return nil, fmt.Errorf("CreateExpenses: %w", err)
	}

	all, err := m.repo.ListTransactions(ctx, userID, jobID)
	if err != nil {
		return nil, fmt.Errorf("CreateExpenses: %w", err)
	}
	byID := make(map[string]*domain.ParsedTransaction, len(all))
	for _, tx := range all {
		byID[tx.ID] = tx
	}

	now := m.now()
	result := &CreateResult{}
	var flipped []*domain.ParsedTransaction
	var created []*domain.Expense

	for _, id := range txIDs {
		tx, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("CreateExpenses: transaction %s not in job %s: %w", id, jobID, domain.ErrConfirmation)
		}

		switch tx.Status {
		case domain.TxPending, domain.TxConfirmed:
		default:
			result.Skipped++
			continue
		}

		exp := m.buildExpense(tx, categoryID, now)
		tx.Status = domain.TxCreated
		tx.ExpenseID = exp.ID
		tx.UpdatedAt = now

		created = append(created, exp)
		flipped = append(flipped, tx)
		result.ExpenseIDs = append(result.ExpenseIDs, exp.ID)
	}

	if len(created) == 0 {
		return result, nil
	}

	job.Created += len(created)
	job.Status = domain.JobCompleted
	job.UpdatedAt = now
	job.CompletedAt = &now

	if err := m.repo.Materialize(ctx, job, flipped, created); err != nil {
		return nil, fmt.Errorf("CreateExpenses: %w", err)
	}
	result.Created = len(created)

	m.bus.Publish(ctx, events.Event{
		Name:    events.ExpensesCreated,
		UserID:  userID,
		JobID:   jobID,
		Payload: map[string]any{"expense_ids": result.ExpenseIDs},
	})

	m.log.Info().
		Str("job_id", jobID).
		Int("created", result.Created).
		Int("skipped", result.Skipped).
		Msg("expenses materialized")

	return result, nil
}

// expenseNamespace seeds the deterministic expense ids.
var expenseNamespace = uuid.MustParse("9f2f0c3a-7c31-4b8e-b1a4-2d6e8f5a0c11")

// ExpenseID derives the expense id from its source transaction id. A
// transaction materializes to the same expense id every time, so a replayed
// materialization (confirm retried after a partial write) collides with the
// existing row instead of minting a second ledger entry.
func ExpenseID(transactionID string) string {
	return uuid.NewSHA1(expenseNamespace, []byte(transactionID)).String()
}

func (m *Materializer) buildExpense(tx *domain.ParsedTransaction, categoryID string, now time.Time) *domain.Expense {
	return &domain.Expense{
		ID:                  ExpenseID(tx.ID),
		UserID:              tx.UserID,
		CategoryID:          categoryID,
		Amount:              decimal.NewFromFloat(math.Abs(tx.Amount)),
		Currency:            tx.Currency,
		Date:                tx.Date,
		Description:         tx.Description,
		Merchant:            tx.RawMerchant,
		MerchantKey:         tx.MerchantKey,
		IsRecurring:         m.catalog.IsKnownSubscription(tx.MerchantKey) || tx.IsRecurringGuess,
		SourceTransactionID: tx.ID,
		CreatedAt:           now,
	}
}

// AutoConfirmEmail applies the email auto-confirmation policy to a freshly
// parsed EMAIL_FORWARD job: when exactly one PENDING debit with confidence at
// or above the floor exists, it is materialized under the sentinel category.
// Any failure is logged and swallowed; the job stays reviewable either way.
func (m *Materializer) AutoConfirmEmail(ctx context.Context, job *domain.ImportJob) {
	if job.Source != domain.SourceEmailForward {
		return
	}

	txs, err := m.repo.ListTransactions(ctx, job.UserID, job.ID)
	if err != nil {
		m.log.Warn().Err(err).Str("job_id", job.ID).Msg("auto-confirm: listing transactions")
		return
	}

	var candidate *domain.ParsedTransaction
	for _, tx := range txs {
		if tx.Status != domain.TxPending || !tx.IsDebit() {
			continue
		}
		if tx.Confidence < autoConfirmMinConfidence {
			continue
		}
		if candidate != nil {
			// More than one eligible row: leave everything for review.
			return
		}
		candidate = tx
	}
	if candidate == nil {
		return
	}

	result, err := m.CreateExpenses(ctx, job.UserID, job.ID, []string{candidate.ID}, domain.AutoCategoryID)
	if err != nil {
		m.log.Warn().Err(err).Str("job_id", job.ID).Msg("auto-confirm failed")
		return
	}

	m.bus.Publish(ctx, events.Event{
		Name:    events.EmailAutoConfirmed,
		UserID:  job.UserID,
		JobID:   job.ID,
		Payload: map[string]any{"expense_ids": result.ExpenseIDs},
	})
}
