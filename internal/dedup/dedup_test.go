package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-import/internal/domain"
	"github.com/dvloznov/ledger-import/internal/normalize"
)

type staticSource struct {
	snapshot *Snapshot
}

func (s *staticSource) DedupSnapshot(ctx context.Context, userID, excludeJobID string) (*Snapshot, error) {
	return s.snapshot, nil
}

func emptySnapshot() *Snapshot {
	return &Snapshot{PreviousHashes: map[string]string{}}
}

func makeTx(id string, date time.Time, amount float64, merchantKey string) *domain.ParsedTransaction {
	return &domain.ParsedTransaction{
		ID:          id,
		Amount:      amount,
		Date:        date,
		MerchantKey: merchantKey,
		DedupHash:   normalize.DedupHash(date, amount, merchantKey),
		Status:      domain.TxPending,
	}
}

func TestCheckBatch_SameBatch(t *testing.T) {
	engine := NewEngine(&staticSource{snapshot: emptySnapshot()}, 0)
	date := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	txs := []*domain.ParsedTransaction{
		makeTx("tx-1", date, -5000, "netflix"),
		makeTx("tx-2", date, -5000, "netflix"),
		makeTx("tx-3", date, -5000, "netflix"),
	}

	results, err := engine.CheckBatch(context.Background(), "user-1", "job-1", txs)
	if err != nil {
		t.Fatalf("CheckBatch failed: %v", err)
	}

	if results[0].IsDuplicate {
		t.Error("first occurrence should be unique")
	}
	for i := 1; i < 3; i++ {
		if !results[i].IsDuplicate || results[i].DuplicateType != domain.DupSameBatch {
			t.Errorf("result %d = %+v, want same_batch duplicate", i, results[i])
		}
		// Every duplicate points at the original, not at another duplicate.
		if results[i].DuplicateOfID != "tx-1" {
			t.Errorf("result %d duplicateOf = %s, want tx-1", i, results[i].DuplicateOfID)
		}
	}
}

func TestCheckBatch_PreviousImport(t *testing.T) {
	date := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	hash := normalize.DedupHash(date, -5000, "netflix")

	snapshot := emptySnapshot()
	snapshot.PreviousHashes[hash] = "old-tx"

	engine := NewEngine(&staticSource{snapshot: snapshot}, 0)
	txs := []*domain.ParsedTransaction{makeTx("tx-1", date, -5000, "netflix")}

	results, err := engine.CheckBatch(context.Background(), "user-1", "job-2", txs)
	if err != nil {
		t.Fatalf("CheckBatch failed: %v", err)
	}

	if !results[0].IsDuplicate || results[0].DuplicateType != domain.DupPreviousImport {
		t.Fatalf("result = %+v, want previous_import duplicate", results[0])
	}
	if results[0].DuplicateOfID != "old-tx" {
		t.Errorf("duplicateOf = %s, want old-tx", results[0].DuplicateOfID)
	}
}

func TestCheckBatch_SameBatchBeatsPreviousImport(t *testing.T) {
	date := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	hash := normalize.DedupHash(date, -5000, "netflix")

	snapshot := emptySnapshot()
	snapshot.PreviousHashes[hash] = "old-tx"

	engine := NewEngine(&staticSource{snapshot: snapshot}, 0)
	txs := []*domain.ParsedTransaction{
		makeTx("tx-1", date, -5000, "netflix"),
		makeTx("tx-2", date, -5000, "netflix"),
	}

	results, err := engine.CheckBatch(context.Background(), "user-1", "job-2", txs)
	if err != nil {
		t.Fatalf("CheckBatch failed: %v", err)
	}

	// Duplicates never join the running set, so the first row (itself a
	// previous_import duplicate) does not shadow the hash for the second.
	// Both rows therefore classify previous_import, pointing at the same
	// original, instead of the second chaining onto the first as same_batch.
	// This is deliberate: see the comment in CheckBatch.
	if results[0].DuplicateType != domain.DupPreviousImport {
		t.Errorf("first result type = %s, want previous_import", results[0].DuplicateType)
	}
	if results[1].DuplicateType != domain.DupPreviousImport {
		t.Errorf("second result type = %s, want previous_import", results[1].DuplicateType)
	}
	if results[0].DuplicateOfID != "old-tx" || results[1].DuplicateOfID != "old-tx" {
		t.Errorf("duplicateOf = %s/%s, want both old-tx",
			results[0].DuplicateOfID, results[1].DuplicateOfID)
	}
}

func TestCheckBatch_ExistingExpenseWindow(t *testing.T) {
	txDate := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		expenseDate time.Time
		amount      decimal.Decimal
		merchantKey string
		wantDup     bool
	}{
		{
			name:        "one day before, matching amount and merchant",
			expenseDate: txDate.AddDate(0, 0, -1),
			amount:      decimal.NewFromInt(5000),
			merchantKey: "netflix",
			wantDup:     true,
		},
		{
			name:        "same day",
			expenseDate: txDate,
			amount:      decimal.NewFromInt(5000),
			merchantKey: "netflix",
			wantDup:     true,
		},
		{
			name:        "two days apart is outside the window",
			expenseDate: txDate.AddDate(0, 0, -2),
			amount:      decimal.NewFromInt(5000),
			merchantKey: "netflix",
			wantDup:     false,
		},
		{
			name:        "different amount",
			expenseDate: txDate,
			amount:      decimal.NewFromInt(4999),
			merchantKey: "netflix",
			wantDup:     false,
		},
		{
			name:        "different merchant",
			expenseDate: txDate,
			amount:      decimal.NewFromInt(5000),
			merchantKey: "spotify",
			wantDup:     false,
		},
		{
			name:        "expense without merchant still matches on amount and date",
			expenseDate: txDate,
			amount:      decimal.NewFromInt(5000),
			merchantKey: "",
			wantDup:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshot := emptySnapshot()
			snapshot.Expenses = []*domain.Expense{{
				ID:          "exp-1",
				Amount:      tt.amount,
				Date:        tt.expenseDate,
				MerchantKey: tt.merchantKey,
			}}

			engine := NewEngine(&staticSource{snapshot: snapshot}, 1)
			txs := []*domain.ParsedTransaction{makeTx("tx-1", txDate, -5000, "netflix")}

			results, err := engine.CheckBatch(context.Background(), "user-1", "job-1", txs)
			if err != nil {
				t.Fatalf("CheckBatch failed: %v", err)
			}

			if results[0].IsDuplicate != tt.wantDup {
				t.Errorf("IsDuplicate = %v, want %v", results[0].IsDuplicate, tt.wantDup)
			}
			if tt.wantDup {
				if results[0].DuplicateType != domain.DupExistingExpense {
					t.Errorf("type = %s, want existing_expense", results[0].DuplicateType)
				}
				if results[0].DuplicateOfID != "exp-1" {
					t.Errorf("duplicateOf = %s, want exp-1", results[0].DuplicateOfID)
				}
			}
		})
	}
}

func TestCheckBatch_UniqueStaysPending(t *testing.T) {
	engine := NewEngine(&staticSource{snapshot: emptySnapshot()}, 0)
	date := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	txs := []*domain.ParsedTransaction{
		makeTx("tx-1", date, -5000, "netflix"),
		makeTx("tx-2", date, -3000, "spotify"),
	}

	results, err := engine.CheckBatch(context.Background(), "user-1", "job-1", txs)
	if err != nil {
		t.Fatalf("CheckBatch failed: %v", err)
	}

	for i, res := range results {
		if res.IsDuplicate {
			t.Errorf("result %d unexpectedly duplicate: %+v", i, res)
		}
	}
}
