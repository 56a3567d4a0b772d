// Package bigquery is the production Repository. Each entity maps to one
// table in the configured dataset; rows are tagged structs and all reads go
// through parameterized queries.
package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-import/internal/domain"
)

const (
	jobsTable         = "import_jobs"
	transactionsTable = "parsed_transactions"
	expensesTable     = "expenses"
	categoriesTable   = "categories"

	// maxRawModelOutput caps the retained model reply on the job row.
	maxRawModelOutput = 16 * 1024
)

// JobRow is the import_jobs table shape.
type JobRow struct {
	JobID           string                 `bigquery:"job_id"`
	UserID          string                 `bigquery:"user_id"`
	Source          string                 `bigquery:"source"`
	Status          string                 `bigquery:"status"`
	FileName        string                 `bigquery:"file_name"`
	FileSize        int64                  `bigquery:"file_size"`
	FileHandle      string                 `bigquery:"file_handle"`
	BankName        string                 `bigquery:"bank_name"`
	StatementPeriod string                 `bigquery:"statement_period"`
	TotalParsed     int64                  `bigquery:"total_parsed"`
	Created         int64                  `bigquery:"created_count"`
	Duplicates      int64                  `bigquery:"duplicate_count"`
	Rejected        int64                  `bigquery:"rejected_count"`
	ErrorMessage    string                 `bigquery:"error_message"`
	RawModelOutput  string                 `bigquery:"raw_model_output"`
	CreatedTS       time.Time              `bigquery:"created_ts"`
	UpdatedTS       time.Time              `bigquery:"updated_ts"`
	CompletedTS     bigquery.NullTimestamp `bigquery:"completed_ts"`
}

// TransactionRow is the parsed_transactions table shape.
type TransactionRow struct {
	TransactionID    string     `bigquery:"transaction_id"`
	JobID            string     `bigquery:"job_id"`
	UserID           string     `bigquery:"user_id"`
	Amount           float64    `bigquery:"amount"`
	Currency         string     `bigquery:"currency"`
	TransactionDate  civil.Date `bigquery:"transaction_date"`
	Description      string     `bigquery:"description"`
	RawMerchant      string     `bigquery:"raw_merchant"`
	MerchantKey      string     `bigquery:"merchant_key"`
	IsRecurringGuess bool       `bigquery:"is_recurring_guess"`
	Confidence       float64    `bigquery:"confidence"`
	DedupHash        string     `bigquery:"dedup_hash"`
	Status           string     `bigquery:"status"`
	DuplicateOfID    string     `bigquery:"duplicate_of_id"`
	ExpenseID        string     `bigquery:"expense_id"`
	CreatedTS        time.Time  `bigquery:"created_ts"`
	UpdatedTS        time.Time  `bigquery:"updated_ts"`
}

// ExpenseRow is the expenses table shape. Amount is the canonical decimal
// string so no precision is lost round-tripping through the warehouse.
type ExpenseRow struct {
	ExpenseID           string     `bigquery:"expense_id"`
	UserID              string     `bigquery:"user_id"`
	CategoryID          string     `bigquery:"category_id"`
	Amount              string     `bigquery:"amount"`
	Currency            string     `bigquery:"currency"`
	ExpenseDate         civil.Date `bigquery:"expense_date"`
	Description         string     `bigquery:"description"`
	Merchant            string     `bigquery:"merchant"`
	MerchantKey         string     `bigquery:"merchant_key"`
	IsRecurring         bool       `bigquery:"is_recurring"`
	SourceTransactionID string     `bigquery:"source_transaction_id"`
	CreatedTS           time.Time  `bigquery:"created_ts"`
}

// CategoryRow is the categories table shape.
type CategoryRow struct {
	CategoryID string `bigquery:"category_id"`
	Name       string `bigquery:"name"`
}

func jobToRow(j *domain.ImportJob) *JobRow {
	row := &JobRow{
		JobID:           j.ID,
		UserID:          j.UserID,
		Source:          string(j.Source),
		Status:          string(j.Status),
		FileName:        j.FileName,
		FileSize:        j.FileSize,
		FileHandle:      j.FileHandle,
		BankName:        j.BankName,
		StatementPeriod: j.StatementPeriod,
		TotalParsed:     int64(j.TotalParsed),
		Created:         int64(j.Created),
		Duplicates:      int64(j.Duplicates),
		Rejected:        int64(j.Rejected),
		ErrorMessage:    j.ErrorMessage,
		CreatedTS:       j.CreatedAt,
		UpdatedTS:       j.UpdatedAt,
	}
	if out := j.RawModelOutput; len(out) > maxRawModelOutput {
		row.RawModelOutput = out[:maxRawModelOutput]
	} else {
		row.RawModelOutput = out
	}
	if j.CompletedAt != nil {
		row.CompletedTS = bigquery.NullTimestamp{Timestamp: *j.CompletedAt, Valid: true}
	}
	return row
}

func rowToJob(r *JobRow) *domain.ImportJob {
	j := &domain.ImportJob{
		ID:              r.JobID,
		UserID:          r.UserID,
		Source:          domain.ImportSource(r.Source),
		Status:          domain.JobStatus(r.Status),
		FileName:        r.FileName,
		FileSize:        r.FileSize,
		FileHandle:      r.FileHandle,
		BankName:        r.BankName,
		StatementPeriod: r.StatementPeriod,
		TotalParsed:     int(r.TotalParsed),
		Created:         int(r.Created),
		Duplicates:      int(r.Duplicates),
		Rejected:        int(r.Rejected),
		ErrorMessage:    r.ErrorMessage,
		RawModelOutput:  r.RawModelOutput,
		CreatedAt:       r.CreatedTS,
		UpdatedAt:       r.UpdatedTS,
	}
	if r.CompletedTS.Valid {
		t := r.CompletedTS.Timestamp
		j.CompletedAt = &t
	}
	return j
}

func txToRow(t *domain.ParsedTransaction) *TransactionRow {
	return &TransactionRow{
		TransactionID:    t.ID,
		JobID:            t.JobID,
		UserID:           t.UserID,
		Amount:           t.Amount,
		Currency:         t.Currency,
		TransactionDate:  civil.DateOf(t.Date),
		Description:      t.Description,
		RawMerchant:      t.RawMerchant,
		MerchantKey:      t.MerchantKey,
		IsRecurringGuess: t.IsRecurringGuess,
		Confidence:       t.Confidence,
		DedupHash:        t.DedupHash,
		Status:           string(t.Status),
		DuplicateOfID:    t.DuplicateOfID,
		ExpenseID:        t.ExpenseID,
		CreatedTS:        t.CreatedAt,
		UpdatedTS:        t.UpdatedAt,
	}
}

func rowToTx(r *TransactionRow) *domain.ParsedTransaction {
	return &domain.ParsedTransaction{
		ID:               r.TransactionID,
		JobID:            r.JobID,
		UserID:           r.UserID,
		Amount:           r.Amount,
		Currency:         r.Currency,
		Date:             r.TransactionDate.In(time.UTC),
		Description:      r.Description,
		RawMerchant:      r.RawMerchant,
		MerchantKey:      r.MerchantKey,
		IsRecurringGuess: r.IsRecurringGuess,
		Confidence:       r.Confidence,
		DedupHash:        r.DedupHash,
		Status:           domain.TransactionStatus(r.Status),
		DuplicateOfID:    r.DuplicateOfID,
		ExpenseID:        r.ExpenseID,
		CreatedAt:        r.CreatedTS,
		UpdatedAt:        r.UpdatedTS,
	}
}

func expenseToRow(e *domain.Expense) *ExpenseRow {
	return &ExpenseRow{
		ExpenseID:           e.ID,
		UserID:              e.UserID,
		CategoryID:          e.CategoryID,
		Amount:              e.Amount.String(),
		Currency:            e.Currency,
		ExpenseDate:         civil.DateOf(e.Date),
		Description:         e.Description,
		Merchant:            e.Merchant,
		MerchantKey:         e.MerchantKey,
		IsRecurring:         e.IsRecurring,
		SourceTransactionID: e.SourceTransactionID,
		CreatedTS:           e.CreatedAt,
	}
}

func rowToExpense(r *ExpenseRow) (*domain.Expense, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return nil, err
	}
	return &domain.Expense{
		ID:                  r.ExpenseID,
		UserID:              r.UserID,
		CategoryID:          r.CategoryID,
		Amount:              amount,
		Currency:            r.Currency,
		Date:                r.ExpenseDate.In(time.UTC),
		Description:         r.Description,
		Merchant:            r.Merchant,
		MerchantKey:         r.MerchantKey,
		IsRecurring:         r.IsRecurring,
		SourceTransactionID: r.SourceTransactionID,
		CreatedAt:           r.CreatedTS,
	}, nil
}
