package domain

import (
	"time"
)

// TransactionStatus represents the lifecycle state of a parsed transaction.
type TransactionStatus string

const (
	// TxPending awaits user review or auto-confirmation.
	TxPending TransactionStatus = "PENDING"
	// TxConfirmed was accepted by the user but not yet materialized.
	TxConfirmed TransactionStatus = "CONFIRMED"
	// TxRejected was declined by the user.
	TxRejected TransactionStatus = "REJECTED"
	// TxDuplicate was flagged by the deduplication engine at creation time. Terminal.
	TxDuplicate TransactionStatus = "DUPLICATE"
	// TxCreated has a ledger entry materialized from it. Terminal.
	TxCreated TransactionStatus = "CREATED"
)

// IsTerminal reports whether a transaction can never leave this status.
func (s TransactionStatus) IsTerminal() bool {
	return s == TxCreated || s == TxDuplicate
}

// DuplicateType classifies which deduplication scope matched.
type DuplicateType string

const (
	// DupSameBatch means the same hash appeared earlier in the same parse batch.
	DupSameBatch DuplicateType = "same_batch"
	// DupPreviousImport means the hash was already persisted for this user by another job.
	DupPreviousImport DuplicateType = "previous_import"
	// DupExistingExpense means an existing ledger entry matched on amount,
	// merchant and a date within the variance window.
	DupExistingExpense DuplicateType = "existing_expense"
)

// ParsedTransaction is one candidate transaction extracted during an import
// job, prior to ledger materialization. Amount is signed: negative is money
// out (debit), positive is money in (credit). Date carries day precision only.
type ParsedTransaction struct {
	ID     string `json:"id"`
	JobID  string `json:"job_id"`
	UserID string `json:"user_id"`

	Amount   float64   `json:"amount"`
	Currency string    `json:"currency"`
	Date     time.Time `json:"date"`

	Description string `json:"description"`
	RawMerchant string `json:"raw_merchant,omitempty"`
	// MerchantKey is the normalized merchant used for deduplication and
	// subscription lookups. Empty when no merchant could be determined.
	MerchantKey string `json:"merchant_key,omitempty"`

	IsRecurringGuess bool    `json:"is_recurring_guess"`
	Confidence       float64 `json:"confidence"`

	DedupHash string            `json:"dedup_hash"`
	Status    TransactionStatus `json:"status"`

	// DuplicateOfID points at the original when Status is DUPLICATE.
	DuplicateOfID string `json:"duplicate_of_id,omitempty"`
	// ExpenseID points at the ledger entry when Status is CREATED.
	ExpenseID string `json:"expense_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsDebit reports whether the transaction is money out.
func (t *ParsedTransaction) IsDebit() bool {
	return t.Amount < 0
}
