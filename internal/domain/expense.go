package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AutoCategoryID is the sentinel category used when the auto-confirmation
// policy materializes a single high-confidence email debit without review.
const AutoCategoryID = "auto"

// Expense is a permanent ledger entry materialized from a parsed transaction.
// Amount is the absolute value held as an exact decimal; direction is implied
// by the ledger (expenses are money out).
type Expense struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	CategoryID string `json:"category_id"`

	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Date     time.Time       `json:"date"`

	Description string `json:"description"`
	Merchant    string `json:"merchant,omitempty"`
	MerchantKey string `json:"merchant_key,omitempty"`

	IsRecurring bool `json:"is_recurring"`

	// SourceTransactionID links back to the ParsedTransaction this entry was
	// materialized from.
	SourceTransactionID string `json:"source_transaction_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Category is a ledger category. Only existence matters to this service;
// the taxonomy itself is managed elsewhere.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
