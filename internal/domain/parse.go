package domain

// TransactionType is the direction reported by a parser before sign
// normalization.
type TransactionType string

const (
	TypeDebit  TransactionType = "debit"
	TypeCredit TransactionType = "credit"
)

// RawTransaction is one transaction as extracted by a format parser, before
// normalization. Date is the string the source carried; the normalizer owns
// reparsing and validation.
type RawTransaction struct {
	Date        string          `json:"date"`
	Amount      float64         `json:"amount"`
	Description string          `json:"description"`
	Merchant    string          `json:"merchant,omitempty"`
	IsRecurring bool            `json:"isRecurring"`
	Type        TransactionType `json:"type"`
	// Confidence is parser-reported certainty in [0,1]. Deterministic parsers
	// report 1.0; model-assisted parsers report what the model returned.
	Confidence float64 `json:"confidence,omitempty"`
}

// ParseResult is the common output contract of every format parser, and the
// strict JSON boundary shape expected from the completion model.
type ParseResult struct {
	Transactions    []RawTransaction `json:"transactions"`
	BankName        string           `json:"bankName,omitempty"`
	AccountNumber   string           `json:"accountNumber,omitempty"`
	Currency        string           `json:"currency,omitempty"`
	StatementPeriod string           `json:"statementPeriod,omitempty"`
	Errors          []string         `json:"errors,omitempty"`
	// RawModelOutput is the uncleaned model reply, retained on the job for
	// debugging. Empty for deterministic parsers.
	RawModelOutput string `json:"-"`
}
