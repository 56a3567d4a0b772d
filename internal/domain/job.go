package domain

import (
	"time"
)

// ImportSource identifies where an import job's raw data came from.
type ImportSource string

const (
	SourceStatementPDF ImportSource = "STATEMENT_PDF"
	SourceStatementCSV ImportSource = "STATEMENT_CSV"
	SourceScreenshot   ImportSource = "SCREENSHOT"
	SourceEmailForward ImportSource = "EMAIL_FORWARD"
)

// JobStatus represents the current status of an import job.
type JobStatus string

const (
	// JobProcessing indicates the detached parsing task is (or should be) running.
	JobProcessing JobStatus = "PROCESSING"
	// JobAwaitingReview indicates parsing succeeded and transactions await confirmation.
	JobAwaitingReview JobStatus = "AWAITING_REVIEW"
	// JobCompleted indicates at least one transaction was materialized into the ledger.
	JobCompleted JobStatus = "COMPLETED"
	// JobFailed indicates parsing failed; ErrorMessage carries the reason.
	JobFailed JobStatus = "FAILED"
)

// ImportJob is one ingestion attempt from a single source (file, screenshot
// batch, or forwarded email). It is owned by the orchestrator and mutated only
// through the status transitions in importer.
type ImportJob struct {
	ID     string       `json:"id"`
	UserID string       `json:"user_id"`
	Source ImportSource `json:"source"`
	Status JobStatus    `json:"status"`

	// Original upload metadata. FileHandle is the storage adapter handle and
	// is empty for email-forward jobs, which carry no stored file.
	FileName   string `json:"file_name,omitempty"`
	FileSize   int64  `json:"file_size,omitempty"`
	FileHandle string `json:"file_handle,omitempty"`

	// BankName and StatementPeriod are detected during parsing when the
	// source carries them.
	BankName        string `json:"bank_name,omitempty"`
	StatementPeriod string `json:"statement_period,omitempty"`

	TotalParsed int `json:"total_parsed"`
	Created     int `json:"created"`
	Duplicates  int `json:"duplicates"`
	Rejected    int `json:"rejected"`

	ErrorMessage string `json:"error_message,omitempty"`

	// RawModelOutput is the uncleaned completion reply from model-assisted
	// parses, retained (capped) for debugging. Never returned over the API.
	RawModelOutput string `json:"-"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsTerminal reports whether the job can no longer change status on its own.
// AWAITING_REVIEW is not terminal: confirmation can still move it to COMPLETED.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}
