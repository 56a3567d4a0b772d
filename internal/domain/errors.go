package domain

import (
	"errors"
)

// Sentinel errors for the import pipeline. Callers test with errors.Is; the
// wrapped message carries the human-readable detail that ends up on the job.
var (
	// ErrFileTooLarge is raised synchronously at upload time, before a job exists.
	ErrFileTooLarge = errors.New("file too large")
	// ErrInvalidFileType is raised synchronously at upload time, before a job exists.
	ErrInvalidFileType = errors.New("invalid file type")

	// ErrParseFailure covers empty extraction and malformed model output.
	ErrParseFailure = errors.New("parse failure")
	// ErrCSVParse covers CSV-specific structural failures.
	ErrCSVParse = errors.New("csv parse error")
	// ErrPDFParse covers PDF text-extraction failures.
	ErrPDFParse = errors.New("pdf parse error")
	// ErrVision covers screenshot/vision-model failures.
	ErrVision = errors.New("vision error")

	// ErrStorage covers file storage adapter failures.
	ErrStorage = errors.New("storage error")

	ErrJobNotFound = errors.New("job not found")
	// ErrAlreadyProcessed is returned when an action targets a job or
	// transaction already in a terminal state.
	ErrAlreadyProcessed = errors.New("already processed")
	// ErrConfirmation covers failures while confirming or materializing
	// transactions.
	ErrConfirmation = errors.New("confirmation error")
)
