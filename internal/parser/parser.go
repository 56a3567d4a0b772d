// Package parser turns uploaded source files into raw transaction candidates.
// Each supported source has its own Parser; the CSV path is fully
// deterministic, the PDF, screenshot and email paths delegate extraction to
// the completion model and enforce a strict JSON contract on its output.
package parser

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-import/internal/completion"
	"github.com/dvloznov/ledger-import/internal/domain"
)

// Input carries the source payload. Exactly one of Data or Images is set;
// Data holds CSV bytes, PDF bytes or the email body depending on the source.
type Input struct {
	FileName    string
	ContentType string
	Data        []byte
	Images      []completion.Image
}

// Parser extracts raw transactions from one source format.
type Parser interface {
	Parse(ctx context.Context, in Input) (*domain.ParseResult, error)
}

// ForSource returns the parser for an import source. The model-assisted
// parsers share the given completion service.
func ForSource(source domain.ImportSource, gen completion.Generator, log zerolog.Logger) (Parser, error) {
	switch source {
	case domain.SourceStatementCSV:
		return NewCSVParser(log), nil
	case domain.SourceStatementPDF:
		return NewPDFParser(gen, log), nil
	case domain.SourceScreenshot:
		return NewVisionParser(gen, log), nil
	case domain.SourceEmailForward:
		return NewEmailParser(gen, log), nil
	default:
		return nil, fmt.Errorf("ForSource: unsupported source %q", source)
	}
}
