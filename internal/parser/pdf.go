package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-import/internal/completion"
	"github.com/dvloznov/ledger-import/internal/domain"
)

const (
	// maxPDFPages bounds how many statement pages are extracted.
	maxPDFPages = 30
	// maxPDFChars keeps the prompt inside the model's context budget.
	maxPDFChars = 48000
)

// PDFParser extracts statement text deterministically and hands it to the
// completion model for transaction extraction.
type PDFParser struct {
	gen completion.Generator
	log zerolog.Logger
}

// NewPDFParser creates a PDF statement parser.
func NewPDFParser(gen completion.Generator, log zerolog.Logger) *PDFParser {
	return &PDFParser{gen: gen, log: log}
}

func (p *PDFParser) Parse(ctx context.Context, in Input) (*domain.ParseResult, error) {
	text, err := extractPDFText(in.Data)
	if err != nil {
		return nil, fmt.Errorf("Parse: %v: %w", err, domain.ErrPDFParse)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("Parse: no extractable text, statement may be scanned: %w", domain.ErrPDFParse)
	}

	resp, err := p.gen.Generate(ctx, completion.Request{
		System: statementSystemPrompt,
		Prompt: "Statement text:\n\n" + text,
	})
	if err != nil {
		return nil, fmt.Errorf("Parse: completion: %w", err)
	}

	result, err := decodeModelResult(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("Parse: %w", err)
	}
	result.RawModelOutput = resp.Content

	p.log.Debug().
		Int("transactions", len(result.Transactions)).
		Int32("output_tokens", resp.Usage.OutputTokens).
		Msg("pdf statement parsed")

	return result, nil
}

// extractPDFText pulls text page by page. Row extraction is tried first for
// layout preservation, then plain text. The library is known to panic on some
// malformed files, so the whole pass runs under recover.
func extractPDFText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf library crashed: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return "", fmt.Errorf("pdf has no pages")
	}
	if numPages > maxPDFPages {
		numPages = maxPDFPages
	}

	var b strings.Builder
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		pageText := extractPageByRow(page)
		if pageText == "" {
			pageText = extractPagePlain(page)
		}
		if pageText == "" {
			continue
		}

		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(pageText)

		if b.Len() >= maxPDFChars {
			break
		}
	}

	text = b.String()
	if len(text) > maxPDFChars {
		text = text[:maxPDFChars]
	}
	return text, nil
}

func extractPageByRow(page pdf.Page) string {
	rows, err := page.GetTextByRow()
	if err != nil {
		return ""
	}

	var lines []string
	for _, row := range rows {
		var parts []string
		for _, word := range row.Content {
			parts = append(parts, word.S)
		}
		if line := strings.TrimSpace(strings.Join(parts, " ")); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func extractPagePlain(page pdf.Page) string {
	text, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}
