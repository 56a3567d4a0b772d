package parser

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-import/internal/completion"
	"github.com/dvloznov/ledger-import/internal/domain"
)

// maxEmailChars bounds the body sent to the model; alert emails are short and
// anything beyond this is boilerplate.
const maxEmailChars = 16000

// EmailParser extracts transactions from forwarded bank alert emails via the
// completion model. HTML bodies are reduced to text first.
type EmailParser struct {
	gen completion.Generator
	log zerolog.Logger
}

// NewEmailParser creates an email alert parser.
func NewEmailParser(gen completion.Generator, log zerolog.Logger) *EmailParser {
	return &EmailParser{gen: gen, log: log}
}

func (p *EmailParser) Parse(ctx context.Context, in Input) (*domain.ParseResult, error) {
	body := strings.TrimSpace(string(in.Data))
	if body == "" {
		return nil, fmt.Errorf("Parse: empty email body: %w", domain.ErrParseFailure)
	}

	text := StripHTML(body)
	if len(text) > maxEmailChars {
		text = text[:maxEmailChars]
	}

	resp, err := p.gen.Generate(ctx, completion.Request{
		System: emailSystemPrompt,
		Prompt: "Email body:\n\n" + text,
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
		Msg("email parsed")

	return result, nil
}

var (
	htmlHiddenPattern = regexp.MustCompile(`(?is)<(script|style|head)[^>]*>.*?</(script|style|head)>`)
	htmlBreakPattern  = regexp.MustCompile(`(?i)<(br|/p|/div|/tr|/li|/h[1-6])[^>]*>`)
	htmlTagPattern    = regexp.MustCompile(`<[^>]*>`)
	blankLinePattern  = regexp.MustCompile(`\n{3,}`)
)

// StripHTML reduces an HTML email body to plain text, keeping line structure
// so the model sees amounts and narratives on separate lines. Plain-text
// bodies pass through unchanged apart from whitespace cleanup.
func StripHTML(body string) string {
	s := htmlHiddenPattern.ReplaceAllString(body, "")
	s = htmlBreakPattern.ReplaceAllString(s, "\n")
	s = htmlTagPattern.ReplaceAllString(s, " ")

	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&#8358;", "₦")
	s = strings.ReplaceAll(s, "&quot;", `"`)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	s = strings.Join(lines, "\n")
	s = blankLinePattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
