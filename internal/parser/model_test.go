package parser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-import/internal/completion"
	"github.com/dvloznov/ledger-import/internal/domain"
)

type fakeGenerator struct {
	resp    *completion.Response
	err     error
	lastReq completion.Request
	calls   int
}

func (f *fakeGenerator) Generate(ctx context.Context, req completion.Request) (*completion.Response, error) {
	f.lastReq = req
	f.calls++
	return f.resp, f.err
}

func TestVisionParse_ConfidenceFloor(t *testing.T) {
	gen := &fakeGenerator{resp: &completion.Response{Content: `{"transactions":[
		{"date":"2025-01-10","amount":-500,"description":"clear row","type":"debit","confidence":0.9},
		{"date":"2025-01-10","amount":-900,"description":"half cut off","type":"debit","confidence":0.2},
		{"date":"2025-01-10","amount":-300,"description":"no confidence reported","type":"debit"}
	]}`}}

	p := NewVisionParser(gen, zerolog.Nop())
	result, err := p.Parse(context.Background(), Input{Images: []completion.Image{{Bytes: []byte("png"), MIMEType: "image/png"}}})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(result.Transactions) != 2 {
		t.Fatalf("transactions = %d, want 2 (low-confidence row dropped)", len(result.Transactions))
	}
	for _, tx := range result.Transactions {
		if tx.Confidence < minVisionConfidence {
			t.Errorf("low-confidence row survived: %+v", tx)
		}
	}

	// A row the model declined to score is kept for review, but capped under
	// the auto-confirm floor so the normalizer's full-trust default never
	// applies to it.
	unscored := result.Transactions[1]
	if unscored.Confidence != unscoredVisionConfidence {
		t.Errorf("unscored row confidence = %v, want %v", unscored.Confidence, unscoredVisionConfidence)
	}
	if len(result.Errors) != 1 {
		t.Errorf("errors = %v, want drop notice", result.Errors)
	}
	if len(gen.lastReq.Images) != 1 {
		t.Errorf("images forwarded = %d, want 1", len(gen.lastReq.Images))
	}
}

func TestVisionParse_NoImages(t *testing.T) {
	p := NewVisionParser(&fakeGenerator{}, zerolog.Nop())
	_, err := p.Parse(context.Background(), Input{})
	if !errors.Is(err, domain.ErrVision) {
		t.Fatalf("error = %v, want ErrVision", err)
	}
}

func TestEmailParse(t *testing.T) {
	gen := &fakeGenerator{resp: &completion.Response{Content: `{"transactions":[
		{"date":"2025-01-10","amount":-2500,"description":"POS purchase at SHOPRITE","merchant":"SHOPRITE","type":"debit","confidence":0.95}
	],"currency":"NGN"}`}}

	body := `<html><body><p>Debit Alert</p><p>Amount: &#8358;2,500.00</p></body></html>`
	p := NewEmailParser(gen, zerolog.Nop())
	result, err := p.Parse(context.Background(), Input{Data: []byte(body)})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(result.Transactions) != 1 {
		t.Fatalf("transactions = %d, want 1", len(result.Transactions))
	}
	if result.RawModelOutput == "" {
		t.Error("raw model output not retained")
	}
	// The model sees stripped text, not markup.
	if got := gen.lastReq.Prompt; !strings.Contains(got, "Debit Alert") || strings.Contains(got, "<p>") {
		t.Errorf("prompt not stripped of HTML:\n%s", got)
	}
}

func TestEmailParse_EmptyBody(t *testing.T) {
	gen := &fakeGenerator{}
	p := NewEmailParser(gen, zerolog.Nop())
	_, err := p.Parse(context.Background(), Input{Data: []byte("   ")})
	if !errors.Is(err, domain.ErrParseFailure) {
		t.Fatalf("error = %v, want ErrParseFailure", err)
	}
	if gen.calls != 0 {
		t.Error("model called for an empty body")
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text untouched",
			in:   "Debit Alert\nAmount: NGN 500",
			want: "Debit Alert\nAmount: NGN 500",
		},
		{
			name: "tags removed, breaks kept",
			in:   "<div>Debit Alert</div><p>Amount: <b>500</b></p>",
			want: "Debit Alert\nAmount: 500",
		},
		{
			name: "style blocks dropped entirely",
			in:   "<style>.a{color:red}</style>Alert",
			want: "Alert",
		},
		{
			name: "entities decoded",
			in:   "Amount: &#8358;500 &amp; fees",
			want: "Amount: ₦500 & fees",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripHTML(tt.in); got != tt.want {
				t.Errorf("StripHTML = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestForSource(t *testing.T) {
	gen := &fakeGenerator{}
	for _, source := range []domain.ImportSource{
		domain.SourceStatementCSV,
		domain.SourceStatementPDF,
		domain.SourceScreenshot,
		domain.SourceEmailForward,
	} {
		if _, err := ForSource(source, gen, zerolog.Nop()); err != nil {
			t.Errorf("ForSource(%s) failed: %v", source, err)
		}
	}
	if _, err := ForSource("CARRIER_PIGEON", gen, zerolog.Nop()); err == nil {
		t.Error("unknown source accepted")
	}
}
