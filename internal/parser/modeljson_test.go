package parser

import (
	"errors"
	"testing"

	"github.com/dvloznov/ledger-import/internal/domain"
)

func TestDecodeModelResult(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantTxs int
		wantErr bool
	}{
		{
			name:    "bare json",
			raw:     `{"transactions":[{"date":"2025-01-10","amount":-5000,"description":"netflix","type":"debit"}],"currency":"NGN"}`,
			wantTxs: 1,
		},
		{
			name:    "fenced json",
			raw:     "```json\n{\"transactions\":[]}\n```",
			wantTxs: 0,
		},
		{
			name:    "prose around the object",
			raw:     "Here is the extracted data:\n{\"transactions\":[{\"date\":\"2025-01-10\",\"amount\":100,\"description\":\"x\",\"type\":\"credit\"}]}\nLet me know if you need anything else.",
			wantTxs: 1,
		},
		{
			name:    "braces inside description strings",
			raw:     `{"transactions":[{"date":"2025-01-10","amount":-1,"description":"ref {abc} } done","type":"debit"}]}`,
			wantTxs: 1,
		},
		{
			name:    "missing transactions key",
			raw:     `{"rows":[]}`,
			wantErr: true,
		},
		{
			name:    "invalid json",
			raw:     `{"transactions": [`,
			wantErr: true,
		},
		{
			name:    "no json at all",
			raw:     "I could not parse this statement.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := decodeModelResult(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrParseFailure) {
					t.Fatalf("error = %v, want ErrParseFailure", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeModelResult failed: %v", err)
			}
			if len(result.Transactions) != tt.wantTxs {
				t.Errorf("transactions = %d, want %d", len(result.Transactions), tt.wantTxs)
			}
		})
	}
}

func TestDecodeModelResult_TypeInference(t *testing.T) {
	raw := `{"transactions":[
		{"date":"2025-01-10","amount":-500,"description":"no type"},
		{"date":"2025-01-11","amount":800,"description":"no type either"},
		{"date":"2025-01-12","amount":300,"description":"bogus type","type":"charge"}
	]}`

	result, err := decodeModelResult(raw)
	if err != nil {
		t.Fatalf("decodeModelResult failed: %v", err)
	}

	want := []domain.TransactionType{domain.TypeDebit, domain.TypeCredit, domain.TypeCredit}
	for i, tx := range result.Transactions {
		if tx.Type != want[i] {
			t.Errorf("tx %d type = %q, want %q", i, tx.Type, want[i])
		}
	}
}
