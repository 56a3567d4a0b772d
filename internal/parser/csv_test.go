package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-import/internal/domain"
)

func TestCSVParse_DebitCreditColumns(t *testing.T) {
	input := "Date,Description,Money Out,Money In\n" +
		"01/02/2025,POS PURCHASE - NETFLIX,5000.00,\n" +
		"02/02/2025,SALARY JANUARY,,250000.00\n" +
		"03/02/2025,BROKEN ROW,100.00,200.00\n"

	p := NewCSVParser(zerolog.Nop())
	result, err := p.Parse(context.Background(), Input{Data: []byte(input)})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if result.BankName != "Kuda" {
		t.Errorf("bank = %q, want Kuda", result.BankName)
	}
	if len(result.Transactions) != 2 {
		t.Fatalf("transactions = %d, want 2", len(result.Transactions))
	}

	debit := result.Transactions[0]
	if debit.Amount != -5000 || debit.Type != domain.TypeDebit {
		t.Errorf("debit row = %+v", debit)
	}
	credit := result.Transactions[1]
	if credit.Amount != 250000 || credit.Type != domain.TypeCredit {
		t.Errorf("credit row = %+v", credit)
	}

	// A row with money on both sides violates exclusivity and is reported,
	// not silently guessed at.
	if len(result.Errors) != 1 {
		t.Fatalf("errors = %v, want exactly one", result.Errors)
	}
}

func TestCSVParse_ZeroFilledDebitCreditColumns(t *testing.T) {
	input := "Date,Description,Money Out,Money In\n" +
		"01/02/2025,POS PURCHASE - NETFLIX,5000.00,0.00\n" +
		"02/02/2025,SALARY JANUARY,0.00,250000.00\n" +
		"03/02/2025,BALANCE CARRIED FORWARD,0.00,0.00\n"

	p := NewCSVParser(zerolog.Nop())
	result, err := p.Parse(context.Background(), Input{Data: []byte(input)})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	// Zero-filled opposite columns decide nothing; the nonzero side carries
	// the direction, and a row that is zero on both sides is dropped without
	// an error entry.
	if len(result.Transactions) != 2 {
		t.Fatalf("transactions = %d, want 2 (errors: %v)", len(result.Transactions), result.Errors)
	}
	if tx := result.Transactions[0]; tx.Amount != -5000 || tx.Type != domain.TypeDebit {
		t.Errorf("debit row = %+v", tx)
	}
	if tx := result.Transactions[1]; tx.Amount != 250000 || tx.Type != domain.TypeCredit {
		t.Errorf("credit row = %+v", tx)
	}
	if len(result.Errors) != 0 {
		t.Errorf("errors = %v, want none", result.Errors)
	}
}

func TestCSVParse_SingleAmountWithTypeColumn(t *testing.T) {
	input := "Transaction Date,Narration,Amount,Type\n" +
		"01/02/2025,TRANSFER TO JOHN DOE,2000,DR\n" +
		"02/02/2025,REFUND JUMIA,1500,CR\n" +
		"03/02/2025,WEB PAYMENT - SPOTIFY,-1200,\n"

	p := NewCSVParser(zerolog.Nop())
	result, err := p.Parse(context.Background(), Input{Data: []byte(input)})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(result.Transactions) != 3 {
		t.Fatalf("transactions = %d, want 3", len(result.Transactions))
	}

	if tx := result.Transactions[0]; tx.Amount != -2000 || tx.Type != domain.TypeDebit {
		t.Errorf("DR row = %+v", tx)
	}
	if tx := result.Transactions[1]; tx.Amount != 1500 || tx.Type != domain.TypeCredit {
		t.Errorf("CR row = %+v", tx)
	}
	// Without a type, the sign decides.
	if tx := result.Transactions[2]; tx.Amount != -1200 || tx.Type != domain.TypeDebit {
		t.Errorf("signed row = %+v", tx)
	}
}

func TestCSVParse_PreambleAndMerchantFallback(t *testing.T) {
	input := "Account Statement\n" +
		"Account Number,0123456789\n" +
		"Date,Description,Amount\n" +
		"05/02/2025,POS PURCHASE - SHOPRITE LEKKI,-3500\n"

	p := NewCSVParser(zerolog.Nop())
	result, err := p.Parse(context.Background(), Input{Data: []byte(input)})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(result.Transactions) != 1 {
		t.Fatalf("transactions = %d, want 1", len(result.Transactions))
	}
	if got := result.Transactions[0].Merchant; got != "SHOPRITE LEKKI" {
		t.Errorf("merchant = %q, want SHOPRITE LEKKI", got)
	}
}

func TestCSVParse_NoHeader(t *testing.T) {
	p := NewCSVParser(zerolog.Nop())
	_, err := p.Parse(context.Background(), Input{Data: []byte("just,some,cells\nwithout,a,header\n")})
	if !errors.Is(err, domain.ErrCSVParse) {
		t.Fatalf("error = %v, want ErrCSVParse", err)
	}
}

func TestCSVParse_CurrencyDetection(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "naira symbol",
			input: "Date,Description,Amount\n01/02/2025,POS,₦500\n",
			want:  "NGN",
		},
		{
			name:  "usd code",
			input: "Date,Description,Amount,Currency\n01/02/2025,POS,500,USD\n",
			want:  "USD",
		},
		{
			name:  "nothing identifiable falls back to NGN",
			input: "Date,Description,Amount\n01/02/2025,POS,500\n",
			want:  "NGN",
		},
	}

	p := NewCSVParser(zerolog.Nop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := p.Parse(context.Background(), Input{Data: []byte(tt.input)})
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if result.Currency != tt.want {
				t.Errorf("currency = %q, want %q", result.Currency, tt.want)
			}
		})
	}
}

func TestCSVParse_RecurringKeyword(t *testing.T) {
	input := "Date,Description,Amount\n" +
		"01/02/2025,DSTV SUBSCRIPTION RENEWAL,-9000\n" +
		"02/02/2025,GROCERY RUN,-4000\n"

	p := NewCSVParser(zerolog.Nop())
	result, err := p.Parse(context.Background(), Input{Data: []byte(input)})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !result.Transactions[0].IsRecurring {
		t.Error("subscription row should be flagged recurring")
	}
	if result.Transactions[1].IsRecurring {
		t.Error("grocery row should not be flagged recurring")
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input   string
		want    float64
		wantErr bool
	}{
		{"5000", 5000, false},
		{"5,000.00", 5000, false},
		{"₦12,500.50", 12500.50, false},
		{"NGN 300", 300, false},
		{"(1,200.50)", -1200.50, false},
		{"500 DR", -500, false},
		{"500 CR", 500, false},
		{"-250.75", -250.75, false},
		{"$99.99", 99.99, false},
		{"", 0, true},
		{"abc", 0, true},
		{"12.5.3", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAmount(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseAmount(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
