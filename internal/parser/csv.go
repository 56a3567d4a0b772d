package parser

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-import/internal/domain"
	"github.com/dvloznov/ledger-import/internal/normalize"
)

// CSVParser handles bank CSV exports deterministically, without any model
// call. Known Nigerian bank export layouts are recognized by their header
// signatures; anything else goes through the generic column aliases.
type CSVParser struct {
	log zerolog.Logger
}

// NewCSVParser creates a CSV parser.
func NewCSVParser(log zerolog.Logger) *CSVParser {
	return &CSVParser{log: log}
}

type columnRole int

const (
	roleDate columnRole = iota
	roleDescription
	roleAmount
	roleDebit
	roleCredit
	roleType
	roleMerchant
)

// genericAliases covers the column names seen across bank CSV exports.
var genericAliases = map[string]columnRole{
	"date":             roleDate,
	"transaction date": roleDate,
	"trans date":       roleDate,
	"txn date":         roleDate,
	"value date":       roleDate,
	"posting date":     roleDate,

	"description":         roleDescription,
	"narration":           roleDescription,
	"narrative":           roleDescription,
	"details":             roleDescription,
	"transaction details": roleDescription,
	"remarks":             roleDescription,
	"memo":                roleDescription,

	"amount":             roleAmount,
	"transaction amount": roleAmount,
	"amount (ngn)":       roleAmount,

	"debit":        roleDebit,
	"debit amount": roleDebit,
	"withdrawal":   roleDebit,
	"money out":    roleDebit,
	"paid out":     roleDebit,
	"dr":           roleDebit,

	"credit":        roleCredit,
	"credit amount": roleCredit,
	"deposit":       roleCredit,
	"money in":      roleCredit,
	"paid in":       roleCredit,
	"cr":            roleCredit,

	"type":             roleType,
	"transaction type": roleType,
	"dr/cr":            roleType,

	"merchant":     roleMerchant,
	"beneficiary":  roleMerchant,
	"payee":        roleMerchant,
	"counterparty": roleMerchant,
}

// bankProfile recognizes one bank's export layout. Markers are headers that
// identify the layout; aliases extend (and may override) the generic table.
type bankProfile struct {
	name    string
	markers []string
	aliases map[string]columnRole
}

var bankProfiles = []bankProfile{
	{
		name:    "Kuda",
		markers: []string{"money in", "money out"},
	},
	{
		name:    "GTBank",
		markers: []string{"remarks", "value date"},
	},
	{
		name:    "Access Bank",
		markers: []string{"transaction details", "value date"},
	},
	{
		name:    "OPay",
		markers: []string{"transaction time"},
		aliases: map[string]columnRole{"transaction time": roleDate},
	},
	{
		name:    "Zenith Bank",
		markers: []string{"narrative"},
	},
	{
		name:    "First Bank",
		markers: []string{"transaction narration"},
		aliases: map[string]columnRole{"transaction narration": roleDescription},
	},
}

var recurringKeywords = []string{"subscription", "standing order", "renewal", "autopay", "auto-renew"}

// errSkipRow marks a row that is well-formed but carries no transaction, such
// as a debit/credit pair that is zero on both sides. It is dropped without an
// entry in ParseResult.Errors.
var errSkipRow = errors.New("skip row")

// Parse reads the CSV export. Rows that cannot be parsed are reported in
// ParseResult.Errors and skipped; the parse as a whole fails only when no
// header row can be located or the file is not valid CSV.
func (p *CSVParser) Parse(ctx context.Context, in Input) (*domain.ParseResult, error) {
	reader := csv.NewReader(bytes.NewReader(in.Data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("Parse: reading csv: %v: %w", err, domain.ErrCSVParse)
	}

	headerIdx, columns, profile := locateHeader(records)
	if columns == nil {
		return nil, fmt.Errorf("Parse: no recognizable header row: %w", domain.ErrCSVParse)
	}

	result := &domain.ParseResult{
		BankName: profile.name,
		Currency: detectCurrency(records),
	}

	for i := headerIdx + 1; i < len(records); i++ {
		row := records[i]
		if isBlankRow(row) {
			continue
		}

		tx, rowErr := parseRow(row, columns)
		if errors.Is(rowErr, errSkipRow) {
			continue
		}
		if rowErr != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, rowErr))
			continue
		}
		result.Transactions = append(result.Transactions, *tx)
	}

	p.log.Debug().
		Str("bank", profile.name).
		Int("rows", len(result.Transactions)).
		Int("errors", len(result.Errors)).
		Msg("csv parsed")

	return result, nil
}

// locateHeader scans the leading rows for one that maps at least a date and
// either an amount or a debit/credit pair. Preamble rows above the header
// (account info blocks some banks emit) are skipped.
func locateHeader(records [][]string) (int, map[columnRole]int, bankProfile) {
	for i := 0; i < len(records) && i < 10; i++ {
		profile := matchProfile(records[i])
		columns := mapColumns(records[i], profile)

		_, hasDate := columns[roleDate]
		_, hasAmount := columns[roleAmount]
		_, hasDebit := columns[roleDebit]
		_, hasCredit := columns[roleCredit]
		if hasDate && (hasAmount || hasDebit || hasCredit) {
			return i, columns, profile
		}
	}
	return 0, nil, bankProfile{}
}

func matchProfile(header []string) bankProfile {
	normalized := make(map[string]bool, len(header))
	for _, cell := range header {
		normalized[normalizeHeader(cell)] = true
	}

	for _, profile := range bankProfiles {
		matched := true
		for _, marker := range profile.markers {
			if !normalized[marker] {
				matched = false
				break
			}
		}
		if matched {
			return profile
		}
	}
	return bankProfile{}
}

func mapColumns(header []string, profile bankProfile) map[columnRole]int {
	columns := make(map[columnRole]int)
	for idx, cell := range header {
		name := normalizeHeader(cell)
		role, ok := profile.aliases[name]
		if !ok {
			role, ok = genericAliases[name]
		}
		if !ok {
			continue
		}
		if _, taken := columns[role]; !taken {
			columns[role] = idx
		}
	}
	return columns
}

func normalizeHeader(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func parseRow(row []string, columns map[columnRole]int) (*domain.RawTransaction, error) {
	date := cell(row, columns, roleDate)
	if date == "" {
		return nil, fmt.Errorf("missing date")
	}

	amount, txType, err := rowAmount(row, columns)
	if err != nil {
		return nil, err
	}

	description := cell(row, columns, roleDescription)
	merchant := cell(row, columns, roleMerchant)
	if merchant == "" {
		merchant = normalize.ExtractMerchant(description)
	}

	return &domain.RawTransaction{
		Date:        date,
		Amount:      amount,
		Description: description,
		Merchant:    merchant,
		IsRecurring: hasRecurringKeyword(description),
		Type:        txType,
		Confidence:  1.0,
	}, nil
}

// rowAmount resolves the signed amount and direction from either a single
// amount column (sign or type column decides direction) or a debit/credit
// column pair. Banks routinely zero-fill the unused side of the pair, so
// both cells are parsed and the nonzero one decides; a row that is zero on
// both sides carries no transaction and is skipped.
func rowAmount(row []string, columns map[columnRole]int) (float64, domain.TransactionType, error) {
	debitCell := cell(row, columns, roleDebit)
	creditCell := cell(row, columns, roleCredit)

	if debitCell != "" || creditCell != "" {
		var debit, credit float64
		if debitCell != "" {
			v, err := ParseAmount(debitCell)
			if err != nil {
				return 0, "", fmt.Errorf("bad debit amount %q: %v", debitCell, err)
			}
			debit = abs(v)
		}
		if creditCell != "" {
			v, err := ParseAmount(creditCell)
			if err != nil {
				return 0, "", fmt.Errorf("bad credit amount %q: %v", creditCell, err)
			}
			credit = abs(v)
		}
		switch {
		case debit > 0 && credit > 0:
			return 0, "", fmt.Errorf("both debit and credit populated")
		case debit > 0:
			return -debit, domain.TypeDebit, nil
		case credit > 0:
			return credit, domain.TypeCredit, nil
		default:
			return 0, "", errSkipRow
		}
	}

	amountCell := cell(row, columns, roleAmount)
	if amountCell == "" {
		return 0, "", fmt.Errorf("missing amount")
	}
	v, err := ParseAmount(amountCell)
	if err != nil {
		return 0, "", fmt.Errorf("bad amount %q: %v", amountCell, err)
	}

	if typeCell := strings.ToLower(cell(row, columns, roleType)); typeCell != "" {
		switch {
		case strings.HasPrefix(typeCell, "d"):
			return -abs(v), domain.TypeDebit, nil
		case strings.HasPrefix(typeCell, "c"):
			return abs(v), domain.TypeCredit, nil
		}
	}

	if v < 0 {
		return v, domain.TypeDebit, nil
	}
	return v, domain.TypeCredit, nil
}

// ParseAmount parses a money cell: currency symbols and codes, thousands
// separators and whitespace are stripped; parentheses and a DR suffix mean
// negative.
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	upper := strings.ToUpper(strings.TrimSpace(s))
	if strings.HasSuffix(upper, "DR") {
		negative = true
		s = s[:len(s)-2]
	} else if strings.HasSuffix(upper, "CR") {
		s = s[:len(s)-2]
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		case r == ',', r == ' ', r == ' ':
		case r == '₦', r == '$', r == '£', r == '€':
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
			// Currency codes like NGN sometimes prefix the value.
		default:
			return 0, fmt.Errorf("unexpected character %q", r)
		}
	}

	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if negative {
		v = -abs(v)
	}
	return v, nil
}

// detectCurrency scans cells for a currency symbol or code. NGN is the
// baseline when nothing identifiable appears.
func detectCurrency(records [][]string) string {
	for _, row := range records {
		for _, c := range row {
			upper := strings.ToUpper(c)
			switch {
			case strings.Contains(c, "₦") || strings.Contains(upper, "NGN"):
				return "NGN"
			case strings.Contains(upper, "USD"):
				return "USD"
			case strings.Contains(upper, "GBP") || strings.Contains(c, "£"):
				return "GBP"
			case strings.Contains(upper, "EUR") || strings.Contains(c, "€"):
				return "EUR"
			}
		}
	}
	return "NGN"
}

func hasRecurringKeyword(description string) bool {
	lower := strings.ToLower(description)
	for _, kw := range recurringKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func cell(row []string, columns map[columnRole]int, role columnRole) string {
	idx, ok := columns[role]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
