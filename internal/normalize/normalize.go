// Package normalize converts raw parsed transactions into canonical records
// and computes their deduplication hashes. Normalization is pure: the same
// input always produces byte-identical output.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/ledger-import/internal/domain"
)

const (
	// DedupHashLen is the hex length the sha256 digest is truncated to.
	dedupHashLen = 32

	maxPastAge    = 5 * 365 * 24 * time.Hour
	maxFutureSkew = 31 * 24 * time.Hour
)

// Normalizer turns RawTransactions into ParsedTransactions. The reference
// time is fixed at construction so a Normalizer instance is deterministic.
type Normalizer struct {
	rules *Rules
	now   time.Time
}

// New creates a Normalizer with the given rules, anchored at the current time.
func New(rules *Rules) *Normalizer {
	return NewAt(rules, time.Now().UTC())
}

// NewAt creates a Normalizer anchored at a fixed reference time. Tests use
// this to keep date-window validation stable.
func NewAt(rules *Rules, now time.Time) *Normalizer {
	return &Normalizer{rules: rules, now: now}
}

// Normalize validates and canonicalizes each raw transaction. Rows with
// unparseable or out-of-window dates and rows with zero amounts are dropped.
// The returned records carry amount, currency, day-precision date, merchant
// key, recurrence guess, confidence and dedup hash; identity and status are
// assigned later by the orchestrator.
func (n *Normalizer) Normalize(raws []domain.RawTransaction, currency string) []domain.ParsedTransaction {
	out := make([]domain.ParsedTransaction, 0, len(raws))

	for _, raw := range raws {
		date, err := ParseDate(raw.Date)
		if err != nil {
			continue
		}
		if n.now.Sub(date) > maxPastAge || date.Sub(n.now) > maxFutureSkew {
			continue
		}

		amount := normalizeSign(raw.Amount, raw.Type)
		if amount == 0 {
			continue
		}

		rawMerchant := strings.TrimSpace(raw.Merchant)
		if rawMerchant == "" {
			rawMerchant = ExtractMerchant(raw.Description)
		}
		merchantKey := n.rules.MerchantKey(rawMerchant)

		confidence := raw.Confidence
		if confidence == 0 {
			confidence = 1.0
		}

		out = append(out, domain.ParsedTransaction{
			Amount:           amount,
			Currency:         currency,
			Date:             date,
			Description:      strings.TrimSpace(raw.Description),
			RawMerchant:      rawMerchant,
			MerchantKey:      merchantKey,
			IsRecurringGuess: raw.IsRecurring || n.rules.IsRecurringHint(merchantKey, raw.Description),
			Confidence:       confidence,
			DedupHash:        DedupHash(date, amount, merchantKey),
			Status:           domain.TxPending,
		})
	}

	return out
}

// normalizeSign forces the amount sign to agree with the declared type:
// debits are negative, credits positive. The type wins even when the source
// (or the model) got the sign backward.
func normalizeSign(amount float64, t domain.TransactionType) float64 {
	abs := math.Abs(amount)
	if t == domain.TypeCredit {
		return abs
	}
	return -abs
}

// DedupHash is the deterministic fingerprint of (day, |amount|, merchant key)
// used by the deduplication engine. The merchant key may be empty.
func DedupHash(date time.Time, amount float64, merchantKey string) string {
	day := date.Format("2006-01-02")
	abs := strconv.FormatFloat(math.Abs(amount), 'f', 2, 64)
	sum := sha256.Sum256([]byte(day + "|" + abs + "|" + merchantKey))
	return hex.EncodeToString(sum[:])[:dedupHashLen]
}
