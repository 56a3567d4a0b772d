package normalize

import (
	"regexp"
	"strings"
)

// Merchant extraction patterns for common bank description formats. Ordered:
// the first match wins.
var merchantPatterns = []*regexp.Regexp{
	// POS PURCHASE - NETFLIX LAGOS / POS PMT: SHOPRITE
	regexp.MustCompile(`(?i)\bPOS\s+(?:PURCHASE|PMT|PAYMENT|TRN)\b[\s:/-]*(.+)`),
	// TRANSFER TO JOHN DOE / TRF FROM ACME LTD
	regexp.MustCompile(`(?i)\b(?:TRANSFER|TRF|TFR)\s+(?:TO|FROM)\b[\s:/-]*(.+)`),
	// USSD/AIRTIME/MTN or USSD PAY: GLO DATA
	regexp.MustCompile(`(?i)\bUSSD\b[\s:/-]*(?:AIRTIME|DATA|PAY|PAYMENT)?[\s:/-]*(.+)`),
	// WEB PAYMENT - SPOTIFY / CARD PAYMENT: NETFLIX.COM
	regexp.MustCompile(`(?i)\b(?:WEB|CARD|DEBIT\s+CARD|ONLINE)\s+(?:PAYMENT|PMT|PURCHASE)\b[\s:/-]*(.+)`),
	// DIRECT DEBIT DSTV SUBSCRIPTION
	regexp.MustCompile(`(?i)\bDIRECT\s+DEBIT\b[\s:/-]*(.+)`),
}

// Trailing reference noise stripped from extracted merchants, e.g.
// "NETFLIX REF 12345" or "SHOPRITE NG/000123".
var merchantTrailerPattern = regexp.MustCompile(`(?i)[\s/|-]+(?:REF|REFERENCE|TXN|SESSION|NIP|RRN)\b.*$`)

var nonAlnumPattern = regexp.MustCompile(`[^a-z0-9 ]+`)
var multiSpacePattern = regexp.MustCompile(`\s+`)

// ExtractMerchant pulls a merchant string out of a free-text bank description.
// Returns "" when no pattern matches; callers fall back to the cleaned
// description.
func ExtractMerchant(description string) string {
	for _, pat := range merchantPatterns {
		if m := pat.FindStringSubmatch(description); m != nil {
			candidate := merchantTrailerPattern.ReplaceAllString(m[1], "")
			candidate = strings.TrimSpace(candidate)
			if candidate != "" {
				return candidate
			}
		}
	}
	return ""
}

// MerchantKey canonicalizes a raw merchant string: lowercase, punctuation
// stripped, trailing corporate suffixes removed, then mapped through the alias
// table. Identical inputs always yield identical keys regardless of original
// casing or punctuation.
func (r *Rules) MerchantKey(raw string) string {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	if cleaned == "" {
		return ""
	}

	// Alias keys may themselves contain punctuation (apple.com/bill), so try
	// a pre-cleaning match first.
	if key, ok := r.matchAlias(cleaned); ok {
		return key
	}

	cleaned = nonAlnumPattern.ReplaceAllString(cleaned, " ")
	cleaned = multiSpacePattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	// Strip trailing corporate suffixes, repeatedly: "acme holdings nig ltd"
	// loses both tokens.
	for {
		stripped := false
		for _, suffix := range r.CorporateSuffixes {
			if cleaned == suffix {
				break
			}
			if strings.HasSuffix(cleaned, " "+suffix) {
				cleaned = strings.TrimSpace(strings.TrimSuffix(cleaned, " "+suffix))
				stripped = true
			}
		}
		if !stripped {
			break
		}
	}

	if key, ok := r.matchAlias(cleaned); ok {
		return key
	}
	return cleaned
}

func (r *Rules) matchAlias(cleaned string) (string, bool) {
	for _, k := range r.aliasKeys {
		if strings.Contains(cleaned, k) {
			return r.Aliases[k], true
		}
	}
	return "", false
}

// IsRecurringHint guesses whether a transaction is a recurring charge by
// keyword matching over the merchant and description.
func (r *Rules) IsRecurringHint(merchant, description string) bool {
	haystack := strings.ToLower(merchant + " " + description)
	for _, kw := range r.SubscriptionKeywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}
