package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/ledger-import/internal/domain"
)

// decodeModelResult turns raw model output into a ParseResult. The model is
// told to return bare JSON but routinely wraps it in Markdown fences or prose
// anyway, so the first well-formed JSON object is cut out before decoding.
// A decoded object without a "transactions" key violates the contract and is
// a parse failure; an empty array is fine and handled by the caller.
func decodeModelResult(raw string) (*domain.ParseResult, error) {
	clean := extractJSONObject(raw)
	if clean == "" {
		return nil, fmt.Errorf("decodeModelResult: no JSON object in model output: %w", domain.ErrParseFailure)
	}

	var probe struct {
		Transactions *json.RawMessage `json:"transactions"`
	}
	if err := json.Unmarshal([]byte(clean), &probe); err != nil {
		return nil, fmt.Errorf("decodeModelResult: invalid JSON from model: %v: %w", err, domain.ErrParseFailure)
	}
	if probe.Transactions == nil {
		return nil, fmt.Errorf("decodeModelResult: model output missing transactions key: %w", domain.ErrParseFailure)
	}

	var result domain.ParseResult
	if err := json.Unmarshal([]byte(clean), &result); err != nil {
		return nil, fmt.Errorf("decodeModelResult: malformed transactions payload: %v: %w", err, domain.ErrParseFailure)
	}

	for i := range result.Transactions {
		tx := &result.Transactions[i]
		if tx.Type != domain.TypeDebit && tx.Type != domain.TypeCredit {
			// Infer the direction from the sign when the model leaves the
			// type out or invents a value.
			if tx.Amount < 0 {
				tx.Type = domain.TypeDebit
			} else {
				tx.Type = domain.TypeCredit
			}
		}
	}

	return &result, nil
}

// extractJSONObject strips Markdown fences and surrounding prose, keeping the
// span from the first '{' to its matching close brace. String literals are
// honored so braces inside descriptions do not end the scan early.
func extractJSONObject(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
