package expense

import "github.com/dvloznov/ledger-import/internal/normalize"

// SubscriptionCatalog answers whether a merchant is a known subscription
// service. The catalog decides recurrence on its own authority; a parser-level
// guess is OR'd in by the materializer.
type SubscriptionCatalog interface {
	IsKnownSubscription(merchantKey string) bool
}

// RulesCatalog backs the catalog with the normalize rules tables, so the
// merchants the normalizer canonicalizes are the same ones the catalog knows.
type RulesCatalog struct {
	rules *normalize.Rules
}

// NewRulesCatalog creates a catalog over the given rules.
func NewRulesCatalog(rules *normalize.Rules) *RulesCatalog {
	return &RulesCatalog{rules: rules}
}

func (c *RulesCatalog) IsKnownSubscription(merchantKey string) bool {
	if merchantKey == "" {
		return false
	}
	return c.rules.IsRecurringHint(merchantKey, "")
}
