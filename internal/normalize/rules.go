package normalize

import (
	_ "embed"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// Rules holds the merchant canonicalization tables. The defaults are embedded;
// deployments can override them with their own YAML file.
type Rules struct {
	Aliases              map[string]string `yaml:"aliases"`
	SubscriptionKeywords []string          `yaml:"subscription_keywords"`
	CorporateSuffixes    []string          `yaml:"corporate_suffixes"`

	// aliasKeys is Aliases' keys sorted longest-first so substring matching is
	// deterministic regardless of map order.
	aliasKeys []string
}

// LoadRules parses a rules YAML document from r.
func LoadRules(r io.Reader) (*Rules, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("LoadRules: reading rules: %w", err)
	}

	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("LoadRules: parsing rules YAML: %w", err)
	}
	if rules.Aliases == nil {
		rules.Aliases = map[string]string{}
	}
	rules.buildIndex()
	return &rules, nil
}

// DefaultRules returns the embedded rule set. The embedded file is validated
// at build time, so a parse error here is a programming error.
func DefaultRules() *Rules {
	var rules Rules
	if err := yaml.Unmarshal(defaultRulesYAML, &rules); err != nil {
		panic(fmt.Sprintf("normalize: embedded rules.yaml is invalid: %v", err))
	}
	rules.buildIndex()
	return &rules
}

func (r *Rules) buildIndex() {
	r.aliasKeys = make([]string, 0, len(r.Aliases))
	for k := range r.Aliases {
		r.aliasKeys = append(r.aliasKeys, k)
	}
	sort.Slice(r.aliasKeys, func(i, j int) bool {
		if len(r.aliasKeys[i]) != len(r.aliasKeys[j]) {
			return len(r.aliasKeys[i]) > len(r.aliasKeys[j])
		}
		return r.aliasKeys[i] < r.aliasKeys[j]
	})
}
