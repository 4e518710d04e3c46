package chat

import (
	"encoding/json"
	"fmt"
	"os"
)

// Rules bundles the deployment-specific retrieval tuning: which
// document sets a focus narrows retrieval to, and which fixed links
// get appended to answers. They track the ingested corpus, so they
// ship as a config file rather than code.
type Rules struct {
	Focus    []FocusRule     `json:"focus,omitempty"`
	RefLinks []ReferenceLink `json:"referenceLinks,omitempty"`
}

// LoadRules reads a JSON rules file.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("failed to read rules file: %w", err)
	}

	var rules Rules
	if err := json.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}

	for i, rule := range rules.Focus {
		if rule.Name == "" {
			return Rules{}, fmt.Errorf("focus rule %d has no name", i)
		}
		if len(rule.Documents) == 0 {
			return Rules{}, fmt.Errorf("focus rule %q lists no documents", rule.Name)
		}
	}
	for i, ref := range rules.RefLinks {
		if ref.Link == "" {
			return Rules{}, fmt.Errorf("reference link %d has no link", i)
		}
	}
	return rules, nil
}
