package model

import "fmt"

// MatchType controls how a rule's pattern is anchored against a merchant.
type MatchType string

// Rule match types.
const (
	MatchExact     MatchType = "exact"
	MatchPrefix    MatchType = "prefix"
	MatchSubstring MatchType = "substring"
	MatchRegex     MatchType = "regex"
)

// ParseMatchType validates a match type name. Empty defaults to substring.
func ParseMatchType(s string) (MatchType, error) {
	switch MatchType(s) {
	case "":
		return MatchSubstring, nil
	case MatchExact, MatchPrefix, MatchSubstring, MatchRegex:
		return MatchType(s), nil
	default:
		return "", fmt.Errorf("unknown match type %q", s)
	}
}

// CategoryRule maps normalized merchants matching Pattern to Category.
// Higher Priority wins; specificity (pattern length) breaks ties.
type CategoryRule struct {
	Name      string    `json:"name" yaml:"name"`
	Pattern   string    `json:"pattern" yaml:"pattern"`
	MatchType MatchType `json:"match_type" yaml:"match_type"`
	Category  Category  `json:"category" yaml:"category"`
	ID        int       `json:"id" yaml:"id"`
	Priority  int       `json:"priority" yaml:"priority"`
}

// Specificity is the tie-break weight between rules of equal priority.
func (r CategoryRule) Specificity() int {
	return len([]rune(r.Pattern))
}

// Label identifies a rule in logs and validation reports.
func (r CategoryRule) Label() string {
	if r.Name != "" {
		return fmt.Sprintf("#%d %s", r.ID, r.Name)
	}
	return fmt.Sprintf("#%d %s:%s", r.ID, r.MatchType, r.Pattern)
}
