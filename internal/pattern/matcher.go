// Package pattern maps normalized merchants to categories with an ordered,
// immutable rule set.
package pattern

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/Veraticus/the-spice-must-recur/internal/common"
	"github.com/Veraticus/the-spice-must-recur/internal/model"
)

// RuleConfidence is the confidence assigned to every rule match.
const RuleConfidence = 1.0

type compiledRule struct {
	re      *regexp.Regexp
	pattern string
	rule    model.CategoryRule
}

// RuleSet is a compiled, ordered rule list. It is immutable after
// construction and safe for concurrent use.
type RuleSet struct {
	rules  []compiledRule
	issues []Issue
}

// NewRuleSet validates and compiles rules. Shadowed rules are reported and
// kept; conflicting or malformed rules fail the load.
func NewRuleSet(rules []model.CategoryRule, logger *slog.Logger) (*RuleSet, []Issue, error) {
	logger = common.OrDefault(logger)

	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		cr, err := compileRule(rule)
		if err != nil {
			return nil, nil, err
		}
		compiled = append(compiled, cr)
	}

	sortRules(compiled)

	issues := validateCompiled(compiled)
	var conflicts []string
	for _, issue := range issues {
		switch issue.Kind {
		case IssueConflict:
			conflicts = append(conflicts, issue.Message)
		case IssueShadowed:
			logger.Warn("Category rule is unreachable",
				"rule", issue.Rule.Label(),
				"shadowed_by", issue.By.Label(),
				"detail", issue.Message)
		}
	}
	if len(conflicts) > 0 {
		return nil, issues, fmt.Errorf("%w: %s", common.ErrConflictingRules, strings.Join(conflicts, "; "))
	}

	logger.Debug("Compiled category rules", "count", len(compiled), "issues", len(issues))

	return &RuleSet{rules: compiled, issues: issues}, issues, nil
}

func compileRule(rule model.CategoryRule) (compiledRule, error) {
	matchType, err := model.ParseMatchType(string(rule.MatchType))
	if err != nil {
		return compiledRule{}, fmt.Errorf("%w %s: %w", common.ErrInvalidRule, rule.Label(), err)
	}
	rule.MatchType = matchType

	if strings.TrimSpace(rule.Pattern) == "" {
		return compiledRule{}, fmt.Errorf("%w %s: empty pattern", common.ErrInvalidRule, rule.Label())
	}
	if !rule.Category.IsValid() {
		return compiledRule{}, fmt.Errorf("%w %s: unknown category %q", common.ErrInvalidRule, rule.Label(), rule.Category)
	}

	cr := compiledRule{rule: rule, pattern: strings.ToUpper(rule.Pattern)}
	if matchType == model.MatchRegex {
		re, err := regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			return compiledRule{}, fmt.Errorf("%w %s: %w", common.ErrInvalidRule, rule.Label(), err)
		}
		cr.re = re
	}
	return cr, nil
}

// sortRules orders by priority, then specificity, then ID.
func sortRules(rules []compiledRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i].rule, rules[j].rule
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Specificity() != b.Specificity() {
			return a.Specificity() > b.Specificity()
		}
		return a.ID < b.ID
	})
}

func (c compiledRule) matches(merchant string) bool {
	switch c.rule.MatchType {
	case model.MatchExact:
		return merchant == c.pattern
	case model.MatchPrefix:
		return strings.HasPrefix(merchant, c.pattern)
	case model.MatchRegex:
		return c.re.MatchString(merchant)
	default:
		return strings.Contains(merchant, c.pattern)
	}
}

// Match returns the category of the first rule matching the normalized
// merchant, with confidence 1.0.
func (s *RuleSet) Match(normalized string) (model.Category, float64, bool) {
	rule, ok := s.MatchRule(normalized)
	if !ok {
		return "", 0, false
	}
	return rule.Category, RuleConfidence, true
}

// MatchRule returns the first matching rule.
func (s *RuleSet) MatchRule(normalized string) (model.CategoryRule, bool) {
	if s == nil {
		return model.CategoryRule{}, false
	}
	merchant := strings.ToUpper(normalized)
	for _, cr := range s.rules {
		if cr.matches(merchant) {
			return cr.rule, true
		}
	}
	return model.CategoryRule{}, false
}

// Rules returns the rules in evaluation order.
func (s *RuleSet) Rules() []model.CategoryRule {
	out := make([]model.CategoryRule, len(s.rules))
	for i, cr := range s.rules {
		out[i] = cr.rule
	}
	return out
}

// Issues returns the validation findings recorded at load time.
func (s *RuleSet) Issues() []Issue {
	return append([]Issue(nil), s.issues...)
}

// Len returns the number of compiled rules.
func (s *RuleSet) Len() int {
	return len(s.rules)
}
