package pattern

import (
	"fmt"
	"strings"

	"github.com/Veraticus/the-spice-must-recur/internal/model"
)

// IssueKind classifies a rule set finding.
type IssueKind string

// Rule set findings.
const (
	// IssueShadowed marks a rule that can never match because an earlier
	// rule accepts every input it would.
	IssueShadowed IssueKind = "shadowed"
	// IssueConflict marks two equally ranked rules that accept the same
	// inputs but disagree on category.
	IssueConflict IssueKind = "conflict"
)

// Issue is one load-time validation finding.
type Issue struct {
	Kind    IssueKind
	Message string
	Rule    model.CategoryRule
	By      model.CategoryRule
}

// Validate reports shadowed and conflicting rules without compiling a set.
// Malformed rules are skipped here; NewRuleSet rejects them.
func Validate(rules []model.CategoryRule) []Issue {
	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		cr, err := compileRule(rule)
		if err != nil {
			continue
		}
		compiled = append(compiled, cr)
	}
	sortRules(compiled)
	return validateCompiled(compiled)
}

func validateCompiled(rules []compiledRule) []Issue {
	var issues []Issue
	for j := range rules {
		later := rules[j]
		for i := range j {
			earlier := rules[i]
			if !covers(earlier, later) {
				continue
			}

			sameRank := earlier.rule.Priority == later.rule.Priority &&
				earlier.rule.MatchType == later.rule.MatchType &&
				earlier.pattern == later.pattern
			if sameRank && earlier.rule.Category != later.rule.Category {
				issues = append(issues, Issue{
					Kind: IssueConflict,
					Rule: later.rule,
					By:   earlier.rule,
					Message: fmt.Sprintf("%s and %s both match %q at priority %d but map to %s and %s",
						earlier.rule.Label(), later.rule.Label(), later.rule.Pattern, later.rule.Priority,
						earlier.rule.Category, later.rule.Category),
				})
				break
			}

			issues = append(issues, Issue{
				Kind: IssueShadowed,
				Rule: later.rule,
				By:   earlier.rule,
				Message: fmt.Sprintf("%s (%s) is unreachable behind %s (%s)",
					later.rule.Label(), later.rule.Category, earlier.rule.Label(), earlier.rule.Category),
			})
			break
		}
	}
	return issues
}

// covers reports whether every merchant accepted by b is also accepted by a.
// Regex rules are only compared for identical patterns.
func covers(a, b compiledRule) bool {
	at, bt := a.rule.MatchType, b.rule.MatchType
	if at == model.MatchRegex || bt == model.MatchRegex {
		return at == bt && a.rule.Pattern == b.rule.Pattern
	}

	switch at {
	case model.MatchExact:
		return bt == model.MatchExact && a.pattern == b.pattern
	case model.MatchPrefix:
		if bt == model.MatchExact || bt == model.MatchPrefix {
			return strings.HasPrefix(b.pattern, a.pattern)
		}
		return false
	default:
		return strings.Contains(b.pattern, a.pattern)
	}
}
