package pattern

import (
	"testing"

	"github.com/Veraticus/the-spice-must-recur/internal/common"
	"github.com/Veraticus/the-spice-must-recur/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateShadowedRules(t *testing.T) {
	tests := []struct {
		name      string
		rules     []model.CategoryRule
		shadowed  []int
		shadowers []int
	}{
		{
			name: "broad substring ahead of narrower substring",
			rules: []model.CategoryRule{
				{ID: 1, Pattern: "UBER", Category: model.CategoryTransportation, Priority: 20},
				{ID: 2, Pattern: "UBER EATS", Category: model.CategoryDining, Priority: 10},
			},
			shadowed:  []int{2},
			shadowers: []int{1},
		},
		{
			name: "prefix covers longer prefix and exact",
			rules: []model.CategoryRule{
				{ID: 1, Pattern: "AMAZON", MatchType: model.MatchPrefix, Category: model.CategoryShopping, Priority: 20},
				{ID: 2, Pattern: "AMAZON PRIME", MatchType: model.MatchPrefix, Category: model.CategorySubscriptions, Priority: 10},
				{ID: 3, Pattern: "AMAZON FRESH", MatchType: model.MatchExact, Category: model.CategoryGroceries, Priority: 10},
			},
			shadowed:  []int{2, 3},
			shadowers: []int{1, 1},
		},
		{
			name: "duplicate with lower priority",
			rules: []model.CategoryRule{
				{ID: 1, Pattern: "NETFLIX", MatchType: model.MatchExact, Category: model.CategorySubscriptions, Priority: 20},
				{ID: 2, Pattern: "netflix", MatchType: model.MatchExact, Category: model.CategoryEntertainment, Priority: 10},
			},
			shadowed:  []int{2},
			shadowers: []int{1},
		},
		{
			name: "specificity ordering avoids shadowing",
			rules: []model.CategoryRule{
				{ID: 1, Pattern: "UBER", MatchType: model.MatchPrefix, Category: model.CategoryTransportation, Priority: 10},
				{ID: 2, Pattern: "UBER EATS", Category: model.CategoryDining, Priority: 10},
			},
		},
		{
			name: "prefix does not cover substring",
			rules: []model.CategoryRule{
				{ID: 1, Pattern: "SHELL", MatchType: model.MatchPrefix, Category: model.CategoryTransportation, Priority: 20},
				{ID: 2, Pattern: "SHELL OIL", Category: model.CategoryTransportation, Priority: 10},
			},
		},
		{
			name: "regex rules are not compared",
			rules: []model.CategoryRule{
				{ID: 1, Pattern: ".*", MatchType: model.MatchRegex, Category: model.CategoryShopping, Priority: 20},
				{ID: 2, Pattern: "TARGET", Category: model.CategoryShopping, Priority: 10},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := Validate(tt.rules)
			require.Len(t, issues, len(tt.shadowed))
			for i, issue := range issues {
				assert.Equal(t, IssueShadowed, issue.Kind)
				assert.Equal(t, tt.shadowed[i], issue.Rule.ID)
				assert.Equal(t, tt.shadowers[i], issue.By.ID)
				assert.NotEmpty(t, issue.Message)
			}
		})
	}
}

func TestShadowedRulesAreKept(t *testing.T) {
	rules := []model.CategoryRule{
		{ID: 1, Pattern: "UBER", Category: model.CategoryTransportation, Priority: 20},
		{ID: 2, Pattern: "UBER EATS", Category: model.CategoryDining, Priority: 10},
	}
	rs, issues, err := NewRuleSet(rules, nil)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, 2, rs.Len())
	assert.Len(t, rs.Issues(), 1)
}

func TestConflictingRulesFailLoad(t *testing.T) {
	rules := []model.CategoryRule{
		{ID: 1, Pattern: "TARGET", MatchType: model.MatchPrefix, Category: model.CategoryShopping, Priority: 10},
		{ID: 2, Pattern: "Target", MatchType: model.MatchPrefix, Category: model.CategoryGroceries, Priority: 10},
	}

	_, issues, err := NewRuleSet(rules, nil)
	assert.ErrorIs(t, err, common.ErrConflictingRules)
	require.Len(t, issues, 1)
	assert.Equal(t, IssueConflict, issues[0].Kind)
}
