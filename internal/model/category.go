package model

import (
	"fmt"
	"strings"
)

// Category is one member of the closed spending taxonomy.
type Category string

// Spending categories.
const (
	CategoryGroceries      Category = "Groceries"
	CategoryDining         Category = "Dining"
	CategoryTransportation Category = "Transportation"
	CategoryUtilities      Category = "Utilities"
	CategoryHousing        Category = "Housing"
	CategoryEntertainment  Category = "Entertainment"
	CategorySubscriptions  Category = "Subscriptions"
	CategoryShopping       Category = "Shopping"
	CategoryHealthcare     Category = "Healthcare"
	CategoryInsurance      Category = "Insurance"
	CategoryTravel         Category = "Travel"
	CategoryEducation      Category = "Education"
	CategoryPersonalCare   Category = "Personal Care"
	CategoryFees           Category = "Fees"
	CategoryTransfer       Category = "Transfer"
	CategoryIncome         Category = "Income"
	CategoryUncategorized  Category = "Uncategorized"
)

var allCategories = []Category{
	CategoryGroceries,
	CategoryDining,
	CategoryTransportation,
	CategoryUtilities,
	CategoryHousing,
	CategoryEntertainment,
	CategorySubscriptions,
	CategoryShopping,
	CategoryHealthcare,
	CategoryInsurance,
	CategoryTravel,
	CategoryEducation,
	CategoryPersonalCare,
	CategoryFees,
	CategoryTransfer,
	CategoryIncome,
	CategoryUncategorized,
}

// AllCategories returns every category in display order.
func AllCategories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// IsValid reports whether c belongs to the closed taxonomy.
func (c Category) IsValid() bool {
	for _, known := range allCategories {
		if c == known {
			return true
		}
	}
	return false
}

func (c Category) String() string {
	return string(c)
}

// ParseCategory resolves a category name case-insensitively.
func ParseCategory(name string) (Category, error) {
	trimmed := strings.TrimSpace(name)
	for _, known := range allCategories {
		if strings.EqualFold(trimmed, string(known)) {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", name)
}
