package pattern

import "github.com/Veraticus/the-spice-must-recur/internal/model"

// DefaultRules returns the built-in merchant rules used when no rule source
// is configured.
func DefaultRules() []model.CategoryRule {
	rules := []model.CategoryRule{
		// Streaming and software subscriptions
		{Name: "Netflix", Pattern: "NETFLIX", MatchType: model.MatchPrefix, Category: model.CategorySubscriptions, Priority: 50},
		{Name: "Spotify", Pattern: "SPOTIFY", MatchType: model.MatchPrefix, Category: model.CategorySubscriptions, Priority: 50},
		{Name: "Hulu", Pattern: "HULU", MatchType: model.MatchPrefix, Category: model.CategorySubscriptions, Priority: 50},
		{Name: "Disney Plus", Pattern: `^DISNEY\s*(PLUS|\+)`, MatchType: model.MatchRegex, Category: model.CategorySubscriptions, Priority: 50},
		{Name: "YouTube Premium", Pattern: "YOUTUBE PREMIUM", MatchType: model.MatchSubstring, Category: model.CategorySubscriptions, Priority: 50},
		{Name: "Apple Services", Pattern: "APPLE BILL", MatchType: model.MatchPrefix, Category: model.CategorySubscriptions, Priority: 50},
		{Name: "Amazon Prime", Pattern: "AMAZON PRIME", MatchType: model.MatchPrefix, Category: model.CategorySubscriptions, Priority: 50},

		// Rideshare versus food delivery resolves by specificity
		{Name: "Uber Eats", Pattern: "UBER EATS", MatchType: model.MatchSubstring, Category: model.CategoryDining, Priority: 40},
		{Name: "Uber", Pattern: "UBER", MatchType: model.MatchPrefix, Category: model.CategoryTransportation, Priority: 40},
		{Name: "Lyft", Pattern: "LYFT", MatchType: model.MatchPrefix, Category: model.CategoryTransportation, Priority: 40},
		{Name: "DoorDash", Pattern: "DOORDASH", MatchType: model.MatchSubstring, Category: model.CategoryDining, Priority: 40},
		{Name: "Grubhub", Pattern: "GRUBHUB", MatchType: model.MatchSubstring, Category: model.CategoryDining, Priority: 40},

		// Groceries
		{Name: "Whole Foods", Pattern: "WHOLE FOODS", MatchType: model.MatchPrefix, Category: model.CategoryGroceries, Priority: 30},
		{Name: "Trader Joe's", Pattern: "TRADER JOE", MatchType: model.MatchPrefix, Category: model.CategoryGroceries, Priority: 30},
		{Name: "Safeway", Pattern: "SAFEWAY", MatchType: model.MatchPrefix, Category: model.CategoryGroceries, Priority: 30},
		{Name: "Kroger", Pattern: "KROGER", MatchType: model.MatchPrefix, Category: model.CategoryGroceries, Priority: 30},

		// Dining
		{Name: "Starbucks", Pattern: "STARBUCKS", MatchType: model.MatchPrefix, Category: model.CategoryDining, Priority: 30},
		{Name: "McDonald's", Pattern: "MCDONALDS", MatchType: model.MatchPrefix, Category: model.CategoryDining, Priority: 30},
		{Name: "Chipotle", Pattern: "CHIPOTLE", MatchType: model.MatchPrefix, Category: model.CategoryDining, Priority: 30},

		// Fuel and transit
		{Name: "Shell", Pattern: "SHELL OIL", MatchType: model.MatchPrefix, Category: model.CategoryTransportation, Priority: 30},
		{Name: "Chevron", Pattern: "CHEVRON", MatchType: model.MatchPrefix, Category: model.CategoryTransportation, Priority: 30},
		{Name: "Exxon", Pattern: `^EXXON(MOBIL)?\b`, MatchType: model.MatchRegex, Category: model.CategoryTransportation, Priority: 30},

		// Utilities and telecom
		{Name: "AT&T", Pattern: "AT&T", MatchType: model.MatchPrefix, Category: model.CategoryUtilities, Priority: 30},
		{Name: "Verizon", Pattern: "VERIZON", MatchType: model.MatchPrefix, Category: model.CategoryUtilities, Priority: 30},
		{Name: "Comcast", Pattern: `^(COMCAST|XFINITY)\b`, MatchType: model.MatchRegex, Category: model.CategoryUtilities, Priority: 30},
		{Name: "Electric Utility", Pattern: `\b(ELECTRIC|POWER|ENERGY)\b`, MatchType: model.MatchRegex, Category: model.CategoryUtilities, Priority: 10},
		{Name: "Water Utility", Pattern: `\bWATER\b`, MatchType: model.MatchRegex, Category: model.CategoryUtilities, Priority: 10},

		// Insurance
		{Name: "Geico", Pattern: "GEICO", MatchType: model.MatchPrefix, Category: model.CategoryInsurance, Priority: 30},
		{Name: "State Farm", Pattern: "STATE FARM", MatchType: model.MatchPrefix, Category: model.CategoryInsurance, Priority: 30},
		{Name: "Insurance", Pattern: `\b(INSURANCE|INS PREM)\b`, MatchType: model.MatchRegex, Category: model.CategoryInsurance, Priority: 10},

		// Shopping
		{Name: "Amazon Marketplace", Pattern: `^(AMZN|AMAZON)\b`, MatchType: model.MatchRegex, Category: model.CategoryShopping, Priority: 20},
		{Name: "Target", Pattern: "TARGET", MatchType: model.MatchPrefix, Category: model.CategoryShopping, Priority: 20},
		{Name: "Walmart", Pattern: `^(WALMART|WAL MART|WM SUPERCENTER)\b`, MatchType: model.MatchRegex, Category: model.CategoryShopping, Priority: 20},

		// Money movement
		{Name: "Payroll", Pattern: `\b(PAYROLL|DIRECT DEP|DIR DEP|SALARY)\b`, MatchType: model.MatchRegex, Category: model.CategoryIncome, Priority: 100},
		{Name: "Interest", Pattern: `\bINTEREST (PAID|EARNED)\b`, MatchType: model.MatchRegex, Category: model.CategoryIncome, Priority: 90},
		{Name: "Transfer", Pattern: `\b(TRANSFER|XFER|ZELLE|VENMO)\b`, MatchType: model.MatchRegex, Category: model.CategoryTransfer, Priority: 80},
		{Name: "Bank Fee", Pattern: `\b(OVERDRAFT|SERVICE FEE|ATM FEE|MONTHLY FEE)\b`, MatchType: model.MatchRegex, Category: model.CategoryFees, Priority: 80},
	}

	for i := range rules {
		rules[i].ID = i + 1
	}
	return rules
}
