// Package catalog holds the static reference data for CartCheck: the health
// goal and dietary restriction menus, number-selection parsing, and the
// curated swap-alternative table.
//
// The catalogs are loaded once at process start and never mutated. The code
// labels are part of the user-visible contract and must match any client
// prompt or UI built against the bot.
package catalog

import (
	"strings"
)

// Goals maps short numeric codes to health goal labels.
var Goals = map[string]string{
	"1": "Lower cholesterol",
	"2": "Lose weight",
	"3": "Manage diabetes",
	"4": "Lower blood pressure",
	"5": "Improve heart health",
	"6": "General wellness",
}

// GoalOrder lists goal codes in menu order.
var GoalOrder = []string{"1", "2", "3", "4", "5", "6"}

// Restrictions maps short numeric codes to dietary restriction labels.
var Restrictions = map[string]string{
	"1": "No salt",
	"2": "No oil",
	"3": "No sugar",
	"4": "No nuts",
	"5": "No dairy",
	"6": "No gluten",
	"7": "No meat",
	"8": "No eggs",
}

// RestrictionOrder lists restriction codes in menu order.
var RestrictionOrder = []string{"1", "2", "3", "4", "5", "6", "7", "8"}

// ParseSelection parses a raw number-selection message against a catalog.
// The input is split on commas and whitespace; tokens that are purely digits
// are mapped through the catalog, unrecognized tokens are dropped silently,
// and duplicates are removed while preserving first-seen order.
func ParseSelection(input string, catalog map[string]string) []string {
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})

	var selected []string
	seen := make(map[string]bool)
	for _, tok := range fields {
		tok = strings.TrimSpace(tok)
		if tok == "" || !isAllDigits(tok) {
			continue
		}
		label, ok := catalog[tok]
		if !ok || seen[label] {
			continue
		}
		seen[label] = true
		selected = append(selected, label)
	}
	return selected
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// SwapRule is a curated pattern-to-alternative mapping for a specific food
// item, independent of the live model-driven suggestions. Flags are
// descriptive metadata and are not consumed by matching logic.
type SwapRule struct {
	Patterns    []string
	Flags       []string
	Alternative string
	Reason      string
}

// SwapRules is the ordered table of human-authored swap suggestions, exposed
// through the "swap <item>" lookup command.
var SwapRules = []SwapRule{
	{
		Patterns:    []string{"kaju katli", "kaju barfi", "cashew", "badam", "almond sweets", "pista"},
		Flags:       []string{"has_nuts", "has_sugar"},
		Alternative: "Frozen chikoo/sapota or fresh mango",
		Reason:      "Naturally sweet, no nuts, heart-healthy fiber",
	},
	{
		Patterns:    []string{"gulab jamun", "jalebi", "rasgulla", "ladoo", "barfi", "mithai"},
		Flags:       []string{"has_sugar", "has_oil"},
		Alternative: "Fresh fruit (mango, papaya, berries)",
		Reason:      "Natural sweetness without added sugar or oil",
	},
	{
		Patterns:    []string{"samosa", "pakora", "bhajiya", "fried"},
		Flags:       []string{"has_oil", "has_salt"},
		Alternative: "Baked sweet potato or air-fried vegetables",
		Reason:      "Satisfying without the oil, rich in nutrients",
	},
	{
		Patterns:    []string{"bhujia", "namkeen", "mixture", "sev", "chips", "crisps"},
		Flags:       []string{"has_oil", "has_salt", "may_have_nuts"},
		Alternative: "Air-popped popcorn (plain) or roasted chickpeas (no oil)",
		Reason:      "Crunchy satisfaction without oil or excess salt",
	},
	{
		Patterns:    []string{"ice cream", "kulfi", "frozen dessert"},
		Flags:       []string{"has_sugar", "has_dairy"},
		Alternative: "Frozen mango or banana chunks (blend for nice cream)",
		Reason:      "Creamy, sweet, whole food",
	},
	{
		Patterns:    []string{"cheese", "paneer"},
		Flags:       []string{"has_dairy", "saturated_fat"},
		Alternative: "Tofu or nutritional yeast",
		Reason:      "Similar texture, no cholesterol",
	},
	{
		Patterns:    []string{"ghee", "butter", "margarine"},
		Flags:       []string{"has_oil", "saturated_fat"},
		Alternative: "Vegetable broth for cooking, or mashed avocado for spreading",
		Reason:      "Flavor without saturated fat",
	},
	{
		Patterns:    []string{"cookies", "biscuits", "cake", "pastry"},
		Flags:       []string{"has_sugar", "has_oil"},
		Alternative: "Homemade oat bites with mashed banana",
		Reason:      "Whole food sweetness, no added sugar or oil",
	},
	{
		Patterns:    []string{"soda", "cola", "soft drink", "energy drink"},
		Flags:       []string{"has_sugar"},
		Alternative: "Sparkling water with lemon or fresh lime soda (no sugar)",
		Reason:      "Refreshing without the sugar spike",
	},
	{
		Patterns:    []string{"white bread", "naan", "roti maida"},
		Flags:       []string{"refined_carbs"},
		Alternative: "Whole wheat bread or whole grain roti",
		Reason:      "More fiber, better for blood sugar",
	},
	{
		Patterns:    []string{"instant noodles", "maggi", "ramen"},
		Flags:       []string{"has_salt", "has_oil", "refined_carbs"},
		Alternative: "Rice noodles with homemade vegetable broth",
		Reason:      "Lower sodium, no palm oil",
	},
	{
		Patterns:    []string{"bacon", "sausage", "hot dog", "salami"},
		Flags:       []string{"has_meat", "has_salt", "saturated_fat"},
		Alternative: "Grilled portobello mushrooms or tempeh",
		Reason:      "Savory, satisfying, plant-based protein",
	},
}

// FindAlternative looks up the first swap rule whose patterns match the given
// item name. Matching is a case-insensitive substring test in both directions
// so that "masala chips" matches "chips" and "kaju" matches "kaju katli".
func FindAlternative(name string) (*SwapRule, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil, false
	}
	for i := range SwapRules {
		for _, pattern := range SwapRules[i].Patterns {
			if strings.Contains(needle, pattern) || strings.Contains(pattern, needle) {
				return &SwapRules[i], true
			}
		}
	}
	return nil, false
}
