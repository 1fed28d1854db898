package core

import "strings"

// Fixed semantic buckets produced by normalization.
const (
	CategoryUtility       = "utility"
	CategoryFundsTransfer = "funds_transfer"
	CategoryGrocery       = "grocery"
	CategoryShopping      = "shopping"
	CategoryFuel          = "fuel"
	CategoryFood          = "food"
	CategoryRent          = "rent"
	CategoryOther         = "other"
)

// categoryRule maps raw-category substrings to a bucket. Rules are
// evaluated in order, first match wins, so a category containing both
// "fund" and "food" resolves to funds_transfer.
type categoryRule struct {
	substrings []string
	bucket     string
}

var categoryRules = []categoryRule{
	{[]string{"utility"}, CategoryUtility},
	{[]string{"fund", "transfer"}, CategoryFundsTransfer},
	{[]string{"groc"}, CategoryGrocery},
	{[]string{"shop"}, CategoryShopping},
	{[]string{"fuel", "petrol"}, CategoryFuel},
	{[]string{"food"}, CategoryFood},
	{[]string{"rent"}, CategoryRent},
}

// NormalizeCategory maps an entry's free-text category to a semantic
// bucket. A pre-normalized field, when present, wins verbatim
// (lower-cased). Unmatched non-empty categories pass through lower-cased;
// empty ones become "other".
func NormalizeCategory(e Entry) string {
	if cn := strings.ToLower(strings.TrimSpace(e.CategoryNormalized)); cn != "" {
		return cn
	}

	c := strings.ToLower(strings.TrimSpace(e.Category))
	for _, rule := range categoryRules {
		for _, sub := range rule.substrings {
			if strings.Contains(c, sub) {
				return rule.bucket
			}
		}
	}
	if c == "" {
		return CategoryOther
	}
	return c
}
