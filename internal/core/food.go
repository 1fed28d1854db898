package core

import "strings"

// FoodExpensiveThreshold is the amount above which an unlabeled food
// entry is assumed to be dine-out.
const FoodExpensiveThreshold = 1800.0

// Reason codes returned by ClassifyFood.
const (
	ReasonHomeFoodKeyword   = "home_food_keyword"
	ReasonRestaurantKeyword = "restaurant_keyword"
	ReasonExpensiveFood     = "expensive_food_amount"
	ReasonUnknownFoodType   = "unknown_food_type"
)

var restaurantKeywords = []string{
	"kfc", "mcdonald", "mc donald", "dominos", "domino", "pizza", "burger", "shawarma",
	"restaurant", "cafe", "coffee", "bistro", "foodpanda", "food panda", "careem food",
	"delivery", "dine", "bbq", "karahi", "nihari",
}

var homeFoodKeywords = []string{
	"grocery", "super", "mart", "store", "cash&carry", "cash and carry", "imtiyaz", "metro",
	"utility store", "ration", "kirana",
}

// foodRule is one ordered classification step: first rule whose predicate
// matches decides the outcome. The home-food check deliberately precedes
// the restaurant check.
type foodRule struct {
	matches     func(blob string, amount float64) bool
	unnecessary bool
	reason      string
}

var foodRules = []foodRule{
	{
		matches:     func(blob string, _ float64) bool { return containsAny(blob, homeFoodKeywords) },
		unnecessary: false,
		reason:      ReasonHomeFoodKeyword,
	},
	{
		matches:     func(blob string, _ float64) bool { return containsAny(blob, restaurantKeywords) },
		unnecessary: true,
		reason:      ReasonRestaurantKeyword,
	},
	{
		matches:     func(_ string, amount float64) bool { return amount >= FoodExpensiveThreshold },
		unnecessary: true,
		reason:      ReasonExpensiveFood,
	},
}

// ClassifyFood decides whether a food entry looks like restaurant or
// delivery spend (unnecessary) rather than home or grocery spend. Small
// unlabeled food spend gets the benefit of the doubt.
func ClassifyFood(e Entry) (bool, string) {
	blob := e.textBlob()
	for _, rule := range foodRules {
		if rule.matches(blob, e.Amount) {
			return rule.unnecessary, rule.reason
		}
	}
	return false, ReasonUnknownFoodType
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
