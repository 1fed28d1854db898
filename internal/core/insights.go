package core

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Period values echoed back in the insights result.
const (
	PeriodMonth = "month"
	PeriodWeek  = "week"
)

// Warning codes, in evaluation order.
const (
	WarnOverBudget         = "OVER_BUDGET"
	WarnRentHigh           = "RENT_HIGH"
	WarnDiscretionaryHigh  = "DISCRETIONARY_HIGH"
	WarnRestaurantFoodHigh = "RESTAURANT_FOOD_HIGH"
	WarnSpikeDetected      = "SPIKE_DETECTED"
)

// Threshold rules behind the warning codes.
const (
	rentBudgetShareLimit    = 0.45
	discretionaryShareLimit = 0.35
	discretionaryFloor      = 10000.0
	restaurantShareLimit    = 0.15
	restaurantFloor         = 8000.0
	spikeMultiplier         = 2.5
	spikeFloor              = 5000.0
)

// funds_transfer moves money rather than spending it, so it is excluded
// from every total.
var excludedCategories = map[string]bool{
	CategoryFundsTransfer: true,
}

// Non-essential buckets counted as discretionary outright. Restaurant
// food joins them via the food classifier.
var discretionaryBase = map[string]bool{
	CategoryShopping: true,
	"entertainment":  true,
	"charity":        true,
	"subscriptions":  true,
	"travel":         true,
}

// CategoryAmount is one entry of the top-category ranking.
type CategoryAmount struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
}

// Comparison relates the current report to the previous month.
type Comparison struct {
	PrevMonth      string   `json:"prev_month"`
	SpentPrev      float64  `json:"spent_prev"`
	SpentChangePct *float64 `json:"spent_change_pct"`
}

// Insights is the computed report for one period. It is ephemeral: the
// engine never persists it.
type Insights struct {
	Period              string             `json:"period"`
	PeriodKey           string             `json:"period_key"`
	HomeCity            string             `json:"home_city,omitempty"`
	BudgetAmount        float64            `json:"budget_amount"`
	SpentTotal          float64            `json:"spent_total"`
	Remaining           float64            `json:"remaining"`
	TotalsByCategory    map[string]float64 `json:"totals_by_category"`
	TopCategories       []CategoryAmount   `json:"top_categories"`
	DiscretionaryTotal  float64            `json:"discretionary_total"`
	RestaurantFoodTotal float64            `json:"restaurant_food_total"`
	Warnings            []string           `json:"warnings"`
	Actions             []string           `json:"actions"`
	ComparePrev         *Comparison        `json:"compare_prev,omitempty"`
}

// ComputeInsights folds entries plus a budget row into the period report.
// It is a pure single-pass computation: a malformed entry timestamp only
// drops that entry from daily bucketing, never aborts the report.
func ComputeInsights(entries []Entry, budget *BudgetRow, period, periodKey string) *Insights {
	var budgetAmount float64
	var homeCity string
	if budget != nil {
		budgetAmount = budget.BudgetAmount
		homeCity = budget.HomeCity
	}

	var spent, discretionary, restaurantFood float64
	totals := make(map[string]float64)
	var catOrder []string
	daily := make(map[string]float64)

	for _, e := range entries {
		if e.Amount <= 0 {
			continue
		}

		cat := NormalizeCategory(e)
		if excludedCategories[cat] {
			continue
		}

		spent += e.Amount
		if _, seen := totals[cat]; !seen {
			catOrder = append(catOrder, cat)
		}
		totals[cat] += e.Amount

		if ts, ok := ParseTimestamp(e.CreatedAt); ok {
			daily[ts.UTC().Format("2006-01-02")] += e.Amount
		}

		if discretionaryBase[cat] {
			discretionary += e.Amount
		}

		if cat == CategoryFood {
			// Restaurant food is itself discretionary, so it counts into
			// both totals. Downstream consumers rely on this.
			if unnecessary, _ := ClassifyFood(e); unnecessary {
				restaurantFood += e.Amount
				discretionary += e.Amount
			}
		}
	}

	ranked := make([]CategoryAmount, 0, len(catOrder))
	for _, cat := range catOrder {
		ranked = append(ranked, CategoryAmount{Category: cat, Amount: totals[cat]})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Amount > ranked[j].Amount })
	if len(ranked) > 5 {
		ranked = ranked[:5]
	}
	top := make([]CategoryAmount, len(ranked))
	for i, ca := range ranked {
		top[i] = CategoryAmount{Category: ca.Category, Amount: round2(ca.Amount)}
	}

	warnings := []string{}
	if budgetAmount > 0 && spent > budgetAmount {
		warnings = append(warnings, WarnOverBudget)
	}
	rent := totals[CategoryRent]
	if budgetAmount > 0 && rent/budgetAmount >= rentBudgetShareLimit {
		warnings = append(warnings, WarnRentHigh)
	}
	if spent > 0 && discretionary/spent >= discretionaryShareLimit && discretionary >= discretionaryFloor {
		warnings = append(warnings, WarnDiscretionaryHigh)
	}
	if spent > 0 && restaurantFood/spent >= restaurantShareLimit && restaurantFood >= restaurantFloor {
		warnings = append(warnings, WarnRestaurantFoodHigh)
	}
	if len(daily) > 0 {
		var sum, max float64
		for _, v := range daily {
			sum += v
			if v > max {
				max = v
			}
		}
		avg := sum / float64(len(daily))
		if avg > 0 && max >= avg*spikeMultiplier && max >= spikeFloor {
			warnings = append(warnings, WarnSpikeDetected)
		}
	}

	actions := []string{}
	for _, w := range warnings {
		switch w {
		case WarnOverBudget:
			if budgetAmount > 0 {
				actions = append(actions, fmt.Sprintf(
					"You are over budget by Rs. %s. Cut discretionary categories first.",
					formatWhole(spent-budgetAmount)))
			}
		case WarnRentHigh:
			if budgetAmount > 0 {
				actions = append(actions, "Rent is taking a very large share of your budget. Consider negotiating rent, sharing accommodation, or relocating.")
			}
		case WarnDiscretionaryHigh:
			actions = append(actions, "Discretionary spending is high. Set a weekly cap and review non-essential transactions.")
		case WarnRestaurantFoodHigh:
			actions = append(actions, "Restaurant/delivery food is high. Reduce dine-out frequency or switch to home meals for savings.")
		case WarnSpikeDetected:
			actions = append(actions, "A spending spike was detected on one day. Review that day's transactions and tag the cause (shopping, dining, bills, etc.).")
		}
	}

	roundedTotals := make(map[string]float64, len(totals))
	for cat, v := range totals {
		roundedTotals[cat] = round2(v)
	}

	remaining := 0.0
	if budgetAmount > 0 {
		remaining = budgetAmount - spent
	}

	return &Insights{
		Period:              period,
		PeriodKey:           periodKey,
		HomeCity:            homeCity,
		BudgetAmount:        round2(budgetAmount),
		SpentTotal:          round2(spent),
		Remaining:           round2(remaining),
		TotalsByCategory:    roundedTotals,
		TopCategories:       top,
		DiscretionaryTotal:  round2(discretionary),
		RestaurantFoodTotal: round2(restaurantFood),
		Warnings:            warnings,
		Actions:             actions,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// formatWhole renders an amount rounded to whole units with thousands
// separators, e.g. 10000.4 -> "10,000".
func formatWhole(v float64) string {
	n := int64(math.Round(v))
	neg := n < 0
	if neg {
		n = -n
	}
	s := strconv.FormatInt(n, 10)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	if neg {
		return "-" + s
	}
	return s
}
