package core

import (
	"context"
	"fmt"
	"time"
)

// BudgetSource looks up a user's stored budget for one month. An absent
// row is (nil, nil), not an error.
type BudgetSource interface {
	FetchMonthBudget(ctx context.Context, userID string, month Month) (*BudgetRow, error)
}

// ProrateMonthlyBudget computes a time-weighted budget for [start, end).
// Budgets are stored per calendar month; weekly and arbitrary-range
// reports get a linear day-based apportionment across month boundaries:
// each overlapping month contributes budget/daysInMonth per covered day.
// Months with no row or a non-positive budget contribute nothing.
func ProrateMonthlyBudget(ctx context.Context, src BudgetSource, userID string, start, end time.Time) (float64, error) {
	if !end.After(start) {
		return 0, nil
	}

	total := 0.0
	for _, m := range MonthsInRange(start, end) {
		row, err := src.FetchMonthBudget(ctx, userID, m)
		if err != nil {
			return 0, fmt.Errorf("fetch budget for %s: %w", m, err)
		}
		if row == nil || row.BudgetAmount <= 0 {
			continue
		}

		monthStart, monthEnd := m.Bounds()
		overlapStart := maxTime(start, monthStart)
		overlapEnd := minTime(end, monthEnd)
		if !overlapEnd.After(overlapStart) {
			continue
		}

		daysInMonth := wholeDays(monthStart, monthEnd)
		overlapDays := wholeDays(overlapStart, overlapEnd)
		if daysInMonth <= 0 || overlapDays <= 0 {
			continue
		}

		total += (row.BudgetAmount / float64(daysInMonth)) * float64(overlapDays)
	}

	return round2(total), nil
}

func wholeDays(from, to time.Time) int {
	return int(to.Sub(from) / (24 * time.Hour))
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
