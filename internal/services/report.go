// Package services wires storage, the insight engine, and the narrator
// into the operations the HTTP layer and the worker call.
package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"fintel/internal/core"
	"fintel/internal/log"
)

// ErrBudgetNotFound marks a monthly report request for a month the user
// never budgeted. The HTTP layer maps it to 404.
var ErrBudgetNotFound = errors.New("no budget found for month")

// Store is the read surface the report service needs.
type Store interface {
	FetchMonthBudget(ctx context.Context, userID string, month core.Month) (*core.BudgetRow, error)
	FetchEntriesForMonth(ctx context.Context, userID string, month core.Month) ([]core.Entry, error)
	FetchEntriesForRange(ctx context.Context, userID string, start, end time.Time) ([]core.Entry, error)
}

// ReportService computes monthly and weekly insight reports.
type ReportService struct {
	store  Store
	logger *log.Logger
}

func NewReportService(store Store, logger *log.Logger) *ReportService {
	return &ReportService{
		store:  store,
		logger: logger.WithComponent("report-service"),
	}
}

// MonthlyReport computes the insight report for one calendar month. The
// month must have a stored budget. With includeCompare set, the previous
// month is recomputed and attached as compare_prev.
func (s *ReportService) MonthlyReport(ctx context.Context, userID string, month core.Month, includeCompare bool) (*core.Insights, error) {
	budget, err := s.store.FetchMonthBudget(ctx, userID, month)
	if err != nil {
		return nil, fmt.Errorf("fetch budget: %w", err)
	}
	if budget == nil {
		return nil, fmt.Errorf("%w: %s", ErrBudgetNotFound, month)
	}

	entries, err := s.store.FetchEntriesForMonth(ctx, userID, month)
	if err != nil {
		return nil, fmt.Errorf("fetch entries: %w", err)
	}

	ins := core.ComputeInsights(entries, budget, core.PeriodMonth, month.String())

	if includeCompare {
		cmp, err := s.compareToPrevious(ctx, userID, month, ins.SpentTotal)
		if err != nil {
			// Comparison is additive context; a failure there should not
			// sink the report.
			s.logger.Warn("Previous-month comparison failed", "user_id", userID, "month", month.String(), "error", err)
		} else {
			ins.ComparePrev = cmp
		}
	}

	s.logger.Debug("Monthly report computed",
		"user_id", userID, "month", month.String(),
		"spent", ins.SpentTotal, "warnings", len(ins.Warnings))
	return ins, nil
}

func (s *ReportService) compareToPrevious(ctx context.Context, userID string, month core.Month, spentNow float64) (*core.Comparison, error) {
	prev := month.Prev()

	budget, err := s.store.FetchMonthBudget(ctx, userID, prev)
	if err != nil {
		return nil, fmt.Errorf("fetch previous budget: %w", err)
	}
	entries, err := s.store.FetchEntriesForMonth(ctx, userID, prev)
	if err != nil {
		return nil, fmt.Errorf("fetch previous entries: %w", err)
	}

	prevIns := core.ComputeInsights(entries, budget, core.PeriodMonth, prev.String())

	cmp := &core.Comparison{
		PrevMonth: prev.String(),
		SpentPrev: prevIns.SpentTotal,
	}
	if prevIns.SpentTotal > 0 {
		pct := roundPct((spentNow - prevIns.SpentTotal) / prevIns.SpentTotal * 100)
		cmp.SpentChangePct = &pct
	}
	return cmp, nil
}

// WeeklyReport computes the insight report for [start, end). The budget
// is the day-weighted share of the stored monthly budgets overlapping
// the range, so week reports stay meaningful across month boundaries.
func (s *ReportService) WeeklyReport(ctx context.Context, userID string, start, end time.Time) (*core.Insights, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("%w: range end must be after start", core.ErrInvalidPeriod)
	}

	budgetAmount, err := core.ProrateMonthlyBudget(ctx, s.store, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("prorate budget: %w", err)
	}

	entries, err := s.store.FetchEntriesForRange(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch entries: %w", err)
	}

	var budget *core.BudgetRow
	if budgetAmount > 0 {
		budget = &core.BudgetRow{UserID: userID, BudgetAmount: budgetAmount}
	}

	key := RangeKey(start, end)
	ins := core.ComputeInsights(entries, budget, core.PeriodWeek, key)

	s.logger.Debug("Weekly report computed",
		"user_id", userID, "range", key,
		"spent", ins.SpentTotal, "warnings", len(ins.Warnings))
	return ins, nil
}

// RangeKey renders the period key for an arbitrary [start, end) range.
func RangeKey(start, end time.Time) string {
	return start.UTC().Format("2006-01-02") + ".." + end.UTC().Format("2006-01-02")
}

// LastWeekRange returns the default weekly window: the seven days ending
// at the start of tomorrow, so today's entries are included.
func LastWeekRange(now time.Time) (time.Time, time.Time) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end := day.AddDate(0, 0, 1)
	return end.AddDate(0, 0, -7), end
}

func roundPct(v float64) float64 {
	return math.Round(v*100) / 100
}
