// Package worker pre-generates report narrations in the background so
// interactive requests mostly hit the cache instead of the model.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fintel/internal/amqp"
	"fintel/internal/core"
	"fintel/internal/log"
	"fintel/internal/services"
)

// NarrationPruner removes persisted narrations older than a cutoff.
type NarrationPruner interface {
	DeleteNarrationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NarrationWorker consumes report events, recomputes the report from
// storage, and warms the narration cache for it. It also prunes stale
// narrations on a timer so the table cannot grow without bound.
type NarrationWorker struct {
	reports    *services.ReportService
	narrations *services.NarrationService
	pruner     NarrationPruner
	maxAge     time.Duration
	logger     *log.Logger
}

func NewNarrationWorker(reports *services.ReportService, narrations *services.NarrationService, pruner NarrationPruner, maxAge time.Duration, logger *log.Logger) *NarrationWorker {
	return &NarrationWorker{
		reports:    reports,
		narrations: narrations,
		pruner:     pruner,
		maxAge:     maxAge,
		logger:     logger.WithComponent("narration-worker"),
	}
}

// HandleReportMessage recomputes the report named by the message and
// generates its narration. Narration memoization makes duplicate
// deliveries cheap.
func (w *NarrationWorker) HandleReportMessage(ctx context.Context, msg *amqp.ReportGeneratedMessage) error {
	ins, err := w.recompute(ctx, msg)
	if err != nil {
		if errors.Is(err, services.ErrBudgetNotFound) {
			// The budget was deleted between publish and delivery. Nothing
			// to narrate; requeueing would loop forever.
			w.logger.Warn("Report no longer computable, dropping message",
				"user_id", msg.UserID, "period_key", msg.PeriodKey)
			return nil
		}
		return fmt.Errorf("recompute report: %w", err)
	}

	n, err := w.narrations.Narrate(ctx, msg.UserID, ins)
	if err != nil {
		return fmt.Errorf("narrate report: %w", err)
	}
	if n == nil {
		w.logger.Debug("Narration unavailable, will retry on next report",
			"user_id", msg.UserID, "period_key", msg.PeriodKey)
		return nil
	}

	w.logger.Info("Narration warmed",
		"user_id", msg.UserID, "period", msg.Period, "period_key", msg.PeriodKey)
	return nil
}

func (w *NarrationWorker) recompute(ctx context.Context, msg *amqp.ReportGeneratedMessage) (*core.Insights, error) {
	switch msg.Period {
	case core.PeriodMonth:
		month, err := core.ParseMonth(msg.PeriodKey)
		if err != nil {
			return nil, fmt.Errorf("parse month key %q: %w", msg.PeriodKey, err)
		}
		return w.reports.MonthlyReport(ctx, msg.UserID, month, false)
	case core.PeriodWeek:
		start, end, err := parseRangeKey(msg.PeriodKey)
		if err != nil {
			return nil, err
		}
		return w.reports.WeeklyReport(ctx, msg.UserID, start, end)
	default:
		return nil, fmt.Errorf("unknown period %q", msg.Period)
	}
}

// parseRangeKey inverts services.RangeKey.
func parseRangeKey(key string) (time.Time, time.Time, error) {
	parts := strings.Split(key, "..")
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("malformed range key %q", key)
	}
	start, err := core.ParseDate(parts[0])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("range key start: %w", err)
	}
	end, err := core.ParseDate(parts[1])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("range key end: %w", err)
	}
	return start, end, nil
}

// RunPruneLoop deletes narrations older than maxAge at each interval
// tick until the context ends.
func (w *NarrationWorker) RunPruneLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.pruneOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pruneOnce(ctx)
		}
	}
}

func (w *NarrationWorker) pruneOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-w.maxAge)
	removed, err := w.pruner.DeleteNarrationsBefore(ctx, cutoff)
	if err != nil {
		w.logger.Error("Narration prune failed", "error", err)
		return
	}
	if removed > 0 {
		w.logger.Info("Narration prune completed", "removed", removed)
	}
}
