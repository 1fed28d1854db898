package worker

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"fintel/internal/amqp"
	"fintel/internal/cache"
	"fintel/internal/core"
	"fintel/internal/llm"
	"fintel/internal/log"
	"fintel/internal/services"
	"fintel/internal/storage"
)

type fakeStore struct {
	budgets map[string]core.BudgetRow
	entries []core.Entry
}

func (f *fakeStore) FetchMonthBudget(_ context.Context, userID string, month core.Month) (*core.BudgetRow, error) {
	b, ok := f.budgets[userID+"/"+month.String()]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (f *fakeStore) FetchEntriesForMonth(ctx context.Context, userID string, month core.Month) ([]core.Entry, error) {
	start, end := month.Bounds()
	return f.FetchEntriesForRange(ctx, userID, start, end)
}

func (f *fakeStore) FetchEntriesForRange(_ context.Context, userID string, start, end time.Time) ([]core.Entry, error) {
	var out []core.Entry
	for _, e := range f.entries {
		ts, ok := core.ParseTimestamp(e.CreatedAt)
		if !ok || e.UserID != userID {
			continue
		}
		if !ts.Before(start) && ts.Before(end) {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeNarrator struct {
	calls int
}

func (f *fakeNarrator) Summarize(_ context.Context, _ *core.Insights) (*llm.Narration, error) {
	f.calls++
	return &llm.Narration{Headline: "ok", RiskLevel: "low"}, nil
}

type fakeNarrationStore struct {
	saved map[string]storage.NarrationRecord
}

func (f *fakeNarrationStore) SaveNarration(_ context.Context, rec storage.NarrationRecord) error {
	f.saved[rec.CacheKey] = rec
	return nil
}

func (f *fakeNarrationStore) GetNarration(_ context.Context, key string) (*storage.NarrationRecord, error) {
	rec, ok := f.saved[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

type fakePruner struct {
	cutoffs []time.Time
}

func (f *fakePruner) DeleteNarrationsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return 1, nil
}

func newTestWorker(store *fakeStore) (*NarrationWorker, *fakeNarrator, *fakeNarrationStore) {
	logger := log.New(log.Config{Level: slog.LevelError, Component: "test"})
	narrator := &fakeNarrator{}
	narrStore := &fakeNarrationStore{saved: make(map[string]storage.NarrationRecord)}
	reports := services.NewReportService(store, logger)
	narrations := services.NewNarrationService(narrStore, narrator, cache.New[*llm.Narration](10, time.Minute), logger)
	return NewNarrationWorker(reports, narrations, &fakePruner{}, time.Hour, logger), narrator, narrStore
}

func TestHandleReportMessage_Month(t *testing.T) {
	store := &fakeStore{
		budgets: map[string]core.BudgetRow{
			"u1/2025-08": {UserID: "u1", Month: "2025-08", BudgetAmount: 50000},
		},
		entries: []core.Entry{
			{UserID: "u1", Category: "Grocery", Amount: 5000, CreatedAt: "2025-08-05T10:00:00Z"},
		},
	}
	w, narrator, narrStore := newTestWorker(store)

	msg := &amqp.ReportGeneratedMessage{UserID: "u1", Period: "month", PeriodKey: "2025-08"}
	if err := w.HandleReportMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleReportMessage() error = %v", err)
	}
	if narrator.calls != 1 {
		t.Errorf("narrator called %d times, want 1", narrator.calls)
	}
	if len(narrStore.saved) != 1 {
		t.Errorf("saved %d narrations, want 1", len(narrStore.saved))
	}

	// Redelivery hits the memoized narration.
	if err := w.HandleReportMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleReportMessage() redelivery error = %v", err)
	}
	if narrator.calls != 1 {
		t.Errorf("narrator called %d times after redelivery, want 1", narrator.calls)
	}
}

func TestHandleReportMessage_Week(t *testing.T) {
	store := &fakeStore{
		budgets: map[string]core.BudgetRow{
			"u1/2025-08": {UserID: "u1", Month: "2025-08", BudgetAmount: 31000},
		},
	}
	w, narrator, _ := newTestWorker(store)

	msg := &amqp.ReportGeneratedMessage{UserID: "u1", Period: "week", PeriodKey: "2025-08-10..2025-08-17"}
	if err := w.HandleReportMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleReportMessage() error = %v", err)
	}
	if narrator.calls != 1 {
		t.Errorf("narrator called %d times, want 1", narrator.calls)
	}
}

func TestHandleReportMessage_MissingBudget(t *testing.T) {
	w, narrator, _ := newTestWorker(&fakeStore{budgets: map[string]core.BudgetRow{}})

	// A month without a budget is dropped, not requeued.
	msg := &amqp.ReportGeneratedMessage{UserID: "u1", Period: "month", PeriodKey: "2025-08"}
	if err := w.HandleReportMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleReportMessage() error = %v, want nil", err)
	}
	if narrator.calls != 0 {
		t.Errorf("narrator called %d times, want 0", narrator.calls)
	}
}

func TestHandleReportMessage_BadPeriod(t *testing.T) {
	w, _, _ := newTestWorker(&fakeStore{})

	tests := []struct {
		name string
		msg  *amqp.ReportGeneratedMessage
	}{
		{"unknown period", &amqp.ReportGeneratedMessage{UserID: "u1", Period: "quarter", PeriodKey: "2025-Q3"}},
		{"bad month key", &amqp.ReportGeneratedMessage{UserID: "u1", Period: "month", PeriodKey: "august"}},
		{"bad range key", &amqp.ReportGeneratedMessage{UserID: "u1", Period: "week", PeriodKey: "2025-08-10"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := w.HandleReportMessage(context.Background(), tt.msg); err == nil {
				t.Error("HandleReportMessage() should fail")
			}
		})
	}
}

func TestParseRangeKey(t *testing.T) {
	start, end, err := parseRangeKey("2025-08-10..2025-08-17")
	if err != nil {
		t.Fatalf("parseRangeKey() error = %v", err)
	}
	if !start.Equal(time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", start)
	}
	if !end.Equal(time.Date(2025, 8, 17, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("end = %v", end)
	}

	for _, bad := range []string{"", "2025-08-10", "a..b", "2025-08-10..nope"} {
		if _, _, err := parseRangeKey(bad); err == nil {
			t.Errorf("parseRangeKey(%q) should fail", bad)
		}
	}
}

func TestPruneOnce(t *testing.T) {
	logger := log.New(log.Config{Level: slog.LevelError, Component: "test"})
	pruner := &fakePruner{}
	w := NewNarrationWorker(nil, nil, pruner, 24*time.Hour, logger)

	w.pruneOnce(context.Background())

	if len(pruner.cutoffs) != 1 {
		t.Fatalf("pruner called %d times, want 1", len(pruner.cutoffs))
	}
	age := time.Since(pruner.cutoffs[0])
	if age < 23*time.Hour || age > 25*time.Hour {
		t.Errorf("cutoff age = %v, want about 24h", age)
	}
}
