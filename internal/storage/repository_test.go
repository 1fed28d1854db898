package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"fintel/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "fintel_test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestFetchMonthBudget(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	got, err := repo.FetchMonthBudget(ctx, "u1", core.Month{Year: 2025, Month: time.August})
	if err != nil {
		t.Fatalf("FetchMonthBudget() error = %v", err)
	}
	if got != nil {
		t.Fatalf("FetchMonthBudget() = %+v, want nil for absent row", got)
	}

	want := core.BudgetRow{UserID: "u1", Month: "2025-08", BudgetAmount: 50000, HomeCity: "Lahore"}
	if err := repo.UpsertMonthBudget(ctx, want); err != nil {
		t.Fatalf("UpsertMonthBudget() error = %v", err)
	}

	got, err = repo.FetchMonthBudget(ctx, "u1", core.Month{Year: 2025, Month: time.August})
	if err != nil {
		t.Fatalf("FetchMonthBudget() error = %v", err)
	}
	if got == nil || *got != want {
		t.Errorf("FetchMonthBudget() = %+v, want %+v", got, want)
	}

	// Upsert replaces the existing row.
	want.BudgetAmount = 60000
	if err := repo.UpsertMonthBudget(ctx, want); err != nil {
		t.Fatalf("UpsertMonthBudget() update error = %v", err)
	}
	got, err = repo.FetchMonthBudget(ctx, "u1", core.Month{Year: 2025, Month: time.August})
	if err != nil {
		t.Fatalf("FetchMonthBudget() error = %v", err)
	}
	if got.BudgetAmount != 60000 {
		t.Errorf("BudgetAmount after upsert = %v, want 60000", got.BudgetAmount)
	}
}

func TestFetchEntriesForMonth(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	seed := []core.Entry{
		{UserID: "u1", Category: "Grocery", Amount: 1200, CreatedAt: "2025-08-03T10:00:00Z"},
		{UserID: "u1", Category: "Food", Title: "KFC", Amount: 900, CreatedAt: "2025-08-01 09:30:00"},
		{UserID: "u1", Category: "Rent", Amount: 20000, CreatedAt: "2025-07-31T23:00:00Z"},
		{UserID: "u2", Category: "Fuel", Amount: 3000, CreatedAt: "2025-08-05T12:00:00Z"},
	}
	for _, e := range seed {
		if _, err := repo.InsertEntry(ctx, e); err != nil {
			t.Fatalf("InsertEntry() error = %v", err)
		}
	}

	got, err := repo.FetchEntriesForMonth(ctx, "u1", core.Month{Year: 2025, Month: time.August})
	if err != nil {
		t.Fatalf("FetchEntriesForMonth() error = %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("FetchEntriesForMonth() returned %d entries, want 2", len(got))
	}
	// created_at ascending: the space-separated timestamp on 08-01 first.
	if got[0].Title != "KFC" || got[1].Category != "Grocery" {
		t.Errorf("entries out of order: %+v", got)
	}
	for _, e := range got {
		if e.UserID != "u1" {
			t.Errorf("entry for wrong user: %+v", e)
		}
	}
}

func TestFetchEntriesForRange(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for day := 1; day <= 10; day++ {
		e := core.Entry{
			UserID:    "u1",
			Category:  "Grocery",
			Amount:    100,
			CreatedAt: time.Date(2025, 8, day, 12, 0, 0, 0, time.UTC).Format(time.RFC3339),
		}
		if _, err := repo.InsertEntry(ctx, e); err != nil {
			t.Fatalf("InsertEntry() error = %v", err)
		}
	}

	start := time.Date(2025, 8, 3, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 8, 7, 0, 0, 0, 0, time.UTC)
	got, err := repo.FetchEntriesForRange(ctx, "u1", start, end)
	if err != nil {
		t.Fatalf("FetchEntriesForRange() error = %v", err)
	}
	if len(got) != 4 {
		t.Errorf("FetchEntriesForRange() returned %d entries, want 4 (days 3-6)", len(got))
	}
}

func TestNarrationRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	got, err := repo.GetNarration(ctx, "missing")
	if err != nil {
		t.Fatalf("GetNarration() error = %v", err)
	}
	if got != nil {
		t.Fatalf("GetNarration() = %+v, want nil for absent key", got)
	}

	rec := NarrationRecord{
		CacheKey:    "u1::month::2025-08::abc123",
		UserID:      "u1",
		Period:      "month",
		PeriodKey:   "2025-08",
		Fingerprint: "abc123",
		Payload:     []byte(`{"headline":"ok"}`),
		CreatedAt:   time.Date(2025, 8, 20, 10, 0, 0, 0, time.UTC),
	}
	if err := repo.SaveNarration(ctx, rec); err != nil {
		t.Fatalf("SaveNarration() error = %v", err)
	}

	got, err = repo.GetNarration(ctx, rec.CacheKey)
	if err != nil {
		t.Fatalf("GetNarration() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetNarration() = nil after save")
	}
	if string(got.Payload) != string(rec.Payload) || got.Fingerprint != rec.Fingerprint {
		t.Errorf("GetNarration() = %+v, want %+v", got, rec)
	}
}

func TestDeleteNarrationsBefore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	old := NarrationRecord{
		CacheKey: "old", UserID: "u1", Period: "month", PeriodKey: "2025-06",
		Fingerprint: "f1", Payload: []byte("{}"),
		CreatedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	fresh := NarrationRecord{
		CacheKey: "fresh", UserID: "u1", Period: "month", PeriodKey: "2025-08",
		Fingerprint: "f2", Payload: []byte("{}"),
		CreatedAt: time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC),
	}
	for _, rec := range []NarrationRecord{old, fresh} {
		if err := repo.SaveNarration(ctx, rec); err != nil {
			t.Fatalf("SaveNarration() error = %v", err)
		}
	}

	n, err := repo.DeleteNarrationsBefore(ctx, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("DeleteNarrationsBefore() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteNarrationsBefore() = %d, want 1", n)
	}

	if got, _ := repo.GetNarration(ctx, "old"); got != nil {
		t.Error("old narration should have been pruned")
	}
	if got, _ := repo.GetNarration(ctx, "fresh"); got == nil {
		t.Error("fresh narration should have survived pruning")
	}
}
