package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"fintel/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository serves the read contract of the insight engine and
// persists generated narrations.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// FetchMonthBudget implements core.BudgetSource. An absent row is
// (nil, nil): missing budgets mean "no constraint", not failure.
func (r *SQLiteRepository) FetchMonthBudget(ctx context.Context, userID string, month core.Month) (*core.BudgetRow, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, month, amount, home_city
		FROM monthly_budgets
		WHERE user_id = ? AND month = ?
		LIMIT 1`,
		userID, month.String())

	var b core.BudgetRow
	var amount sql.NullFloat64
	var homeCity sql.NullString
	if err := row.Scan(&b.UserID, &b.Month, &amount, &homeCity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch month budget: %w", err)
	}
	b.BudgetAmount = amount.Float64
	b.HomeCity = homeCity.String
	return &b, nil
}

// FetchEntriesForMonth returns the user's entries for the month in
// created_at order.
func (r *SQLiteRepository) FetchEntriesForMonth(ctx context.Context, userID string, month core.Month) ([]core.Entry, error) {
	start, end := month.Bounds()
	return r.FetchEntriesForRange(ctx, userID, start, end)
}

// FetchEntriesForRange returns the user's entries with a created_at date
// inside [start, end), in created_at order. Comparison is on the date
// portion so mixed ISO timestamp shapes all bucket correctly.
func (r *SQLiteRepository) FetchEntriesForRange(ctx context.Context, userID string, start, end time.Time) ([]core.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, entry_type, category, title, amount,
		       created_at, raw_text, beneficiary_name, category_normalized
		FROM entries
		WHERE user_id = ?
		  AND substr(created_at, 1, 10) >= ?
		  AND substr(created_at, 1, 10) < ?
		ORDER BY created_at ASC`,
		userID, start.UTC().Format("2006-01-02"), end.UTC().Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []core.Entry
	for rows.Next() {
		var e core.Entry
		var id int64
		var entryType, category, title, createdAt, rawText, beneficiary, catNorm sql.NullString
		var amount sql.NullFloat64
		if err := rows.Scan(&id, &e.UserID, &entryType, &category, &title, &amount,
			&createdAt, &rawText, &beneficiary, &catNorm); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.ID = fmt.Sprintf("%d", id)
		e.EntryType = entryType.String
		e.Category = category.String
		e.Title = title.String
		e.Amount = amount.Float64
		e.CreatedAt = createdAt.String
		e.RawText = rawText.String
		e.BeneficiaryName = beneficiary.String
		e.CategoryNormalized = catNorm.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// UpsertMonthBudget creates or replaces a user's budget for one month.
func (r *SQLiteRepository) UpsertMonthBudget(ctx context.Context, b core.BudgetRow) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO monthly_budgets (user_id, month, amount, home_city)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, month)
		DO UPDATE SET amount = excluded.amount, home_city = excluded.home_city`,
		b.UserID, b.Month, b.BudgetAmount, b.HomeCity)
	if err != nil {
		return fmt.Errorf("upsert month budget: %w", err)
	}
	return nil
}

// InsertEntry records one transaction entry and returns its ID.
func (r *SQLiteRepository) InsertEntry(ctx context.Context, e core.Entry) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO entries (user_id, entry_type, category, title, amount,
		                     created_at, raw_text, beneficiary_name, category_normalized)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.EntryType, e.Category, e.Title, e.Amount,
		e.CreatedAt, e.RawText, e.BeneficiaryName, e.CategoryNormalized)
	if err != nil {
		return 0, fmt.Errorf("insert entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("entry id: %w", err)
	}
	return id, nil
}

// NarrationRecord is one persisted LLM narration, keyed by the
// fingerprint-derived cache key.
type NarrationRecord struct {
	CacheKey    string
	UserID      string
	Period      string
	PeriodKey   string
	Fingerprint string
	Payload     []byte
	CreatedAt   time.Time
}

// SaveNarration stores a narration, replacing any previous one under the
// same cache key.
func (r *SQLiteRepository) SaveNarration(ctx context.Context, rec NarrationRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO narrations (cache_key, user_id, period, period_key, fingerprint, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (cache_key)
		DO UPDATE SET payload = excluded.payload, created_at = excluded.created_at`,
		rec.CacheKey, rec.UserID, rec.Period, rec.PeriodKey, rec.Fingerprint,
		string(rec.Payload), createdAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save narration: %w", err)
	}
	return nil
}

// GetNarration returns the stored narration for the cache key, or
// (nil, nil) when there is none.
func (r *SQLiteRepository) GetNarration(ctx context.Context, cacheKey string) (*NarrationRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT cache_key, user_id, period, period_key, fingerprint, payload, created_at
		FROM narrations
		WHERE cache_key = ?
		LIMIT 1`,
		cacheKey)

	var rec NarrationRecord
	var payload, createdAt string
	if err := row.Scan(&rec.CacheKey, &rec.UserID, &rec.Period, &rec.PeriodKey,
		&rec.Fingerprint, &payload, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get narration: %w", err)
	}
	rec.Payload = []byte(payload)
	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		rec.CreatedAt = ts
	}
	return &rec, nil
}

// DeleteNarrationsBefore prunes narrations older than the cutoff and
// returns how many were removed.
func (r *SQLiteRepository) DeleteNarrationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM narrations WHERE created_at < ?`,
		cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("prune narrations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune narrations count: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Pruned stale narrations", "removed", n, "cutoff", cutoff.Format(time.RFC3339))
	}
	return n, nil
}
