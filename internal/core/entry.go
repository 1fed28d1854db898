package core

import (
	"strings"
	"time"
)

// Entry is one recorded transaction, read-only to the engine. Entries are
// created by an external ingestion process; the engine never mutates or
// persists them.
type Entry struct {
	ID                 string
	UserID             string
	EntryType          string
	Category           string
	CategoryNormalized string
	Title              string
	BeneficiaryName    string
	RawText            string
	Amount             float64
	// CreatedAt keeps the stored timestamp verbatim. A value that does not
	// parse only excludes the entry from daily bucketing, never from totals.
	CreatedAt string
}

// BudgetRow is one user's monthly budget, keyed by (user, month).
type BudgetRow struct {
	UserID       string
	Month        string
	BudgetAmount float64
	HomeCity     string
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses the common ISO-8601 shapes entries arrive with,
// with or without an offset. Offset-less values are taken as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// textBlob concatenates the entry's descriptive fields into a single
// lower-cased search target for the keyword classifiers.
func (e Entry) textBlob() string {
	parts := make([]string, 0, 5)
	for _, p := range []string{e.Title, e.BeneficiaryName, e.RawText, e.Category, e.CategoryNormalized} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}
