package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidPeriod = errors.New("invalid period")
	ErrInvalidDate   = errors.New("invalid date")
)

// Month identifies a calendar month, the unit budgets are stored against.
type Month struct {
	Year  int
	Month time.Month
}

// ParseMonth parses a "YYYY-MM" period key.
func ParseMonth(s string) (Month, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return Month{}, fmt.Errorf("%w: %q is not YYYY-MM", ErrInvalidPeriod, s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return Month{}, fmt.Errorf("%w: year %q: %v", ErrInvalidPeriod, parts[0], err)
	}
	mon, err := strconv.Atoi(parts[1])
	if err != nil {
		return Month{}, fmt.Errorf("%w: month %q: %v", ErrInvalidPeriod, parts[1], err)
	}
	if mon < 1 || mon > 12 {
		return Month{}, fmt.Errorf("%w: month %d out of range", ErrInvalidPeriod, mon)
	}
	return Month{Year: year, Month: time.Month(mon)}, nil
}

// ParseDate parses a "YYYY-MM-DD" calendar date as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not YYYY-MM-DD", ErrInvalidDate, s)
	}
	return d.UTC(), nil
}

// String renders the month as its "YYYY-MM" key.
func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Bounds returns the [start, end) UTC instants of the month.
// end is the first instant of the following month.
func (m Month) Bounds() (time.Time, time.Time) {
	start := time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// Prev returns the preceding month. January wraps to December of the
// previous year.
func (m Month) Prev() Month {
	if m.Month == time.January {
		return Month{Year: m.Year - 1, Month: time.December}
	}
	return Month{Year: m.Year, Month: m.Month - 1}
}

// Next returns the following month.
func (m Month) Next() Month {
	if m.Month == time.December {
		return Month{Year: m.Year + 1, Month: time.January}
	}
	return Month{Year: m.Year, Month: m.Month + 1}
}

// MonthOf returns the month containing t (in UTC).
func MonthOf(t time.Time) Month {
	t = t.UTC()
	return Month{Year: t.Year(), Month: t.Month()}
}

// RangeBounds returns [start, end) UTC midnight instants for a calendar
// date range. Inputs are full dates so no month rollover is involved.
func RangeBounds(startDate, endDate time.Time) (time.Time, time.Time) {
	s, e := startDate.UTC(), endDate.UTC()
	start := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, time.UTC)
	return start, end
}

// MonthsInRange returns the ordered, de-duplicated months whose calendar
// month intersects [start, end). Empty when end <= start. The month
// containing start is always included.
func MonthsInRange(start, end time.Time) []Month {
	if !end.After(start) {
		return nil
	}

	var out []Month
	cur := MonthOf(start)
	for first, _ := cur.Bounds(); first.Before(end); first, _ = cur.Bounds() {
		out = append(out, cur)
		cur = cur.Next()
	}

	sm := MonthOf(start)
	if len(out) == 0 || out[0] != sm {
		out = append([]Month{sm}, out...)
	}

	seen := make(map[Month]bool, len(out))
	final := out[:0]
	for _, m := range out {
		if !seen[m] {
			seen[m] = true
			final = append(final, m)
		}
	}
	return final
}
