package shared

import (
	"fmt"
	"time"
)

// MonthLayout is the wire format for calendar months, e.g. "2025-02".
const MonthLayout = "2006-01"

// DateLayout is the wire format for dates, e.g. "2025-02-17".
const DateLayout = "2006-01-02"

// Month identifies a calendar month.
type Month struct {
	Year  int
	Month time.Month
}

// ParseMonth parses the YYYY-MM wire format.
func ParseMonth(raw string) (Month, error) {
	t, err := time.Parse(MonthLayout, raw)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q, expected YYYY-MM", raw)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// MonthOf returns the calendar month a date falls in.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// String renders the YYYY-MM wire format.
func (m Month) String() string {
	return m.First().Format(MonthLayout)
}

// First returns the first day of the month at midnight UTC.
func (m Month) First() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Next returns the first day of the following month.
func (m Month) Next() time.Time {
	return m.First().AddDate(0, 1, 0)
}

// Contains reports whether the date falls inside the month.
func (m Month) Contains(t time.Time) bool {
	return t.Year() == m.Year && t.Month() == m.Month
}

// IsZero reports whether the month is unset.
func (m Month) IsZero() bool {
	return m.Year == 0 && m.Month == 0
}
