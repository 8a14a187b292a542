// Package timefmt holds the calendar and duration helpers shared by the
// aggregation views, the API and the CLI.
package timefmt

import (
	"fmt"
	"time"
)

// DayLayout is the date format used in query parameters and the day column.
const DayLayout = "2006-01-02"

// FormatDuration renders seconds as "1h 23m" or "23m".
func FormatDuration(secs float64) string {
	if secs < 0 {
		secs = 0
	}
	total := int64(secs)
	hours := total / 3600
	minutes := (total % 3600) / 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// DayBounds returns the half-open range [start, end) of the calendar day in
// loc that contains t. Days are 23 or 25 hours long across DST changes.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// DayKey formats the calendar day of t in loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DayLayout)
}

// ParseDay parses a YYYY-MM-DD string as midnight in loc. An empty string
// yields today.
func ParseDay(s string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if s == "" {
		start, _ := DayBounds(now, loc)
		return start, nil
	}
	d, err := time.ParseInLocation(DayLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return d, nil
}

// Contains reports whether t falls in [start, end).
func Contains(start, end, t time.Time) bool {
	return !t.Before(start) && t.Before(end)
}
