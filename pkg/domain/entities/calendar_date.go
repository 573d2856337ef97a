package entities

import (
	"fmt"
	"time"
)

// DateLayout is the textual form of a calendar day
const DateLayout = "2006-01-02"

// NormalizeDate truncates t to midnight UTC of the same calendar day
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar day
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders a calendar day as YYYY-MM-DD
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// AddDays moves a calendar day by n days
func AddDays(t time.Time, n int) time.Time {
	return NormalizeDate(t).AddDate(0, 0, n)
}

// DaysBetween returns the number of calendar days from a to b
func DaysBetween(a, b time.Time) int {
	return int(NormalizeDate(b).Sub(NormalizeDate(a)).Hours() / 24)
}

// IsWeekend reports whether t falls on Saturday or Sunday
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// RangesOverlap reports whether the closed day ranges [aStart, aEnd] and
// [bStart, bEnd] share at least one day
func RangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !NormalizeDate(aEnd).Before(NormalizeDate(bStart)) &&
		!NormalizeDate(bEnd).Before(NormalizeDate(aStart))
}
