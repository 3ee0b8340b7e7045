package ohlc

import (
	"fmt"
	"strings"
	"time"
)

// Period is the span a bar aggregates over. Boundaries are computed in UTC;
// weeks start on Monday.
type Period string

const (
	Hour  Period = "hour"
	Day   Period = "day"
	Week  Period = "week"
	Month Period = "month"
)

// ParsePeriod validates s.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case Hour, Day, Week, Month:
		return p, nil
	}
	return "", fmt.Errorf("ohlc: unknown period %q", s)
}

// Bounds returns the half-open interval [start, end) containing t.
func (p Period) Bounds(t time.Time) (start, end time.Time) {
	t = t.UTC()
	switch p {
	case Hour:
		start = t.Truncate(time.Hour)
		return start, start.Add(time.Hour)
	case Week:
		day := StartOfDay(t)
		offset := (int(day.Weekday()) + 6) % 7
		start = day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7)
	case Month:
		start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	default:
		start = StartOfDay(t)
		return start, start.AddDate(0, 0, 1)
	}
}

// Key identifies the period containing t, e.g. "day:2025-01-10".
func (p Period) Key(t time.Time) string {
	start, _ := p.Bounds(t)
	switch p {
	case Hour:
		return string(p) + ":" + start.Format("2006-01-02T15")
	case Month:
		return string(p) + ":" + start.Format("2006-01")
	default:
		return string(p) + ":" + start.Format("2006-01-02")
	}
}

// StartOfDay returns midnight UTC of t's calendar day.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
