package models

import (
	"context"
	"time"
)

// LoanPeriodDays is the fixed number of days a borrowed exemplary may be kept.
const LoanPeriodDays = 20

const DateLayout = "2006-01-02"

type todayKey struct{}

// Day truncates t to midnight UTC, keeping its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// WithToday pins the calendar date used by date constraints for the lifetime of ctx.
func WithToday(ctx context.Context, today time.Time) context.Context {
	return context.WithValue(ctx, todayKey{}, Day(today))
}

// Today returns the date pinned with WithToday, or the current date.
func Today(ctx context.Context) time.Time {
	if ctx != nil {
		if today, ok := ctx.Value(todayKey{}).(time.Time); ok {
			return today
		}
	}
	return Day(time.Now())
}

func LoanDeadline(borrowed time.Time) time.Time {
	return Day(borrowed).AddDate(0, 0, LoanPeriodDays)
}
