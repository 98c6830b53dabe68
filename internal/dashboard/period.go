package dashboard

import (
	"strings"
	"time"

	"github.com/promise4all/visit-management/internal/apperr"
	"github.com/promise4all/visit-management/internal/db"
)

// Periods accepted by KPIs.
const (
	PeriodToday   = "today"
	PeriodWeek    = "week"
	PeriodMonth   = "month"
	PeriodQuarter = "quarter"
	PeriodYear    = "year"
	PeriodCustom  = "custom"
)

// Window returns the inclusive bounds of period around now, from 00:00:00
// on the first day to 23:59:59 on the last. Custom windows take from and
// to as YYYY-MM-DD and default either missing bound to today.
func Window(period, from, to string, now time.Time) (start, end time.Time, err error) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var first, last time.Time
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "", PeriodToday:
		first, last = today, today
	case PeriodWeek:
		first = today.AddDate(0, 0, -((int(today.Weekday()) + 6) % 7))
		last = first.AddDate(0, 0, 6)
	case PeriodMonth:
		first = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		last = first.AddDate(0, 1, -1)
	case PeriodQuarter:
		q := (int(today.Month()) - 1) / 3
		first = time.Date(today.Year(), time.Month(q*3+1), 1, 0, 0, 0, 0, time.UTC)
		last = first.AddDate(0, 3, -1)
	case PeriodYear:
		first = time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		last = time.Date(today.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)
	case PeriodCustom:
		if first, err = dateOr(from, today, "from_date"); err != nil {
			return start, end, err
		}
		if last, err = dateOr(to, today, "to_date"); err != nil {
			return start, end, err
		}
		if last.Before(first) {
			return start, end, apperr.FieldValidation([]string{"from_date", "to_date"}, "From date must not be after to date.")
		}
	default:
		return start, end, apperr.FieldValidation([]string{"period"}, "Unknown period %q.", period)
	}

	return first, last.Add(24*time.Hour - time.Second), nil
}

func dateOr(s string, fallback time.Time, field string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback, nil
	}
	t, err := time.ParseInLocation(db.DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, apperr.FieldValidation([]string{field}, "%s must be a date (YYYY-MM-DD).", field)
	}
	return t, nil
}
