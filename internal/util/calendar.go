package util

import (
	"fmt"
	"time"
)

// MonthlyExpiry returns the monthly derivatives expiry of the given month:
// the last Thursday, moved back to the previous weekday when it falls on a
// listed holiday.
func MonthlyExpiry(year int, month time.Month, holidays ...time.Time) time.Time {
	d := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC) // last day of month
	for d.Weekday() != time.Thursday {
		d = d.AddDate(0, 0, -1)
	}
	for isHoliday(d, holidays) || !IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// IsTradingDay reports whether t falls on a weekday.
func IsTradingDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// ParseExpiry accepts a full date ("2018-10-25") or a month ("2018-10"); a
// month resolves to its MonthlyExpiry.
func ParseExpiry(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01", s); err == nil {
		return MonthlyExpiry(t.Year(), t.Month()), nil
	}
	return time.Time{}, fmt.Errorf("parsing expiry %q: want YYYY-MM-DD or YYYY-MM", s)
}

func isHoliday(d time.Time, holidays []time.Time) bool {
	for _, h := range holidays {
		if h.Year() == d.Year() && h.YearDay() == d.YearDay() {
			return true
		}
	}
	return false
}
