package candle

import (
	"testing"
	"time"

	"strikelab/internal/domain"
)

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func bar(ts time.Time, o, h, l, c float64, v int64) domain.Bar {
	return domain.Bar{Symbol: "NIFTY", Timestamp: ts, Open: o, High: h, Low: l, Close: c, Volume: v, Turnover: float64(v) * c}
}

func TestAggregateWeekly(t *testing.T) {
	bars := []domain.Bar{
		bar(day(2024, 1, 3), 11, 13, 10, 12, 20), // Wednesday
		bar(day(2024, 1, 1), 10, 12, 9, 11, 10),  // Monday
		bar(day(2024, 1, 7), 12, 15, 11, 14, 30), // Sunday, same ISO week
		bar(day(2024, 1, 8), 14, 16, 13, 15, 40), // next Monday
	}
	got := Aggregate(bars, Weekly)
	if len(got) != 2 {
		t.Fatalf("candles = %d, want 2", len(got))
	}
	w := got[0]
	if !w.Timestamp.Equal(day(2024, 1, 1)) {
		t.Errorf("week date = %v, want 2024-01-01", w.Timestamp)
	}
	if w.Open != 10 || w.High != 15 || w.Low != 9 || w.Close != 14 || w.Volume != 60 {
		t.Errorf("week = %+v, want O10 H15 L9 C14 V60", w)
	}
	if w.Turnover != 10*11+20*12+30*14 {
		t.Errorf("turnover = %v, want %v", w.Turnover, 10*11+20*12+30*14)
	}
	if got[1].Open != 14 || got[1].Volume != 40 {
		t.Errorf("second week = %+v", got[1])
	}
	if !bars[0].Timestamp.Equal(day(2024, 1, 3)) {
		t.Error("Aggregate must not reorder its input")
	}
}

func TestAggregateMonthlyYearly(t *testing.T) {
	bars := []domain.Bar{
		bar(day(2023, 12, 29), 5, 6, 4, 5, 1),
		bar(day(2024, 1, 2), 6, 8, 5, 7, 2),
		bar(day(2024, 1, 31), 7, 9, 6, 8, 3),
		bar(day(2024, 2, 1), 8, 10, 7, 9, 4),
	}
	months := Aggregate(bars, Monthly)
	if len(months) != 3 {
		t.Fatalf("months = %d, want 3", len(months))
	}
	if months[1].Open != 6 || months[1].Close != 8 || months[1].High != 9 || months[1].Volume != 5 {
		t.Errorf("january = %+v", months[1])
	}

	years := Aggregate(bars, Yearly)
	if len(years) != 2 || years[1].Volume != 9 || years[1].Low != 5 {
		t.Errorf("years = %+v", years)
	}
}

func TestAggregateEmptyAndDaily(t *testing.T) {
	if got := Aggregate(nil, Weekly); got != nil {
		t.Errorf("Aggregate(nil) = %v, want nil", got)
	}
	bars := []domain.Bar{bar(day(2024, 1, 2), 1, 1, 1, 1, 1), bar(day(2024, 1, 1), 1, 1, 1, 1, 1)}
	got := Aggregate(bars, Daily)
	if len(got) != 2 || !got[0].Timestamp.Equal(day(2024, 1, 1)) {
		t.Errorf("daily = %+v, want sorted passthrough", got)
	}
}

func TestParseInterval(t *testing.T) {
	for _, s := range []string{"daily", "weekly", "monthly", "yearly"} {
		if _, err := ParseInterval(s); err != nil {
			t.Errorf("ParseInterval(%q): %v", s, err)
		}
	}
	if _, err := ParseInterval("hourly"); err == nil {
		t.Error("ParseInterval(hourly) should fail")
	}
}
