// Package candle rolls daily bars up into weekly, monthly and yearly candles.
package candle

import (
	"fmt"
	"sort"
	"time"

	"strikelab/internal/domain"
)

// Interval is the target candle width.
type Interval string

const (
	Daily   Interval = "daily"
	Weekly  Interval = "weekly"
	Monthly Interval = "monthly"
	Yearly  Interval = "yearly"
)

// ParseInterval accepts daily, weekly, monthly or yearly.
func ParseInterval(s string) (Interval, error) {
	switch Interval(s) {
	case "", Daily:
		return Daily, nil
	case Weekly, Monthly, Yearly:
		return Interval(s), nil
	}
	return "", fmt.Errorf("unknown candle interval %q", s)
}

// period returns a key identifying the candle a timestamp falls into. Weeks
// are ISO weeks, Monday to Sunday.
func (iv Interval) period(t time.Time) int {
	switch iv {
	case Weekly:
		y, w := t.ISOWeek()
		return y*100 + w
	case Monthly:
		return t.Year()*100 + int(t.Month())
	case Yearly:
		return t.Year()
	}
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

// Aggregate groups bars by interval. Each candle is dated at its first bar,
// opens at the first open, closes at the last close, spans the max high and
// min low, and sums volume and turnover. Bars are sorted by time first; the
// input slice is not modified.
func Aggregate(bars []domain.Bar, iv Interval) []domain.Bar {
	if len(bars) == 0 {
		return nil
	}
	sorted := make([]domain.Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	if iv == Daily || iv == "" {
		return sorted
	}

	var out []domain.Bar
	cur := sorted[0]
	key := iv.period(cur.Timestamp)
	for _, b := range sorted[1:] {
		if k := iv.period(b.Timestamp); k != key {
			out = append(out, cur)
			cur, key = b, k
			continue
		}
		cur.High = max(cur.High, b.High)
		cur.Low = min(cur.Low, b.Low)
		cur.Close = b.Close
		cur.Volume += b.Volume
		cur.Turnover += b.Turnover
	}
	return append(out, cur)
}
