package maxpain

import (
	"context"
	"math"
	"sort"
	"time"

	"strikelab/internal/domain"
)

// Filter narrows the contracts and days of a sweep. Zero values disable a
// bound. When On is set it overrides From and To.
type Filter struct {
	From        time.Time `json:"from,omitempty"`
	To          time.Time `json:"to,omitempty"`
	On          time.Time `json:"on,omitempty"`
	StartStrike float64   `json:"start_strike,omitempty"`
	EndStrike   float64   `json:"end_strike,omitempty"`
	Gap         float64   `json:"gap,omitempty"`
}

// DefaultFrom returns the first day of the expiry's month, the start used
// when a sweep has no explicit From.
func DefaultFrom(expiry time.Time) time.Time {
	return time.Date(expiry.Year(), expiry.Month(), 1, 0, 0, 0, 0, expiry.Location())
}

func (f Filter) day(ts time.Time) bool {
	if !f.On.IsZero() {
		return sameDay(ts, f.On)
	}
	if !f.From.IsZero() && ts.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && ts.After(f.To) {
		return false
	}
	return true
}

func (f Filter) strike(k float64) bool {
	if f.StartStrike > 0 && k < f.StartStrike {
		return false
	}
	if f.EndStrike > 0 && k > f.EndStrike {
		return false
	}
	if f.Gap > 0 && math.Mod(k, f.Gap) != 0 {
		return false
	}
	return true
}

// Entry is the outcome of one sweep timestamp. Exactly one of Result and Err
// is set.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Result    *Result   `json:"result,omitempty"`
	Err       error     `json:"-"`
	Error     string    `json:"error,omitempty"`
}

// Sweep computes max pain for every futures timestamp of one expiry that
// passes the filter. The futures close is the underlying price. A timestamp
// with no eligible strike yields an Entry carrying ErrNoEligibleStrikes and
// the sweep moves on. Sweep stops early when ctx is done and returns the
// entries computed so far with ctx.Err().
func (c *Calculator) Sweep(ctx context.Context, contracts []domain.Contract, f Filter) ([]Entry, error) {
	underlying := make(map[int64]float64)
	var days []time.Time
	options := make(map[int64][]domain.Contract)

	for _, r := range contracts {
		if !f.day(r.Timestamp) {
			continue
		}
		key := r.Timestamp.Unix()
		switch {
		case r.Instrument.IsFuture():
			if _, seen := underlying[key]; !seen {
				days = append(days, r.Timestamp)
			}
			underlying[key] = r.Close
		case r.Instrument.IsOption():
			if f.strike(r.Strike) {
				options[key] = append(options[key], r)
			}
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	entries := make([]Entry, 0, len(days))
	for _, ts := range days {
		if err := ctx.Err(); err != nil {
			return entries, err
		}
		key := ts.Unix()
		res, err := c.Compute(Chain{Timestamp: ts, Underlying: underlying[key], Contracts: options[key]})
		e := Entry{Timestamp: ts, Result: res}
		if err != nil {
			e.Result = nil
			e.Err = err
			e.Error = err.Error()
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// WithDefaults fills From with the first of the expiry month when neither
// From nor On is set.
func (f Filter) WithDefaults(expiry time.Time) Filter {
	if f.From.IsZero() && f.On.IsZero() && !expiry.IsZero() {
		f.From = DefaultFrom(expiry)
	}
	return f
}
