// Package options holds open-interest analytics over an expiry's futures and
// options rows: put-call ratio, futures OI, and multi-leg strategy P&L.
package options

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"strikelab/internal/domain"
)

// Sentinel errors.
var (
	ErrNoCallInterest = errors.New("no call open interest")
	ErrNoUnderlying   = errors.New("no underlying price")
	ErrNoEntryPrice   = errors.New("no entry price")
)

// DefaultPCRCap is the ratio at and above which a reading is treated as an
// outlier when capping is enabled.
const DefaultPCRCap = 1.7

// ratioPlaces is the rounding applied to reported ratios.
const ratioPlaces = 4

// PCROptions controls PutCallRatio.
type PCROptions struct {
	// OTM keeps only calls struck at or above the underlying and puts struck
	// at or below it.
	OTM bool
	// Cap replaces a ratio >= Cap with the previous reading. Zero disables.
	Cap float64
	// From drops timestamps before it.
	From time.Time
}

// PCRPoint is the put-call ratio on one timestamp. Ratio is nil when the
// point failed, or when it was capped before any reading existed.
type PCRPoint struct {
	Timestamp  time.Time `json:"timestamp"`
	Underlying float64   `json:"underlying"`
	CallOI     float64   `json:"call_oi"`
	PutOI      float64   `json:"put_oi"`
	Ratio      *float64  `json:"ratio"`
	Capped     bool      `json:"capped,omitempty"`
	Err        error     `json:"-"`
	Error      string    `json:"error,omitempty"`
}

// PutCallRatio computes total put OI over total call OI for each option
// timestamp, ascending. A timestamp without call interest carries
// ErrNoCallInterest. With a cap set, an outlier takes the previous ratio;
// before any reading it has a nil ratio, which later outliers carry on.
func PutCallRatio(contracts []domain.Contract, opts PCROptions) []PCRPoint {
	var prev *float64
	return pcrPoints(contracts, opts, time.Time{}, &prev)
}

// ExpiryChain holds the futures and options rows of one expiry.
type ExpiryChain struct {
	Expiry    time.Time
	Contracts []domain.Contract
}

// ContinuousPutCallRatio stitches several expiries into one series. Each
// expiry covers the days after the previous expiry up to and including its
// own; the earliest starts on the first of its month. The cap carries its
// previous reading across expiries.
func ContinuousPutCallRatio(chains []ExpiryChain, opts PCROptions) []PCRPoint {
	sorted := make([]ExpiryChain, len(chains))
	copy(sorted, chains)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Expiry.Before(sorted[j].Expiry) })

	var (
		out   []PCRPoint
		prev  *float64
		start time.Time
	)
	for i, ch := range sorted {
		if i == 0 {
			start = time.Date(ch.Expiry.Year(), ch.Expiry.Month(), 1, 0, 0, 0, 0, ch.Expiry.Location())
		}
		window := opts
		if window.From.Before(start) {
			window.From = start
		}
		out = append(out, pcrPoints(ch.Contracts, window, ch.Expiry.AddDate(0, 0, 1), &prev)...)
		start = ch.Expiry.AddDate(0, 0, 1)
	}
	return out
}

// pcrPoints computes the ratio per option timestamp in [opts.From, before).
// A zero bound is open. prev is the last reported ratio, shared across calls.
func pcrPoints(contracts []domain.Contract, opts PCROptions, before time.Time, prev **float64) []PCRPoint {
	underlying := futuresClose(contracts)
	byDay := make(map[int64][]domain.Contract)
	var days []time.Time
	for _, c := range contracts {
		if !c.Instrument.IsOption() || (!opts.From.IsZero() && c.Timestamp.Before(opts.From)) {
			continue
		}
		if !before.IsZero() && !c.Timestamp.Before(before) {
			continue
		}
		key := c.Timestamp.Unix()
		if _, ok := byDay[key]; !ok {
			days = append(days, c.Timestamp)
		}
		byDay[key] = append(byDay[key], c)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	var out []PCRPoint
	for _, ts := range days {
		key := ts.Unix()
		fut, hasFut := underlying[key]
		p := PCRPoint{Timestamp: ts, Underlying: fut}

		if opts.OTM && !hasFut {
			p.fail(fmt.Errorf("%s: %w", ts.Format(time.DateOnly), ErrNoUnderlying))
			out = append(out, p)
			continue
		}

		calls, puts := decimal.Zero, decimal.Zero
		for _, c := range byDay[key] {
			oi := decimal.NewFromFloat(c.OpenInterest)
			switch {
			case c.IsCall() && (!opts.OTM || c.Strike >= fut):
				calls = calls.Add(oi)
			case c.IsPut() && (!opts.OTM || c.Strike <= fut):
				puts = puts.Add(oi)
			}
		}
		p.CallOI = calls.InexactFloat64()
		p.PutOI = puts.InexactFloat64()

		if calls.IsZero() {
			p.fail(fmt.Errorf("%s: %w", ts.Format(time.DateOnly), ErrNoCallInterest))
			out = append(out, p)
			continue
		}
		r := puts.DivRound(calls, ratioPlaces).InexactFloat64()
		p.Ratio = &r

		if opts.Cap > 0 && r >= opts.Cap {
			p.Ratio = nil
			if *prev != nil {
				v := **prev
				p.Ratio = &v
			}
			p.Capped = true
		}
		*prev = p.Ratio
		out = append(out, p)
	}
	return out
}

func (p *PCRPoint) fail(err error) {
	p.Err = err
	p.Error = err.Error()
}

// futuresClose maps each futures timestamp to its close.
func futuresClose(contracts []domain.Contract) map[int64]float64 {
	out := make(map[int64]float64)
	for _, c := range contracts {
		if c.Instrument.IsFuture() {
			out[c.Timestamp.Unix()] = c.Close
		}
	}
	return out
}

// OIPoint is one day of futures open interest.
type OIPoint struct {
	Timestamp    time.Time `json:"timestamp"`
	OpenInterest float64   `json:"open_interest"`
	Settle       float64   `json:"settle"`
	ChangeInOI   float64   `json:"change_in_oi"`
}

// FuturesOI returns the futures open interest, settle price and change in
// OI from the given day onward, ascending.
func FuturesOI(contracts []domain.Contract, from time.Time) []OIPoint {
	var out []OIPoint
	for _, c := range contracts {
		if !c.Instrument.IsFuture() || c.Timestamp.Before(from) {
			continue
		}
		out = append(out, OIPoint{
			Timestamp:    c.Timestamp,
			OpenInterest: c.OpenInterest,
			Settle:       c.Settle,
			ChangeInOI:   c.ChangeInOI,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
