// Package maxpain finds the strikes at which option writers as a whole lose
// the least if the underlying settles there.
package maxpain

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"strikelab/internal/domain"
	"strikelab/internal/series"
)

// ErrNoEligibleStrikes is returned for a timestamp where no strike has both
// call and put open interest.
var ErrNoEligibleStrikes = errors.New("no eligible strikes")

// DefaultTopN is the number of lowest-loss strikes reported.
const DefaultTopN = 5

// Chain is the option chain of one symbol and expiry on one timestamp.
type Chain struct {
	Timestamp  time.Time
	Underlying float64
	Contracts  []domain.Contract
}

// StrikeLoss is the aggregate writer loss if the underlying settles at Strike.
type StrikeLoss struct {
	Strike          float64 `json:"strike"`
	TotalWriterLoss float64 `json:"total_writer_loss"`
}

// Result is the max-pain outcome for one timestamp.
type Result struct {
	Timestamp       time.Time    `json:"timestamp"`
	UnderlyingPrice float64      `json:"underlying_price"`
	TopStrikes      []float64    `json:"top_strikes"`
	AverageStrike   float64      `json:"average_strike"`
	Losses          []StrikeLoss `json:"losses"`
}

// MaxPainStrike returns the single strike with the smallest loss, the lower
// strike on ties. ok is false when r holds no losses.
func (r *Result) MaxPainStrike() (strike float64, ok bool) {
	if r == nil || len(r.Losses) == 0 {
		return 0, false
	}
	best := r.Losses[0]
	for _, l := range r.Losses[1:] {
		if l.TotalWriterLoss < best.TotalWriterLoss {
			best = l
		}
	}
	return best.Strike, true
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithTopN reports n strikes instead of DefaultTopN.
func WithTopN(n int) Option {
	return func(c *Calculator) {
		if n > 0 {
			c.topN = n
		}
	}
}

// Calculator computes max pain for option chains.
type Calculator struct {
	topN int
}

// NewCalculator returns a Calculator reporting DefaultTopN strikes unless
// overridden.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{topN: DefaultTopN}
	for _, o := range opts {
		o(c)
	}
	return c
}

// TopN returns how many strikes each Result lists.
func (c *Calculator) TopN() int { return c.topN }

// Compute returns the writer loss of every eligible strike and the topN
// strikes with the smallest loss. Ties keep ascending strike order.
func (c *Calculator) Compute(chain Chain) (*Result, error) {
	calls, puts := openInterest(chain.Contracts)

	strikes := make([]float64, 0, len(calls))
	for k := range calls {
		if _, ok := puts[k]; ok {
			strikes = append(strikes, k)
		}
	}
	if len(strikes) == 0 {
		return nil, fmt.Errorf("%s: %w", chain.Timestamp.Format(time.DateOnly), ErrNoEligibleStrikes)
	}
	sort.Float64s(strikes)

	losses := make([]StrikeLoss, len(strikes))
	for i, s := range strikes {
		var total float64
		for _, k := range strikes {
			if s > k {
				total += (s - k) * calls[k]
			}
			if k > s {
				total += (k - s) * puts[k]
			}
		}
		losses[i] = StrikeLoss{Strike: s, TotalWriterLoss: total}
	}

	ranked := make([]StrikeLoss, len(losses))
	copy(ranked, losses)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].TotalWriterLoss < ranked[j].TotalWriterLoss
	})

	n := min(c.topN, len(ranked))
	top := make([]float64, n)
	var sum float64
	for i := range top {
		top[i] = ranked[i].Strike
		sum += top[i]
	}
	sort.Float64s(top)

	return &Result{
		Timestamp:       chain.Timestamp,
		UnderlyingPrice: chain.Underlying,
		TopStrikes:      top,
		AverageStrike:   sum / float64(n),
		Losses:          losses,
	}, nil
}

// openInterest sums open interest per strike for calls and puts. Rows with a
// missing open interest are ignored.
func openInterest(rows []domain.Contract) (calls, puts map[float64]float64) {
	calls = make(map[float64]float64)
	puts = make(map[float64]float64)
	for _, r := range rows {
		if series.IsMissing(r.OpenInterest) || series.IsMissing(r.Strike) {
			continue
		}
		switch {
		case r.IsCall():
			calls[r.Strike] += r.OpenInterest
		case r.IsPut():
			puts[r.Strike] += r.OpenInterest
		}
	}
	return calls, puts
}
