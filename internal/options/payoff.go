package options

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"strikelab/internal/domain"
)

// DefaultPremium is used for a leg's theoretical payoff when no premium is
// given.
const DefaultPremium = 100

// DefaultSpotStep is the spacing of the theoretical payoff grid.
const DefaultSpotStep = 100

const moneyPlaces = 2

// Side is whether a leg is bought or written.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

func (s Side) sign() decimal.Decimal {
	if s == Sell {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// Leg is one option position of a multi-leg strategy.
type Leg struct {
	Strike  float64           `json:"strike" yaml:"strike"`
	Type    domain.OptionType `json:"type" yaml:"type"`
	Side    Side              `json:"side" yaml:"side"`
	Premium float64           `json:"premium,omitempty" yaml:"premium"`
}

func (l Leg) String() string { return fmt.Sprintf("%s %g%s", l.Side, l.Strike, l.Type) }

// PLPoint is a P&L value on one timestamp.
type PLPoint struct {
	Timestamp time.Time `json:"timestamp"`
	PL        float64   `json:"pl"`
}

// LegSeries is one leg's marked-to-market P&L from the start day.
type LegSeries struct {
	Leg        Leg       `json:"leg"`
	EntryPrice float64   `json:"entry_price"`
	Points     []PLPoint `json:"points"`
	Err        error     `json:"-"`
	Error      string    `json:"error,omitempty"`
}

// StrategyPL is the realised P&L of a set of legs over an expiry.
type StrategyPL struct {
	Legs     []LegSeries `json:"legs"`
	Combined []PLPoint   `json:"combined"`
}

// LegPL marks every leg to market against its close on start. A leg with no
// row on start carries ErrNoEntryPrice and is left out of Combined.
func LegPL(contracts []domain.Contract, legs []Leg, start time.Time) *StrategyPL {
	out := &StrategyPL{Legs: make([]LegSeries, len(legs))}
	combined := make(map[int64]decimal.Decimal)
	stamps := make(map[int64]time.Time)

	for i, leg := range legs {
		ls := LegSeries{Leg: leg}
		rows := legRows(contracts, leg)

		var entry *decimal.Decimal
		for _, r := range rows {
			if sameDay(r.Timestamp, start) {
				e := decimal.NewFromFloat(r.Close)
				entry = &e
				break
			}
		}
		if entry == nil {
			ls.Err = fmt.Errorf("%s on %s: %w", leg, start.Format(time.DateOnly), ErrNoEntryPrice)
			ls.Error = ls.Err.Error()
			out.Legs[i] = ls
			continue
		}
		ls.EntryPrice = entry.InexactFloat64()

		for _, r := range rows {
			if r.Timestamp.Before(start) {
				continue
			}
			pl := decimal.NewFromFloat(r.Close).Sub(*entry).Mul(leg.Side.sign())
			ls.Points = append(ls.Points, PLPoint{Timestamp: r.Timestamp, PL: pl.Round(moneyPlaces).InexactFloat64()})

			key := r.Timestamp.Unix()
			combined[key] = combined[key].Add(pl)
			stamps[key] = r.Timestamp
		}
		out.Legs[i] = ls
	}

	for key, pl := range combined {
		out.Combined = append(out.Combined, PLPoint{Timestamp: stamps[key], PL: pl.Round(moneyPlaces).InexactFloat64()})
	}
	sort.Slice(out.Combined, func(i, j int) bool { return out.Combined[i].Timestamp.Before(out.Combined[j].Timestamp) })
	return out
}

func legRows(contracts []domain.Contract, leg Leg) []domain.Contract {
	var rows []domain.Contract
	for _, c := range contracts {
		if c.Instrument.IsOption() && c.Strike == leg.Strike && c.OptionType == leg.Type {
			rows = append(rows, c)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })
	return rows
}

// TheoreticalPayoff returns the expiry payoff of the legs at spots from lo
// up to but excluding hi, spaced by step.
func TheoreticalPayoff(legs []Leg, lo, hi, step float64) (spots, payoff []float64) {
	if step <= 0 {
		step = DefaultSpotStep
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	for s := lo; s < hi; s += step {
		total := decimal.Zero
		spot := decimal.NewFromFloat(s)
		for _, leg := range legs {
			total = total.Add(legPayoff(leg, spot))
		}
		spots = append(spots, s)
		payoff = append(payoff, total.Round(moneyPlaces).InexactFloat64())
	}
	return spots, payoff
}

func legPayoff(leg Leg, spot decimal.Decimal) decimal.Decimal {
	premium := decimal.NewFromFloat(leg.Premium)
	if leg.Premium == 0 {
		premium = decimal.NewFromInt(DefaultPremium)
	}
	strike := decimal.NewFromFloat(leg.Strike)

	intrinsic := spot.Sub(strike)
	if leg.Type == domain.OptionPut {
		intrinsic = strike.Sub(spot)
	}
	if intrinsic.IsNegative() {
		intrinsic = decimal.Zero
	}
	return intrinsic.Sub(premium).Mul(leg.Side.sign())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
