// Package domain defines the market records shared across strikelab: daily
// bars for an underlying and futures/options contract rows for a derivative
// expiry.
package domain

import "time"

// Market identifiers used as top-level storage directories.
const (
	MarketEquity = "eq"
	MarketFO     = "fo"
)

// Bar is a single OHLCV candle for an underlying.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
	Turnover  float64   `json:"turnover"`
}

// Instrument is the exchange's contract class.
type Instrument string

const (
	InstrumentFutIdx Instrument = "FUTIDX"
	InstrumentFutStk Instrument = "FUTSTK"
	InstrumentOptIdx Instrument = "OPTIDX"
	InstrumentOptStk Instrument = "OPTSTK"
)

// IsFuture reports whether the instrument is a futures contract.
func (i Instrument) IsFuture() bool {
	return i == InstrumentFutIdx || i == InstrumentFutStk
}

// IsOption reports whether the instrument is an options contract.
func (i Instrument) IsOption() bool {
	return i == InstrumentOptIdx || i == InstrumentOptStk
}

// OptionType distinguishes calls from puts. Futures rows carry an empty type.
type OptionType string

const (
	OptionCall OptionType = "CE"
	OptionPut  OptionType = "PE"
)

// Contract is one end-of-day row of a futures or options contract.
type Contract struct {
	Symbol       string     `json:"symbol"`
	Instrument   Instrument `json:"instrument"`
	Expiry       time.Time  `json:"expiry"`
	Strike       float64    `json:"strike,omitempty"`
	OptionType   OptionType `json:"option_type,omitempty"`
	Open         float64    `json:"open"`
	High         float64    `json:"high"`
	Low          float64    `json:"low"`
	Close        float64    `json:"close"`
	Settle       float64    `json:"settle"`
	Contracts    int64      `json:"contracts"`
	OpenInterest float64    `json:"open_interest"`
	ChangeInOI   float64    `json:"change_in_oi"`
	Timestamp    time.Time  `json:"timestamp"`
}

// IsCall reports whether c is a call option row.
func (c Contract) IsCall() bool { return c.Instrument.IsOption() && c.OptionType == OptionCall }

// IsPut reports whether c is a put option row.
func (c Contract) IsPut() bool { return c.Instrument.IsOption() && c.OptionType == OptionPut }

// Direction is the side a strategy trades.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)
