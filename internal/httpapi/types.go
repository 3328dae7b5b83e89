// Package httpapi provides the JSON REST API over the signal, backtest,
// strategy, max-pain and open-interest engines.
package httpapi

import (
	"time"

	"strikelab/internal/backtest"
	"strikelab/internal/domain"
	"strikelab/internal/maxpain"
	"strikelab/internal/options"
	"strikelab/internal/series"
	"strikelab/internal/strategy"
)

// SeriesJSON is a series on the wire. null entries are missing values.
type SeriesJSON []*float64

func (s SeriesJSON) series() series.Series {
	out := make(series.Series, len(s))
	for i, v := range s {
		if v == nil {
			out[i] = series.Missing
			continue
		}
		out[i] = *v
	}
	return out
}

// SignalRequest carries caller-computed series and the rules evaluated over
// them. Rule operands name keys of Series or are numeric literals.
type SignalRequest struct {
	Series    map[string]SeriesJSON `json:"series"`
	Price     string                `json:"price,omitempty"`
	Rules     []strategy.Rule       `json:"rules,omitempty"`
	Buy       strategy.Rule         `json:"buy"`
	Sell      strategy.Rule         `json:"sell"`
	Direction domain.Direction      `json:"direction,omitempty"`
}

// BacktestRequest is the body of POST /api/backtest.
type BacktestRequest struct {
	SignalRequest
	Target   float64 `json:"target"`
	StopLoss float64 `json:"stop_loss"`
}

// OptimizeRequest is the body of POST /api/optimize.
type OptimizeRequest struct {
	SignalRequest
	Mode       backtest.Mode   `json:"mode,omitempty"`
	Targets    []float64       `json:"targets"`
	StopLosses []float64       `json:"stop_losses"`
	RankBy     backtest.Metric `json:"rank_by,omitempty"`
}

// OptimizeResponse lists cells in grid order and the successful ones ranked.
type OptimizeResponse struct {
	Mode   backtest.Mode   `json:"mode"`
	Cells  []backtest.Cell `json:"cells"`
	Ranked []backtest.Cell `json:"ranked"`
}

// StrategyListResponse is the body of GET /api/strategies.
type StrategyListResponse struct {
	Strategies []*strategy.Definition `json:"strategies"`
}

// ChainJSON is one timestamp's option chain supplied inline.
type ChainJSON struct {
	Timestamp  time.Time         `json:"timestamp"`
	Underlying float64           `json:"underlying"`
	Contracts  []domain.Contract `json:"contracts"`
}

// MaxPainRequest is the body of POST /api/maxpain. With Chain set the
// calculation runs on that chain only; otherwise the stored expiry of Symbol
// is swept with Filter.
type MaxPainRequest struct {
	Symbol string         `json:"symbol,omitempty"`
	Market string         `json:"market,omitempty"`
	Expiry string         `json:"expiry,omitempty"`
	Filter maxpain.Filter `json:"filter"`
	TopN   int            `json:"top_n,omitempty"`
	Save   bool           `json:"save,omitempty"`
	Chain  *ChainJSON     `json:"chain,omitempty"`
}

// MaxPainResponse holds one entry per swept timestamp.
type MaxPainResponse struct {
	Symbol  string          `json:"symbol,omitempty"`
	Expiry  string          `json:"expiry,omitempty"`
	Entries []maxpain.Entry `json:"entries"`
}

// PCRResponse is the body of GET /api/pcr.
type PCRResponse struct {
	Symbol    string             `json:"symbol"`
	Expiry    string             `json:"expiry"`
	Points    []options.PCRPoint `json:"points"`
	FuturesOI []options.OIPoint  `json:"futures_oi"`
}

// PayoffRequest is the body of POST /api/payoff. Symbol and Expiry select
// stored rows for the realised P&L; the theoretical payoff needs only Legs.
type PayoffRequest struct {
	Symbol string        `json:"symbol,omitempty"`
	Market string        `json:"market,omitempty"`
	Expiry string        `json:"expiry,omitempty"`
	Start  time.Time     `json:"start,omitempty"`
	Legs   []options.Leg `json:"legs"`
	Low    float64       `json:"low,omitempty"`
	High   float64       `json:"high,omitempty"`
	Step   float64       `json:"step,omitempty"`
}

// PayoffResponse holds the realised and theoretical P&L of a leg set.
type PayoffResponse struct {
	Realised *options.StrategyPL `json:"realised,omitempty"`
	Spots    []float64           `json:"spots"`
	Payoff   []float64           `json:"payoff"`
}

// ErrorBody is the error envelope of every failed request.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a stable code and a human readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
