// Package backtest simulates single-position trading driven by boolean entry
// and exit signals with percentage target and stop-loss thresholds, and
// sweeps those thresholds over a parameter grid.
package backtest

import (
	"errors"

	"strikelab/internal/domain"
	"strikelab/internal/series"
)

// Sentinel errors.
var (
	ErrEmptySeries      = errors.New("empty price series")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrCellSkipped      = errors.New("grid cell skipped")
)

// State is the position state of a Machine.
type State string

const (
	StateFlat      State = "FLAT"
	StateLongOpen  State = "LONG_OPEN"
	StateShortOpen State = "SHORT_OPEN"
)

// ExitReason records why a trade was closed.
type ExitReason string

const (
	ExitSignal    ExitReason = "SIGNAL"
	ExitTarget    ExitReason = "TARGET"
	ExitStopLoss  ExitReason = "STOP_LOSS"
	ExitEndOfData ExitReason = "END_OF_DATA"
)

// Trade is one closed round trip of quantity 1.
type Trade struct {
	EntryIndex int              `json:"entry_index"`
	EntryPrice float64          `json:"entry_price"`
	Direction  domain.Direction `json:"direction"`
	ExitIndex  int              `json:"exit_index"`
	ExitPrice  float64          `json:"exit_price"`
	ExitReason ExitReason       `json:"exit_reason"`
	RealizedPL float64          `json:"realized_pl"`
}

// Return is the trade's P&L relative to its entry price.
func (t Trade) Return() float64 {
	if t.EntryPrice == 0 {
		return 0
	}
	return t.RealizedPL / t.EntryPrice
}

// Params are the exit thresholds of one run. Target and StopLoss are
// fractions of the entry price (0.04 is 4%).
type Params struct {
	Target    float64          `json:"target"`
	StopLoss  float64          `json:"stop_loss"`
	Direction domain.Direction `json:"direction"`
}

// Result is the outcome of one backtest run. It is not modified after Run
// returns it.
type Result struct {
	Target       float64          `json:"target"`
	StopLoss     float64          `json:"stop_loss"`
	Direction    domain.Direction `json:"direction"`
	Trades       []Trade          `json:"trades"`
	CumulativePL series.Series    `json:"cumulative_pl"`
	TotalPL      float64          `json:"total_pl"`
	WinRate      float64          `json:"win_rate"`
	MaxDrawdown  float64          `json:"max_drawdown"`
	NumTrades    int              `json:"num_trades"`
	ProfitFactor float64          `json:"profit_factor"`
	Sharpe       float64          `json:"sharpe"`
}
