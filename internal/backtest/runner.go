package backtest

import (
	"fmt"
	"math"

	"strikelab/internal/domain"
	"strikelab/internal/series"
	"strikelab/internal/signal"
)

// Validate checks the thresholds and fills in a default direction.
func (p *Params) Validate() error {
	if !(p.Target > 0) || math.IsInf(p.Target, 0) {
		return fmt.Errorf("%w: target %v must be positive", ErrInvalidParameter, p.Target)
	}
	if !(p.StopLoss > 0) || math.IsInf(p.StopLoss, 0) {
		return fmt.Errorf("%w: stop loss %v must be positive", ErrInvalidParameter, p.StopLoss)
	}
	switch p.Direction {
	case "":
		p.Direction = domain.DirectionLong
	case domain.DirectionLong, domain.DirectionShort:
	default:
		return fmt.Errorf("%w: direction %q", ErrInvalidParameter, p.Direction)
	}
	return nil
}

// Run evaluates the buy and sell trees over prices and simulates the trades.
func Run(prices series.Series, buy, sell *signal.Node, p Params) (*Result, error) {
	if len(prices) == 0 {
		return nil, ErrEmptySeries
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	buySig, err := buy.Evaluate()
	if err != nil {
		return nil, fmt.Errorf("evaluating buy logic: %w", err)
	}
	sellSig, err := sell.Evaluate()
	if err != nil {
		return nil, fmt.Errorf("evaluating sell logic: %w", err)
	}
	return RunSignals(prices, buySig, sellSig, p)
}

// RunSignals simulates trades from already evaluated signals.
func RunSignals(prices series.Series, buy, sell series.Bools, p Params) (*Result, error) {
	if len(prices) == 0 {
		return nil, ErrEmptySeries
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := series.CheckLengths(len(prices), len(buy), len(sell)); err != nil {
		return nil, fmt.Errorf("aligning signals with prices: %w", err)
	}

	m := NewMachine(p.Direction, p.Target, p.StopLoss)
	var trades []Trade
	lastIndex, lastPrice := -1, 0.0

	for i, price := range prices {
		if t, ok := m.Step(i, price, buy[i], sell[i]); ok {
			trades = append(trades, t)
		}
		if !series.IsMissing(price) && price > 0 {
			lastIndex, lastPrice = i, price
		}
	}
	if lastIndex >= 0 {
		if t, ok := m.Close(lastIndex, lastPrice); ok {
			trades = append(trades, t)
		}
	}

	res := &Result{
		Target:       p.Target,
		StopLoss:     p.StopLoss,
		Direction:    p.Direction,
		Trades:       trades,
		CumulativePL: cumulativePL(len(prices), trades),
	}
	summarize(res)
	return res, nil
}

// cumulativePL sums realized P&L of trades closed at or before each index.
func cumulativePL(n int, trades []Trade) series.Series {
	byExit := make([]float64, n)
	for _, t := range trades {
		byExit[t.ExitIndex] += t.RealizedPL
	}
	out := make(series.Series, n)
	running := 0.0
	for i := range out {
		running += byExit[i]
		out[i] = running
	}
	return out
}
