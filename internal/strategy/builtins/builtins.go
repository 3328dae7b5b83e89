// Package builtins provides strategy definitions that ship with strikelab
// and are registered before any YAML directory is loaded.
package builtins

import (
	"fmt"
	"strconv"

	"strikelab/internal/domain"
	"strikelab/internal/indicators"
	"strikelab/internal/strategy"
)

// SMACross buys when the short SMA crosses above the long SMA and exits when
// it crosses back under.
func SMACross(short, long int) *strategy.Definition {
	return &strategy.Definition{
		Name:        "sma_cross",
		Description: fmt.Sprintf("SMA(%d) crossing SMA(%d)", short, long),
		Direction:   domain.DirectionLong,
		Indicators: []indicators.Spec{
			{Name: "fast", Kind: "sma", Period: short},
			{Name: "slow", Kind: "sma", Period: long},
		},
		Buy:  strategy.Rule{Left: "fast", Op: "CROSSOVER", Right: "slow"},
		Sell: strategy.Rule{Left: "fast", Op: "CROSSUNDER", Right: "slow"},
	}
}

// RSIReversal buys when RSI climbs back above oversold while price is above
// its trend average, and exits once RSI crosses under overbought.
func RSIReversal(period int, oversold, overbought float64) *strategy.Definition {
	return &strategy.Definition{
		Name:        "rsi_reversal",
		Description: fmt.Sprintf("RSI(%d) leaving %g with price above SMA(50)", period, oversold),
		Direction:   domain.DirectionLong,
		Indicators: []indicators.Spec{
			{Name: "rsi", Kind: "rsi", Period: period},
			{Name: "trend", Kind: "sma", Period: 50},
		},
		Rules: []strategy.Rule{
			{Name: "uptrend", Left: "close", Op: ">", Right: "trend"},
		},
		Buy: strategy.Rule{All: []strategy.Rule{
			{Left: "rsi", Op: "CROSSOVER", Right: num(oversold)},
			{Ref: "uptrend"},
		}},
		Sell: strategy.Rule{Left: "rsi", Op: "CROSSUNDER", Right: num(overbought)},
	}
}

// Register adds every built-in with its default parameters.
func Register(r *strategy.Registry) error {
	for _, d := range []*strategy.Definition{
		SMACross(10, 30),
		RSIReversal(14, 30, 70),
	} {
		if err := r.Register(d); err != nil {
			return fmt.Errorf("builtin %s: %w", d.Name, err)
		}
	}
	return nil
}

func num(v float64) strategy.Operand {
	return strategy.Operand(strconv.FormatFloat(v, 'f', -1, 64))
}
