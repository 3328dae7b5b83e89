package backtest

import (
	"gonum.org/v1/gonum/stat"
)

// profitFactorCap stands in for an infinite profit factor when there are
// winning trades and no losing ones.
const profitFactorCap = 999

// summarize fills the aggregate metrics of res from its trades and
// cumulative P&L curve.
func summarize(res *Result) {
	var gross, grossLoss float64
	wins := 0
	returns := make([]float64, 0, len(res.Trades))

	for _, t := range res.Trades {
		res.TotalPL += t.RealizedPL
		if t.RealizedPL > 0 {
			wins++
			gross += t.RealizedPL
		} else {
			grossLoss -= t.RealizedPL
		}
		returns = append(returns, t.Return())
	}

	res.NumTrades = len(res.Trades)
	if res.NumTrades > 0 {
		res.WinRate = float64(wins) / float64(res.NumTrades)
	}

	switch {
	case grossLoss > 0:
		res.ProfitFactor = gross / grossLoss
	case gross > 0:
		res.ProfitFactor = profitFactorCap
	}

	res.MaxDrawdown = maxDrawdown(res.CumulativePL)

	if len(returns) >= 2 {
		mean, std := stat.MeanStdDev(returns, nil)
		if std > 0 {
			res.Sharpe = mean / std
		}
	}
}

// maxDrawdown returns the largest decline from a running peak of curve. The
// peak starts at zero, the P&L before any trade.
func maxDrawdown(curve []float64) float64 {
	peak, dd := 0.0, 0.0
	for _, v := range curve {
		if v > peak {
			peak = v
		}
		if peak-v > dd {
			dd = peak - v
		}
	}
	return dd
}
