package backtest

import (
	"fmt"
	"sort"
)

// Metric names a Result field used to order grid cells.
type Metric string

const (
	MetricTotalPL      Metric = "total_pl"
	MetricWinRate      Metric = "win_rate"
	MetricMaxDrawdown  Metric = "max_drawdown"
	MetricProfitFactor Metric = "profit_factor"
	MetricSharpe       Metric = "sharpe"
)

// Rank returns the successful cells ordered best first by m. Drawdown ranks
// ascending; every other metric descending. Ties keep grid order.
func Rank(cells []Cell, m Metric) ([]Cell, error) {
	if m == "" {
		m = MetricTotalPL
	}
	key, ok := metricKeys[m]
	if !ok {
		return nil, fmt.Errorf("%w: rank metric %q", ErrInvalidParameter, m)
	}

	out := make([]Cell, 0, len(cells))
	for _, c := range cells {
		if c.OK() {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := key(out[i].Result), key(out[j].Result)
		if m == MetricMaxDrawdown {
			return a < b
		}
		return a > b
	})
	return out, nil
}

var metricKeys = map[Metric]func(*Result) float64{
	MetricTotalPL:      func(r *Result) float64 { return r.TotalPL },
	MetricWinRate:      func(r *Result) float64 { return r.WinRate },
	MetricMaxDrawdown:  func(r *Result) float64 { return r.MaxDrawdown },
	MetricProfitFactor: func(r *Result) float64 { return r.ProfitFactor },
	MetricSharpe:       func(r *Result) float64 { return r.Sharpe },
}
