package backtest

import (
	"encoding/csv"
	"io"
	"strconv"
)

// WriteTradesCSV writes one row per trade.
func WriteTradesCSV(w io.Writer, trades []Trade) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{
		"direction", "entry_index", "entry_price", "exit_index", "exit_price",
		"exit_reason", "realized_pl", "return",
	})
	for _, t := range trades {
		_ = cw.Write([]string{
			string(t.Direction),
			strconv.Itoa(t.EntryIndex), formatF(t.EntryPrice),
			strconv.Itoa(t.ExitIndex), formatF(t.ExitPrice),
			string(t.ExitReason), formatF(t.RealizedPL), formatF(t.Return()),
		})
	}
	cw.Flush()
	return cw.Error()
}

// WriteCellsCSV writes one summary row per grid cell, including failures.
func WriteCellsCSV(w io.Writer, cells []Cell) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{
		"index", "target", "stop_loss", "num_trades", "total_pl", "win_rate",
		"max_drawdown", "profit_factor", "sharpe", "error",
	})
	for _, c := range cells {
		row := []string{strconv.Itoa(c.Index), formatF(c.Target), formatF(c.StopLoss)}
		if c.OK() {
			r := c.Result
			row = append(row, strconv.Itoa(r.NumTrades), formatF(r.TotalPL), formatF(r.WinRate),
				formatF(r.MaxDrawdown), formatF(r.ProfitFactor), formatF(r.Sharpe), "")
		} else {
			row = append(row, "", "", "", "", "", "", c.Error)
		}
		_ = cw.Write(row)
	}
	cw.Flush()
	return cw.Error()
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
