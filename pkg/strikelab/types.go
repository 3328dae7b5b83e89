package strikelab

import (
	"encoding/json"
	"math"
	"time"
)

// Rule is one node of a rule tree: a reference (Ref), a group (All, Any) or a
// comparison (Left Op Right, with Upper as the high bound of RANGE_EQUAL).
// Operands are series names or numeric literals.
type Rule struct {
	Name  string `json:"name,omitempty"`
	Ref   string `json:"ref,omitempty"`
	All   []Rule `json:"all,omitempty"`
	Any   []Rule `json:"any,omitempty"`
	Left  string `json:"left,omitempty"`
	Op    string `json:"op,omitempty"`
	Right string `json:"right,omitempty"`
	Upper string `json:"upper,omitempty"`
}

// Series maps names to equal-length value slices. NaN marks a missing value.
type Series map[string][]float64

// MarshalJSON encodes NaN and infinities as null.
func (s Series) MarshalJSON() ([]byte, error) {
	out := make(map[string][]*float64, len(s))
	for k, vals := range s {
		col := make([]*float64, len(vals))
		for i := range vals {
			if math.IsNaN(vals[i]) || math.IsInf(vals[i], 0) {
				continue
			}
			col[i] = &vals[i]
		}
		out[k] = col
	}
	return json.Marshal(out)
}

// Signals are the caller-supplied series and rules shared by Backtest and
// Optimize.
type Signals struct {
	Series    Series `json:"series"`
	Price     string `json:"price,omitempty"`
	Rules     []Rule `json:"rules,omitempty"`
	Buy       Rule   `json:"buy"`
	Sell      Rule   `json:"sell"`
	Direction string `json:"direction,omitempty"`
}

// BacktestRequest runs one backtest.
type BacktestRequest struct {
	Signals
	Target   float64 `json:"target"`
	StopLoss float64 `json:"stop_loss"`
}

// OptimizeRequest sweeps a target and stop-loss grid.
type OptimizeRequest struct {
	Signals
	Mode       string    `json:"mode,omitempty"`
	Targets    []float64 `json:"targets"`
	StopLosses []float64 `json:"stop_losses"`
	RankBy     string    `json:"rank_by,omitempty"`
}

// Trade is one closed position.
type Trade struct {
	EntryIndex int     `json:"entry_index"`
	EntryPrice float64 `json:"entry_price"`
	Direction  string  `json:"direction"`
	ExitIndex  int     `json:"exit_index"`
	ExitPrice  float64 `json:"exit_price"`
	ExitReason string  `json:"exit_reason"`
	RealizedPL float64 `json:"realized_pl"`
}

// Result is the outcome of one backtest.
type Result struct {
	Target       float64   `json:"target"`
	StopLoss     float64   `json:"stop_loss"`
	Direction    string    `json:"direction"`
	Trades       []Trade   `json:"trades"`
	CumulativePL []float64 `json:"cumulative_pl"`
	TotalPL      float64   `json:"total_pl"`
	WinRate      float64   `json:"win_rate"`
	MaxDrawdown  float64   `json:"max_drawdown"`
	NumTrades    int       `json:"num_trades"`
	ProfitFactor float64   `json:"profit_factor"`
	Sharpe       float64   `json:"sharpe"`
}

// Cell is one grid point of a sweep. Error is set when the cell failed.
type Cell struct {
	Index    int     `json:"index"`
	Target   float64 `json:"target"`
	StopLoss float64 `json:"stop_loss"`
	Result   *Result `json:"result,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// OptimizeResponse lists cells in grid order and the successful ones ranked.
type OptimizeResponse struct {
	Mode   string `json:"mode"`
	Cells  []Cell `json:"cells"`
	Ranked []Cell `json:"ranked"`
}

// Strategy summarises a registered strategy.
type Strategy struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Direction   string `json:"direction"`
}

// RunRequest runs a registered strategy over stored bars.
type RunRequest struct {
	Symbol     string    `json:"symbol"`
	Market     string    `json:"market,omitempty"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	Direction  string    `json:"direction,omitempty"`
	Mode       string    `json:"mode,omitempty"`
	Targets    []float64 `json:"targets,omitempty"`
	StopLosses []float64 `json:"stop_losses,omitempty"`
	RankBy     string    `json:"rank_by,omitempty"`
	Save       bool      `json:"save,omitempty"`
}

// Report is the outcome of a strategy run.
type Report struct {
	RunID     string `json:"run_id,omitempty"`
	Strategy  string `json:"strategy"`
	Symbol    string `json:"symbol"`
	Direction string `json:"direction"`
	Mode      string `json:"mode"`
	Bars      int    `json:"bars"`
	Cells     []Cell `json:"cells"`
	Ranked    []Cell `json:"ranked"`
}

// Run is a persisted sweep. Cells are empty in listings.
type Run struct {
	ID        string    `json:"id"`
	Strategy  string    `json:"strategy"`
	Symbol    string    `json:"symbol"`
	Direction string    `json:"direction"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"created_at"`
	Cells     []Cell    `json:"cells,omitempty"`
}

// MaxPainFilter narrows a stored max-pain sweep.
type MaxPainFilter struct {
	From        *time.Time `json:"from,omitempty"`
	To          *time.Time `json:"to,omitempty"`
	On          *time.Time `json:"on,omitempty"`
	StartStrike float64    `json:"start_strike,omitempty"`
	EndStrike   float64    `json:"end_strike,omitempty"`
	Gap         float64    `json:"gap,omitempty"`
}

// MaxPainRequest sweeps a stored expiry.
type MaxPainRequest struct {
	Symbol string        `json:"symbol"`
	Market string        `json:"market,omitempty"`
	Expiry string        `json:"expiry"`
	Filter MaxPainFilter `json:"filter"`
	TopN   int           `json:"top_n,omitempty"`
	Save   bool          `json:"save,omitempty"`
}

// StrikeLoss is the aggregate writer loss at one settlement strike.
type StrikeLoss struct {
	Strike          float64 `json:"strike"`
	TotalWriterLoss float64 `json:"total_writer_loss"`
}

// MaxPain is the max-pain outcome on one timestamp.
type MaxPain struct {
	Timestamp       time.Time    `json:"timestamp"`
	UnderlyingPrice float64      `json:"underlying_price"`
	TopStrikes      []float64    `json:"top_strikes"`
	AverageStrike   float64      `json:"average_strike"`
	Losses          []StrikeLoss `json:"losses"`
}

// MaxPainEntry is one swept timestamp; Error is set when it failed.
type MaxPainEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Result    *MaxPain  `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// MaxPainResponse holds one entry per swept timestamp.
type MaxPainResponse struct {
	Symbol  string         `json:"symbol,omitempty"`
	Expiry  string         `json:"expiry,omitempty"`
	Entries []MaxPainEntry `json:"entries"`
}

// PCRPoint is the put-call ratio on one timestamp. Ratio is nil for a
// failed point or an outlier capped before any reading.
type PCRPoint struct {
	Timestamp  time.Time `json:"timestamp"`
	Underlying float64   `json:"underlying"`
	CallOI     float64   `json:"call_oi"`
	PutOI      float64   `json:"put_oi"`
	Ratio      *float64  `json:"ratio"`
	Capped     bool      `json:"capped,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// PCRResponse is the put-call ratio series of one expiry, or of every
// stored expiry when Expiry is empty.
type PCRResponse struct {
	Symbol string     `json:"symbol"`
	Expiry string     `json:"expiry,omitempty"`
	Points []PCRPoint `json:"points"`
}
