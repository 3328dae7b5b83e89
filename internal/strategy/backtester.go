package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"strikelab/internal/backtest"
	"strikelab/internal/candle"
	"strikelab/internal/domain"
	"strikelab/internal/indicators"
	"strikelab/internal/metrics"
	"strikelab/internal/store"
)

// ErrUnknownStrategy is returned when a request names no registered
// strategy and carries no inline definition.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Request describes one strategy sweep.
type Request struct {
	// Strategy names a registered definition. Definition, when set, is used
	// instead.
	Strategy   string      `json:"strategy,omitempty"`
	Definition *Definition `json:"definition,omitempty"`

	Symbol string    `json:"symbol"`
	Market string    `json:"market,omitempty"`
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`

	// Direction overrides the definition's direction when set.
	Direction  domain.Direction `json:"direction,omitempty"`
	Mode       backtest.Mode    `json:"mode,omitempty"`
	Targets    []float64        `json:"targets"`
	StopLosses []float64        `json:"stop_losses"`
	RankBy     backtest.Metric  `json:"rank_by,omitempty"`

	// Save persists the sweep when the Backtester has a result store.
	Save bool `json:"save,omitempty"`
}

// Report is the outcome of a strategy sweep. Cells are in grid order;
// Ranked holds the successful cells best first.
type Report struct {
	RunID     string           `json:"run_id,omitempty"`
	Strategy  string           `json:"strategy"`
	Symbol    string           `json:"symbol"`
	Direction domain.Direction `json:"direction"`
	Mode      backtest.Mode    `json:"mode"`
	Bars      int              `json:"bars"`
	Cells     []backtest.Cell  `json:"cells"`
	Ranked    []backtest.Cell  `json:"ranked"`
}

// Best returns the top ranked cell, if any.
func (r *Report) Best() (backtest.Cell, bool) {
	if len(r.Ranked) == 0 {
		return backtest.Cell{}, false
	}
	return r.Ranked[0], true
}

// Backtester replays stored bars through a strategy definition and sweeps
// the target and stop-loss grid.
type Backtester struct {
	bars     store.BarStore
	results  store.ResultStore
	registry *Registry
	opt      *backtest.Optimizer
	market   string
	log      *slog.Logger
}

// NewBacktester creates a Backtester that reads bars from barStore and looks
// up strategies in registry. results may be nil, which disables Save.
func NewBacktester(barStore store.BarStore, results store.ResultStore, registry *Registry,
	opt *backtest.Optimizer, market string) *Backtester {
	if market == "" {
		market = domain.MarketEquity
	}
	return &Backtester{
		bars:     barStore,
		results:  results,
		registry: registry,
		opt:      opt,
		market:   market,
		log:      slog.Default().With("component", "backtester"),
	}
}

// Registry returns the strategy registry.
func (bt *Backtester) Registry() *Registry { return bt.registry }

// Run executes the sweep described by req. When ctx is cancelled mid-sweep
// the partial report is returned together with the context error.
func (bt *Backtester) Run(ctx context.Context, req Request) (*Report, error) {
	def, err := bt.definition(req)
	if err != nil {
		return nil, err
	}
	mode, err := backtest.ParseMode(string(req.Mode))
	if err != nil {
		return nil, err
	}
	dir := req.Direction
	if dir == "" {
		dir = def.Direction
	}
	market := req.Market
	if market == "" {
		market = bt.market
	}
	if req.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", backtest.ErrInvalidParameter)
	}
	to := req.To
	if to.IsZero() {
		to = time.Now().UTC()
	}

	bars, err := bt.bars.ReadBars(ctx, req.Symbol, market, req.From, to)
	if err != nil {
		return nil, fmt.Errorf("reading bars for %s: %w", req.Symbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s %s: %w", market, req.Symbol, backtest.ErrEmptySeries)
	}
	iv, err := candle.ParseInterval(string(def.Interval))
	if err != nil {
		return nil, err
	}
	bars = candle.Aggregate(bars, iv)

	table, err := indicators.ComputeAll(def.Indicators, bars)
	if err != nil {
		return nil, err
	}
	buy, sell, err := def.Compile(table)
	if err != nil {
		return nil, err
	}
	prices, ok := table[def.PriceColumn()]
	if !ok {
		return nil, fmt.Errorf("price %w: %q", ErrUnknownSeries, def.PriceColumn())
	}

	start := time.Now()
	cells, sweepErr := bt.opt.Sweep(ctx, mode, prices, buy, sell, dir, req.Targets, req.StopLosses)
	if cells == nil && sweepErr != nil {
		return nil, sweepErr
	}
	okCells := 0
	for _, c := range cells {
		if c.OK() {
			okCells++
		}
	}
	metrics.ObserveSweep(string(mode), okCells, len(cells)-okCells, time.Since(start))

	ranked, err := backtest.Rank(cells, req.RankBy)
	if err != nil {
		return nil, err
	}

	if dir == "" {
		dir = domain.DirectionLong
	}
	rep := &Report{
		Strategy:  def.Name,
		Symbol:    strings.ToUpper(req.Symbol),
		Direction: dir,
		Mode:      mode,
		Bars:      len(bars),
		Cells:     cells,
		Ranked:    ranked,
	}

	if req.Save && bt.results != nil && sweepErr == nil {
		id, err := bt.results.SaveRun(ctx, &store.RunRecord{
			Strategy:  rep.Strategy,
			Symbol:    rep.Symbol,
			Direction: string(rep.Direction),
			Mode:      string(rep.Mode),
			Cells:     cells,
		})
		if err != nil {
			return rep, err
		}
		rep.RunID = id
	}

	bt.log.Info("strategy sweep done",
		"strategy", rep.Strategy,
		"symbol", rep.Symbol,
		"mode", mode,
		"bars", rep.Bars,
		"cells", len(cells),
		"ok", okCells,
		"run", rep.RunID,
	)
	return rep, sweepErr
}

func (bt *Backtester) definition(req Request) (*Definition, error) {
	if req.Definition != nil {
		if err := req.Definition.Validate(); err != nil {
			return nil, err
		}
		return req.Definition, nil
	}
	def, ok := bt.registry.Get(req.Strategy)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, req.Strategy)
	}
	return def, nil
}
