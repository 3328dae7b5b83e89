package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"strikelab/internal/domain"
	"strikelab/internal/series"
	"strikelab/internal/signal"
)

// Mode selects how target and stop-loss ranges form a grid.
type Mode string

const (
	// ModePaired pairs the k-th target with the k-th stop loss.
	ModePaired Mode = "paired"
	// ModeCross runs every target against every stop loss.
	ModeCross Mode = "cross"
)

// ParseMode accepts "paired" (default when empty) or "cross".
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModePaired:
		return ModePaired, nil
	case ModeCross:
		return ModeCross, nil
	}
	return "", fmt.Errorf("%w: sweep mode %q", ErrInvalidParameter, s)
}

// Cell is one grid point. Exactly one of Result and Err is set; a run with
// zero trades is a successful Result.
type Cell struct {
	Index    int     `json:"index"`
	Target   float64 `json:"target"`
	StopLoss float64 `json:"stop_loss"`
	Result   *Result `json:"result,omitempty"`
	Err      error   `json:"-"`
	Error    string  `json:"error,omitempty"`
}

// OK reports whether the cell produced a result.
func (c Cell) OK() bool { return c.Err == nil && c.Result != nil }

func (c *Cell) fail(err error) {
	c.Err = err
	c.Error = err.Error()
}

// Point is one (target, stop loss) pair of a grid.
type Point struct {
	Target   float64
	StopLoss float64
}

// PairGrid pairs ranges by index. A one-element range is repeated against
// the other range.
func PairGrid(targets, stopLosses []float64) ([]Point, error) {
	n := len(targets)
	switch {
	case len(targets) == len(stopLosses):
	case len(targets) == 1:
		n = len(stopLosses)
	case len(stopLosses) == 1:
	default:
		return nil, fmt.Errorf("pairing %d targets with %d stop losses: %w",
			len(targets), len(stopLosses), series.ErrDimensionMismatch)
	}

	grid := make([]Point, n)
	for k := range grid {
		grid[k] = Point{
			Target:   targets[min(k, len(targets)-1)],
			StopLoss: stopLosses[min(k, len(stopLosses)-1)],
		}
	}
	return grid, nil
}

// CrossGrid returns the cartesian product, targets outer.
func CrossGrid(targets, stopLosses []float64) []Point {
	grid := make([]Point, 0, len(targets)*len(stopLosses))
	for _, t := range targets {
		for _, sl := range stopLosses {
			grid = append(grid, Point{Target: t, StopLoss: sl})
		}
	}
	return grid
}

// Optimizer runs independent backtests over a threshold grid on a bounded
// pool of goroutines.
type Optimizer struct {
	workers int
	runCell func(series.Series, series.Bools, series.Bools, Params) (*Result, error)
	log     *slog.Logger
}

// NewOptimizer returns an Optimizer running at most workers backtests at a
// time. A non-positive count uses one worker per CPU.
func NewOptimizer(workers int) *Optimizer {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Optimizer{
		workers: workers,
		runCell: RunSignals,
		log:     slog.Default().With("component", "optimizer"),
	}
}

// Workers returns the pool size.
func (o *Optimizer) Workers() int { return o.workers }

// PairedSweep runs one backtest per index-aligned (target, stop loss) pair.
func (o *Optimizer) PairedSweep(ctx context.Context, prices series.Series, buy, sell *signal.Node,
	dir domain.Direction, targets, stopLosses []float64) ([]Cell, error) {
	grid, err := PairGrid(targets, stopLosses)
	if err != nil {
		return nil, err
	}
	return o.run(ctx, prices, buy, sell, dir, grid)
}

// CrossSweep runs one backtest per element of targets × stopLosses.
func (o *Optimizer) CrossSweep(ctx context.Context, prices series.Series, buy, sell *signal.Node,
	dir domain.Direction, targets, stopLosses []float64) ([]Cell, error) {
	return o.run(ctx, prices, buy, sell, dir, CrossGrid(targets, stopLosses))
}

// Sweep dispatches to PairedSweep or CrossSweep.
func (o *Optimizer) Sweep(ctx context.Context, mode Mode, prices series.Series, buy, sell *signal.Node,
	dir domain.Direction, targets, stopLosses []float64) ([]Cell, error) {
	if mode == ModeCross {
		return o.CrossSweep(ctx, prices, buy, sell, dir, targets, stopLosses)
	}
	return o.PairedSweep(ctx, prices, buy, sell, dir, targets, stopLosses)
}

// run evaluates the signals once and then fans the grid out. Cell failures
// are recorded on the cell. Once ctx is done no further cell starts; cells
// already running finish and unstarted cells are marked ErrCellSkipped.
func (o *Optimizer) run(ctx context.Context, prices series.Series, buy, sell *signal.Node,
	dir domain.Direction, grid []Point) ([]Cell, error) {
	buySig, err := buy.Evaluate()
	if err != nil {
		return nil, fmt.Errorf("evaluating buy logic: %w", err)
	}
	sellSig, err := sell.Evaluate()
	if err != nil {
		return nil, fmt.Errorf("evaluating sell logic: %w", err)
	}

	cells := make([]Cell, len(grid))
	for i, pt := range grid {
		cells[i] = Cell{Index: i, Target: pt.Target, StopLoss: pt.StopLoss}
	}

	start := time.Now()
	var g errgroup.Group
	g.SetLimit(o.workers)

	submitted := 0
	for i := range cells {
		if ctx.Err() != nil {
			break
		}
		// g.Go blocks for a free slot, so ctx may be done by the time the
		// cell starts.
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				cells[i].fail(fmt.Errorf("%w: %w", ErrCellSkipped, err))
				return nil
			}
			p := Params{Target: cells[i].Target, StopLoss: cells[i].StopLoss, Direction: dir}
			res, err := o.runCell(prices, buySig, sellSig, p)
			if err != nil {
				cells[i].fail(err)
				return nil
			}
			cells[i].Result = res
			return nil
		})
		submitted++
	}
	_ = g.Wait()

	for i := submitted; i < len(cells); i++ {
		cells[i].fail(fmt.Errorf("%w: %w", ErrCellSkipped, ctx.Err()))
	}

	failed, skipped := 0, 0
	for _, c := range cells {
		if !c.OK() {
			failed++
		}
		if errors.Is(c.Err, ErrCellSkipped) {
			skipped++
		}
	}
	o.log.Debug("sweep finished",
		"cells", len(cells),
		"failed", failed,
		"skipped", skipped,
		"elapsed", time.Since(start),
	)
	if skipped > 0 {
		return cells, ctx.Err()
	}
	return cells, nil
}
