package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"strikelab/internal/backtest"
	"strikelab/internal/domain"
	"strikelab/internal/maxpain"
	"strikelab/internal/series"
	"strikelab/internal/signal"
	"strikelab/internal/store"
)

const crossYAML = `
name: cross
direction: long
indicators:
  - name: fast
    kind: sma
    period: 2
rules:
  - name: above
    left: close
    op: ">"
    right: 100
  - name: entry
    all:
      - ref: above
      - left: close
        op: CROSSOVER
        right: fast
buy:
  ref: entry
sell:
  left: close
  op: CROSSUNDER
  right: fast
`

func TestDefinitionYAML(t *testing.T) {
	var d Definition
	if err := yaml.Unmarshal([]byte(crossYAML), &d); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if d.Rules[0].Right != "100" {
		t.Errorf("numeric operand = %q, want 100", d.Rules[0].Right)
	}
	if d.PriceColumn() != "close" {
		t.Errorf("PriceColumn = %q, want close", d.PriceColumn())
	}
}

func TestOperandJSON(t *testing.T) {
	var r Rule
	if err := json.Unmarshal([]byte(`{"left":"rsi","op":">","right":70.5}`), &r); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if r.Right != "70.5" {
		t.Errorf("Right = %q, want 70.5", r.Right)
	}
}

func TestCompileEvaluates(t *testing.T) {
	d := &Definition{
		Name: "t",
		Buy:  Rule{Left: "close", Op: "CROSSOVER", Right: "line"},
		Sell: Rule{Any: []Rule{
			{Left: "close", Op: "<", Right: "1"},
			{Left: "close", Op: "RANGE_EQUAL", Right: "4", Upper: "5"},
		}},
	}
	table := map[string]series.Series{
		"close": {1, 3, 2, 5},
		"line":  {2, 2, 2, 2},
	}
	buy, sell, err := d.Compile(table)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	b, err := buy.Evaluate()
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if want := []int{1, 3}; !equalInts(b.Indices(), want) {
		t.Errorf("buy indices = %v, want %v", b.Indices(), want)
	}
	s, err := sell.Evaluate()
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if want := []int{3}; !equalInts(s.Indices(), want) {
		t.Errorf("sell indices = %v, want %v", s.Indices(), want)
	}
}

func TestCompileErrors(t *testing.T) {
	leaf := Rule{Left: "close", Op: ">", Right: "1"}
	tests := []struct {
		name string
		def  Definition
		want error
	}{
		{"unknown series", Definition{Name: "x", Buy: Rule{Left: "nope", Op: ">", Right: "1"}, Sell: leaf}, ErrUnknownSeries},
		{"unknown ref", Definition{Name: "x", Buy: Rule{Ref: "missing"}, Sell: leaf}, signal.ErrUnknownRule},
		{"bad operator", Definition{Name: "x", Buy: Rule{Left: "close", Op: "~", Right: "1"}, Sell: leaf}, signal.ErrUnsupportedOperator},
		{"cycle", Definition{Name: "x",
			Rules: []Rule{
				{Name: "a", All: []Rule{{Ref: "b"}, leaf}},
				{Name: "b", Ref: "a"},
			},
			Buy: Rule{Ref: "a"}, Sell: leaf}, signal.ErrCyclicCondition},
		{"self reference", Definition{Name: "x", Rules: []Rule{{Name: "a", Ref: "a"}}, Buy: leaf, Sell: leaf}, signal.ErrCyclicCondition},
		{"duplicate", Definition{Name: "x", Rules: []Rule{{Name: "a", Left: "close", Op: ">", Right: "1"}, {Name: "a", Ref: "b"}}, Buy: leaf, Sell: leaf}, signal.ErrDuplicateRule},
	}
	table := map[string]series.Series{"close": {1, 2, 3}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.def.Compile(table)
			if !errors.Is(err, tt.want) {
				t.Errorf("Compile err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateRequiresRules(t *testing.T) {
	d := &Definition{Name: "x", Buy: Rule{Left: "close", Op: ">", Right: "1"}}
	if err := d.Validate(); err == nil {
		t.Fatal("expected error for missing sell rule")
	}
	d = &Definition{Buy: d.Buy, Sell: d.Buy}
	if err := d.Validate(); err == nil {
		t.Fatal("expected error for missing name")
	}
}

func TestRegistryLoadDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "cross.yaml"), []byte(crossYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry()
	n, err := r.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if n != 1 {
		t.Errorf("loaded %d, want 1", n)
	}
	if _, ok := r.Get("cross"); !ok {
		t.Error("Get(cross) not found")
	}
	if _, ok := r.Get("nonexistent"); ok {
		t.Error("Get returned true for unregistered strategy")
	}

	if n, err := r.LoadDir(filepath.Join(dir, "missing")); err != nil || n != 0 {
		t.Errorf("missing dir = %d, %v; want 0, nil", n, err)
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	leaf := Rule{Left: "close", Op: ">", Right: "1"}
	for _, name := range []string{"beta", "alpha"} {
		if err := r.Register(&Definition{Name: name, Buy: leaf, Sell: leaf}); err != nil {
			t.Fatalf("Register %s: %v", name, err)
		}
	}
	names := r.List()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List returned %v, want [alpha beta]", names)
	}
}

// ---------------------------------------------------------------------------
// Backtester
// ---------------------------------------------------------------------------

type memBars struct {
	bars []domain.Bar
}

func (m *memBars) WriteBars(context.Context, string, []domain.Bar) error { return nil }
func (m *memBars) ListSymbols(context.Context, string) ([]string, error) { return nil, nil }
func (m *memBars) ReadBars(_ context.Context, symbol, _ string, start, end time.Time) ([]domain.Bar, error) {
	var out []domain.Bar
	for _, b := range m.bars {
		if b.Symbol == symbol && !b.Timestamp.Before(start) && !b.Timestamp.After(end) {
			out = append(out, b)
		}
	}
	return out, nil
}

type memResults struct {
	runs []*store.RunRecord
}

func (m *memResults) SaveRun(_ context.Context, r *store.RunRecord) (string, error) {
	r.ID = "run-1"
	m.runs = append(m.runs, r)
	return r.ID, nil
}
func (m *memResults) GetRun(context.Context, string) (*store.RunRecord, error) {
	return nil, store.ErrNotFound
}
func (m *memResults) ListRuns(context.Context, store.RunFilter) ([]store.RunRecord, error) {
	return nil, nil
}
func (m *memResults) SaveMaxPain(context.Context, string, time.Time, []maxpain.Entry) error {
	return nil
}
func (m *memResults) ListMaxPain(context.Context, string, time.Time) ([]maxpain.Entry, error) {
	return nil, nil
}

func closes(symbol string, prices ...float64) []domain.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(prices))
	for i, p := range prices {
		bars[i] = domain.Bar{Symbol: symbol, Timestamp: start.AddDate(0, 0, i), Open: p, High: p, Low: p, Close: p}
	}
	return bars
}

func newTestBacktester(results store.ResultStore) *Backtester {
	reg := NewRegistry()
	_ = reg.Register(&Definition{
		Name: "first_bar",
		Buy:  Rule{Left: "close", Op: "=", Right: "100"},
		Sell: Rule{Left: "close", Op: "<", Right: "0"},
	})
	bars := &memBars{bars: closes("NIFTY", 100, 101, 99, 105, 95)}
	return NewBacktester(bars, results, reg, backtest.NewOptimizer(2), domain.MarketEquity)
}

func TestBacktesterRun(t *testing.T) {
	results := &memResults{}
	bt := newTestBacktester(results)

	rep, err := bt.Run(context.Background(), Request{
		Strategy:   "first_bar",
		Symbol:     "NIFTY",
		From:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		To:         time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		Targets:    []float64{0.05, 0.2},
		StopLosses: []float64{0.1, 0.1},
		Save:       true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Bars != 5 || len(rep.Cells) != 2 {
		t.Fatalf("report bars=%d cells=%d, want 5 and 2", rep.Bars, len(rep.Cells))
	}

	first := rep.Cells[0].Result
	if first == nil || first.NumTrades != 1 {
		t.Fatalf("cell 0 = %+v, want one trade", rep.Cells[0])
	}
	tr := first.Trades[0]
	if tr.ExitIndex != 3 || tr.ExitReason != backtest.ExitTarget || tr.RealizedPL != 5 {
		t.Errorf("trade = %+v, want TARGET exit at 3 with PL 5", tr)
	}

	// Target 20% is never reached; the trade is closed at the end of data.
	second := rep.Cells[1].Result.Trades[0]
	if second.ExitReason != backtest.ExitEndOfData || second.RealizedPL != -5 {
		t.Errorf("trade = %+v, want END_OF_DATA with PL -5", second)
	}

	if best, ok := rep.Best(); !ok || best.Index != 0 {
		t.Errorf("Best = %+v, want cell 0", best)
	}
	if rep.RunID != "run-1" || len(results.runs) != 1 {
		t.Errorf("run not saved: id=%q saved=%d", rep.RunID, len(results.runs))
	}
}

func TestBacktesterErrors(t *testing.T) {
	bt := newTestBacktester(nil)
	ctx := context.Background()

	if _, err := bt.Run(ctx, Request{Strategy: "missing", Symbol: "NIFTY"}); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("unknown strategy err = %v", err)
	}
	_, err := bt.Run(ctx, Request{Strategy: "first_bar", Symbol: "BANKNIFTY", Targets: []float64{1}, StopLosses: []float64{1}})
	if !errors.Is(err, backtest.ErrEmptySeries) {
		t.Errorf("no bars err = %v, want ErrEmptySeries", err)
	}
	_, err = bt.Run(ctx, Request{Strategy: "first_bar", Symbol: "NIFTY", Mode: "diagonal"})
	if !errors.Is(err, backtest.ErrInvalidParameter) {
		t.Errorf("bad mode err = %v, want ErrInvalidParameter", err)
	}
}

func TestBacktesterInlineDefinition(t *testing.T) {
	bt := newTestBacktester(nil)
	def := &Definition{
		Name:      "inline",
		Direction: domain.DirectionShort,
		// A short strategy enters on sell and exits on buy.
		Buy:       Rule{Left: "close", Op: "<", Right: "0"},
		Sell:      Rule{Left: "close", Op: "=", Right: "105"},
	}
	rep, err := bt.Run(context.Background(), Request{
		Definition: def,
		Symbol:     "NIFTY",
		Targets:    []float64{0.5},
		StopLosses: []float64{0.5},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Direction != domain.DirectionShort {
		t.Errorf("direction = %q, want short", rep.Direction)
	}
	trades := rep.Cells[0].Result.Trades
	if len(trades) != 1 || trades[0].RealizedPL != 10 {
		t.Errorf("trades = %+v, want one short trade with PL 10", trades)
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestShippedStrategies(t *testing.T) {
	reg := NewRegistry()
	n, err := reg.LoadDir("../../config/strategies")
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if n != 2 {
		t.Fatalf("loaded %d files, want 2", n)
	}
	d, ok := reg.Get("bbands_fade")
	if !ok {
		t.Fatal("bbands_fade not registered")
	}
	if d.Direction != domain.DirectionShort {
		t.Errorf("direction = %q, want short", d.Direction)
	}
}
