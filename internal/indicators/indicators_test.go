package indicators

import (
	"math"
	"testing"
	"time"

	"strikelab/internal/domain"
	"strikelab/internal/series"
)

func mkBars(closes ...float64) []domain.Bar {
	bars := make([]domain.Bar, len(closes))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		bars[i] = domain.Bar{
			Symbol:    "NIFTY",
			Timestamp: start.AddDate(0, 0, i),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    100,
			Turnover:  100 * c,
		}
	}
	return bars
}

func mkTrend(n int) []domain.Bar {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i) + 3*math.Sin(float64(i))
	}
	return mkBars(closes...)
}

func TestColumns(t *testing.T) {
	cols := Columns(mkBars(10, 11))
	if cols["close"][1] != 11 || cols["high"][0] != 11 || cols["volume"][0] != 100 || cols["turnover"][1] != 1100 {
		t.Errorf("columns = %v", cols)
	}
}

func TestSMA(t *testing.T) {
	cols := Columns(mkBars(1, 2, 3, 4, 5))
	out, err := Compute(Spec{Name: "sma3", Kind: "sma", Period: 3}, cols)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	s := out["sma3"]
	if len(s) != 5 {
		t.Fatalf("len = %d, want 5", len(s))
	}
	if !series.IsMissing(s[0]) || !series.IsMissing(s[1]) {
		t.Errorf("warmup = %v, want missing", s[:2])
	}
	want := []float64{2, 3, 4}
	for i, w := range want {
		if math.Abs(s[i+2]-w) > 1e-9 {
			t.Errorf("sma[%d] = %v, want %v", i+2, s[i+2], w)
		}
	}
}

func TestShortInputIsAllMissing(t *testing.T) {
	cols := Columns(mkBars(1, 2))
	out, err := Compute(Spec{Name: "e", Kind: "ema", Period: 10}, cols)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for i, v := range out["e"] {
		if !series.IsMissing(v) {
			t.Errorf("e[%d] = %v, want missing", i, v)
		}
	}
}

func TestMultiOutputKinds(t *testing.T) {
	cols := Columns(mkTrend(80))
	cases := map[string][]string{
		"macd":   {"m", "m.macd", "m.signal", "m.hist"},
		"bbands": {"m", "m.upper", "m.middle", "m.lower"},
		"stoch":  {"m", "m.k", "m.d"},
	}
	for kind, keys := range cases {
		out, err := Compute(Spec{Name: "m", Kind: kind}, cols)
		if err != nil {
			t.Errorf("%s: %v", kind, err)
			continue
		}
		for _, k := range keys {
			s, ok := out[k]
			if !ok {
				t.Errorf("%s: missing output %q", kind, k)
				continue
			}
			if len(s) != 80 {
				t.Errorf("%s %s: len = %d, want 80", kind, k, len(s))
			}
			if !series.IsMissing(s[0]) {
				t.Errorf("%s %s: first value %v, want missing", kind, k, s[0])
			}
			if series.IsMissing(s[79]) {
				t.Errorf("%s %s: last value missing", kind, k)
			}
		}
	}
}

func TestRSIBounds(t *testing.T) {
	out, err := Compute(Spec{Name: "rsi", Kind: "rsi", Period: 14}, Columns(mkTrend(60)))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for i, v := range out["rsi"] {
		if series.IsMissing(v) {
			if i >= 14 {
				t.Errorf("rsi[%d] missing after warmup", i)
			}
			continue
		}
		if v < 0 || v > 100 {
			t.Errorf("rsi[%d] = %v, out of [0,100]", i, v)
		}
	}
}

func TestComputeErrors(t *testing.T) {
	cols := Columns(mkBars(1, 2, 3))
	if _, err := Compute(Spec{Name: "x", Kind: "vwap"}, cols); err == nil {
		t.Error("unsupported kind should fail")
	}
	if _, err := Compute(Spec{Kind: "sma"}, cols); err == nil {
		t.Error("missing name should fail")
	}
	if _, err := Compute(Spec{Name: "x", Kind: "sma", Source: "oi"}, cols); err == nil {
		t.Error("unknown source should fail")
	}
}

func TestComputeAll(t *testing.T) {
	table, err := ComputeAll([]Spec{
		{Name: "fast", Kind: "ema", Period: 3},
		{Name: "slow", Kind: "ema", Period: 5},
	}, mkTrend(20))
	if err != nil {
		t.Fatalf("ComputeAll: %v", err)
	}
	for _, k := range []string{"close", "fast", "slow"} {
		if _, ok := table[k]; !ok {
			t.Errorf("table missing %q", k)
		}
	}

	if _, err := ComputeAll([]Spec{{Name: "close", Kind: "sma", Period: 2}}, mkTrend(5)); err == nil {
		t.Error("indicator shadowing a bar column should fail")
	}
}
