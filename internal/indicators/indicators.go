// Package indicators turns bars into named series: the raw bar columns plus
// technical indicators computed with go-talib. Warmup positions, which talib
// fills with zeros, are reported as series.Missing.
package indicators

import (
	"fmt"
	"strings"

	talib "github.com/markcheno/go-talib"

	"strikelab/internal/domain"
	"strikelab/internal/series"
)

// Spec describes one indicator to compute.
type Spec struct {
	Name   string  `yaml:"name" json:"name"`
	Kind   string  `yaml:"kind" json:"kind"`
	Source string  `yaml:"source,omitempty" json:"source,omitempty"`
	Period int     `yaml:"period,omitempty" json:"period,omitempty"`
	Fast   int     `yaml:"fast,omitempty" json:"fast,omitempty"`
	Slow   int     `yaml:"slow,omitempty" json:"slow,omitempty"`
	Signal int     `yaml:"signal,omitempty" json:"signal,omitempty"`
	StdDev float64 `yaml:"stddev,omitempty" json:"stddev,omitempty"`
}

// Kinds lists the supported indicator kinds.
var Kinds = []string{"sma", "ema", "rsi", "atr", "macd", "bbands", "stoch", "obv"}

// Columns returns the bar fields as series keyed open, high, low, close,
// volume and turnover.
func Columns(bars []domain.Bar) map[string]series.Series {
	n := len(bars)
	cols := map[string]series.Series{
		"open":     make(series.Series, n),
		"high":     make(series.Series, n),
		"low":      make(series.Series, n),
		"close":    make(series.Series, n),
		"volume":   make(series.Series, n),
		"turnover": make(series.Series, n),
	}
	for i, b := range bars {
		cols["open"][i] = b.Open
		cols["high"][i] = b.High
		cols["low"][i] = b.Low
		cols["close"][i] = b.Close
		cols["volume"][i] = float64(b.Volume)
		cols["turnover"][i] = b.Turnover
	}
	return cols
}

// Compute evaluates spec over cols (as returned by Columns). Single-output
// indicators are keyed by spec.Name. Multi-output ones are keyed
// "<name>.<output>", and spec.Name alone aliases the primary output.
func Compute(spec Spec, cols map[string]series.Series) (map[string]series.Series, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("indicator of kind %q has no name", spec.Kind)
	}
	source := spec.Source
	if source == "" {
		source = "close"
	}
	in, ok := cols[source]
	if !ok {
		return nil, fmt.Errorf("indicator %s: unknown source %q", spec.Name, source)
	}
	high, low, closes, volume := cols["high"], cols["low"], cols["close"], cols["volume"]

	period := spec.Period
	out := make(map[string]series.Series)
	single := func(v []float64, lookback int) {
		out[spec.Name] = warmup(v, lookback)
	}

	switch strings.ToLower(spec.Kind) {
	case "sma":
		period = orDefault(period, 20)
		single(guard(len(in), period-1, func() []float64 { return talib.Sma(in, period) }), period-1)
	case "ema":
		period = orDefault(period, 20)
		single(guard(len(in), period-1, func() []float64 { return talib.Ema(in, period) }), period-1)
	case "rsi":
		period = orDefault(period, 14)
		single(guard(len(in), period, func() []float64 { return talib.Rsi(in, period) }), period)
	case "atr":
		period = orDefault(period, 14)
		single(guard(len(closes), period, func() []float64 { return talib.Atr(high, low, closes, period) }), period)
	case "obv":
		out[spec.Name] = series.Series(talib.Obv(in, volume))
	case "macd":
		fast, slow, sig := orDefault(spec.Fast, 12), orDefault(spec.Slow, 26), orDefault(spec.Signal, 9)
		lookback := slow - 1 + sig - 1
		macd, signal, hist := missingN(len(in)), missingN(len(in)), missingN(len(in))
		if len(in) > lookback {
			macd, signal, hist = talib.Macd(in, fast, slow, sig)
		}
		out[spec.Name+".macd"] = warmup(macd, lookback)
		out[spec.Name+".signal"] = warmup(signal, lookback)
		out[spec.Name+".hist"] = warmup(hist, lookback)
		out[spec.Name] = out[spec.Name+".macd"]
	case "bbands":
		period = orDefault(period, 20)
		dev := spec.StdDev
		if dev == 0 {
			dev = 2
		}
		upper, middle, lower := missingN(len(in)), missingN(len(in)), missingN(len(in))
		if len(in) > period-1 {
			upper, middle, lower = talib.BBands(in, period, dev, dev, talib.SMA)
		}
		out[spec.Name+".upper"] = warmup(upper, period-1)
		out[spec.Name+".middle"] = warmup(middle, period-1)
		out[spec.Name+".lower"] = warmup(lower, period-1)
		out[spec.Name] = out[spec.Name+".middle"]
	case "stoch":
		fastK, slowK, slowD := orDefault(period, 14), orDefault(spec.Fast, 3), orDefault(spec.Slow, 3)
		lookback := fastK - 1 + slowK - 1 + slowD - 1
		k, d := missingN(len(closes)), missingN(len(closes))
		if len(closes) > lookback {
			k, d = talib.Stoch(high, low, closes, fastK, slowK, talib.SMA, slowD, talib.SMA)
		}
		out[spec.Name+".k"] = warmup(k, lookback)
		out[spec.Name+".d"] = warmup(d, lookback)
		out[spec.Name] = out[spec.Name+".k"]
	default:
		return nil, fmt.Errorf("indicator %s: unsupported kind %q", spec.Name, spec.Kind)
	}
	return out, nil
}

// ComputeAll evaluates every spec and merges the outputs with the bar
// columns into one lookup table.
func ComputeAll(specs []Spec, bars []domain.Bar) (map[string]series.Series, error) {
	table := Columns(bars)
	for _, s := range specs {
		outs, err := Compute(s, table)
		if err != nil {
			return nil, err
		}
		for k, v := range outs {
			if _, dup := table[k]; dup {
				return nil, fmt.Errorf("indicator %s: output %q already defined", s.Name, k)
			}
			table[k] = v
		}
	}
	return table, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// guard calls fn only when the input is longer than the lookback; talib
// indexes past the end of shorter inputs.
func guard(n, lookback int, fn func() []float64) []float64 {
	if n <= lookback {
		return missingN(n)
	}
	return fn()
}

func missingN(n int) []float64 {
	return series.Filled(n, series.Missing)
}

// warmup copies v with the first lookback positions set to Missing.
func warmup(v []float64, lookback int) series.Series {
	out := make(series.Series, len(v))
	copy(out, v)
	for i := 0; i < lookback && i < len(out); i++ {
		out[i] = series.Missing
	}
	return out
}
