package maxpain

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"strikelab/internal/domain"
)

var (
	expiry = time.Date(2018, 10, 25, 0, 0, 0, 0, time.UTC)
	day1   = time.Date(2018, 10, 1, 0, 0, 0, 0, time.UTC)
	day2   = time.Date(2018, 10, 3, 0, 0, 0, 0, time.UTC)
)

func option(ts time.Time, typ domain.OptionType, strike, oi float64) domain.Contract {
	return domain.Contract{
		Symbol:       "NIFTY",
		Instrument:   domain.InstrumentOptIdx,
		Expiry:       expiry,
		Strike:       strike,
		OptionType:   typ,
		OpenInterest: oi,
		Timestamp:    ts,
	}
}

func future(ts time.Time, close float64) domain.Contract {
	return domain.Contract{Symbol: "NIFTY", Instrument: domain.InstrumentFutIdx, Expiry: expiry, Close: close, Timestamp: ts}
}

func chainOf(ts time.Time, strikes, callOI, putOI []float64) []domain.Contract {
	var rows []domain.Contract
	for i, k := range strikes {
		rows = append(rows, option(ts, domain.OptionCall, k, callOI[i]), option(ts, domain.OptionPut, k, putOI[i]))
	}
	return rows
}

func TestComputeThreeStrikes(t *testing.T) {
	rows := chainOf(day1, []float64{100, 110, 120}, []float64{10, 5, 2}, []float64{2, 5, 10})
	res, err := NewCalculator().Compute(Chain{Timestamp: day1, Underlying: 111, Contracts: rows})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	wantLosses := []StrikeLoss{{100, 250}, {110, 200}, {120, 250}}
	if !reflect.DeepEqual(res.Losses, wantLosses) {
		t.Errorf("losses = %v, want %v", res.Losses, wantLosses)
	}
	if got, ok := res.MaxPainStrike(); !ok || got != 110 {
		t.Errorf("MaxPainStrike = %v, %v, want 110", got, ok)
	}
	if !reflect.DeepEqual(res.TopStrikes, []float64{100, 110, 120}) {
		t.Errorf("TopStrikes = %v, want [100 110 120]", res.TopStrikes)
	}
	if res.AverageStrike != 110 {
		t.Errorf("AverageStrike = %v, want 110", res.AverageStrike)
	}
	if res.UnderlyingPrice != 111 {
		t.Errorf("UnderlyingPrice = %v, want 111", res.UnderlyingPrice)
	}
}

func TestComputeSymmetricOpenInterest(t *testing.T) {
	strikes := []float64{80, 90, 100, 110, 120, 130, 140, 150, 160}
	// Centred at 120: call OI falls and put OI rises symmetrically.
	callOI := []float64{1, 2, 3, 4, 5, 4, 3, 2, 1}
	putOI := []float64{1, 2, 3, 4, 5, 4, 3, 2, 1}

	res, err := NewCalculator().Compute(Chain{Timestamp: day1, Contracts: chainOf(day1, strikes, callOI, putOI)})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	found := false
	for _, k := range res.TopStrikes {
		if k == 120 {
			found = true
		}
	}
	if !found {
		t.Errorf("TopStrikes = %v, want 120 included", res.TopStrikes)
	}
	if len(res.TopStrikes) != DefaultTopN {
		t.Errorf("len(TopStrikes) = %d, want %d", len(res.TopStrikes), DefaultTopN)
	}
	if got, _ := res.MaxPainStrike(); got != 120 {
		t.Errorf("MaxPainStrike = %v, want 120", got)
	}
	for i := 1; i < len(res.TopStrikes); i++ {
		if res.TopStrikes[i-1] > res.TopStrikes[i] {
			t.Errorf("TopStrikes not ascending: %v", res.TopStrikes)
		}
	}
}

func TestComputeTieBreakByStrike(t *testing.T) {
	// Zero open interest everywhere: every loss ties at zero.
	strikes := []float64{150, 100, 130, 110, 120, 140, 160}
	zeros := make([]float64, len(strikes))
	res, err := NewCalculator(WithTopN(3)).Compute(Chain{Timestamp: day1, Contracts: chainOf(day1, strikes, zeros, zeros)})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !reflect.DeepEqual(res.TopStrikes, []float64{100, 110, 120}) {
		t.Errorf("TopStrikes = %v, want lowest strikes on tie", res.TopStrikes)
	}
}

func TestComputeIgnoresOneSidedStrikes(t *testing.T) {
	rows := chainOf(day1, []float64{100, 110}, []float64{1, 1}, []float64{1, 1})
	rows = append(rows, option(day1, domain.OptionCall, 90, 1000))
	res, err := NewCalculator().Compute(Chain{Timestamp: day1, Contracts: rows})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for _, l := range res.Losses {
		if l.Strike == 90 {
			t.Error("call-only strike 90 should not be eligible")
		}
	}
}

func TestComputeNoEligibleStrikes(t *testing.T) {
	rows := []domain.Contract{option(day1, domain.OptionCall, 100, 5), option(day1, domain.OptionPut, 110, 5)}
	_, err := NewCalculator().Compute(Chain{Timestamp: day1, Contracts: rows})
	if !errors.Is(err, ErrNoEligibleStrikes) {
		t.Errorf("got %v, want ErrNoEligibleStrikes", err)
	}
}

func TestSweepContinuesPastEmptyDay(t *testing.T) {
	var rows []domain.Contract
	rows = append(rows, future(day2, 112), future(day1, 108))
	rows = append(rows, chainOf(day2, []float64{100, 110, 120}, []float64{10, 5, 2}, []float64{2, 5, 10})...)
	rows = append(rows, option(day1, domain.OptionCall, 100, 5))

	entries, err := NewCalculator().Sweep(context.Background(), rows, Filter{}.WithDefaults(expiry))
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if !entries[0].Timestamp.Equal(day1) || !errors.Is(entries[0].Err, ErrNoEligibleStrikes) {
		t.Errorf("entry 0 = %+v, want day1 with ErrNoEligibleStrikes", entries[0])
	}
	if entries[0].Error == "" {
		t.Error("failed entry should carry an error message")
	}
	if entries[1].Result == nil || strikeOf(entries[1].Result) != 110 || entries[1].Result.UnderlyingPrice != 112 {
		t.Errorf("entry 1 = %+v, want max pain 110 at underlying 112", entries[1])
	}
}

func TestSweepFilters(t *testing.T) {
	var rows []domain.Contract
	rows = append(rows, future(day1, 108), future(day2, 112))
	strikes := []float64{95, 100, 105, 110, 115, 120, 125}
	ones := []float64{1, 1, 1, 1, 1, 1, 1}
	rows = append(rows, chainOf(day1, strikes, ones, ones)...)
	rows = append(rows, chainOf(day2, strikes, ones, ones)...)

	f := Filter{On: day2, StartStrike: 100, EndStrike: 120, Gap: 10}
	entries, err := NewCalculator().Sweep(context.Background(), rows, f)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(entries) != 1 || !entries[0].Timestamp.Equal(day2) {
		t.Fatalf("entries = %+v, want only day2", entries)
	}
	var got []float64
	for _, l := range entries[0].Result.Losses {
		got = append(got, l.Strike)
	}
	if !reflect.DeepEqual(got, []float64{100, 110, 120}) {
		t.Errorf("strikes = %v, want [100 110 120]", got)
	}

	entries, _ = NewCalculator().Sweep(context.Background(), rows, Filter{From: day2})
	if len(entries) != 1 || !entries[0].Timestamp.Equal(day2) {
		t.Errorf("From filter entries = %+v, want only day2", entries)
	}
	entries, _ = NewCalculator().Sweep(context.Background(), rows, Filter{To: day1})
	if len(entries) != 1 || !entries[0].Timestamp.Equal(day1) {
		t.Errorf("To filter entries = %+v, want only day1", entries)
	}
}

func TestSweepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rows := []domain.Contract{future(day1, 100)}
	if _, err := NewCalculator().Sweep(ctx, rows, Filter{}); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestDefaultFrom(t *testing.T) {
	if got := DefaultFrom(expiry); !got.Equal(time.Date(2018, 10, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("DefaultFrom = %v", got)
	}
	f := Filter{On: day2}.WithDefaults(expiry)
	if !f.From.IsZero() {
		t.Error("WithDefaults should not set From when On is set")
	}
}

func strikeOf(r *Result) float64 {
	k, _ := r.MaxPainStrike()
	return k
}

func TestMaxPainStrikeEmpty(t *testing.T) {
	var zero Result
	if k, ok := zero.MaxPainStrike(); ok || k != 0 {
		t.Errorf("zero result = %v, %v, want 0, false", k, ok)
	}

	var decoded Result
	if err := json.Unmarshal([]byte(`{"average_strike":110}`), &decoded); err != nil {
		t.Fatal(err)
	}
	if _, ok := decoded.MaxPainStrike(); ok {
		t.Error("decoded result without losses should report ok=false")
	}

	var nilResult *Result
	if _, ok := nilResult.MaxPainStrike(); ok {
		t.Error("nil result should report ok=false")
	}
}
