package options

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"strikelab/internal/domain"
)

var (
	d1 = time.Date(2018, 10, 1, 0, 0, 0, 0, time.UTC)
	d2 = time.Date(2018, 10, 3, 0, 0, 0, 0, time.UTC)
	d3 = time.Date(2018, 10, 4, 0, 0, 0, 0, time.UTC)
)

func opt(ts time.Time, typ domain.OptionType, strike, oi, close float64) domain.Contract {
	return domain.Contract{
		Symbol: "NIFTY", Instrument: domain.InstrumentOptIdx, Strike: strike,
		OptionType: typ, OpenInterest: oi, Close: close, Timestamp: ts,
	}
}

func fut(ts time.Time, close, oi float64) domain.Contract {
	return domain.Contract{Symbol: "NIFTY", Instrument: domain.InstrumentFutIdx, Close: close, OpenInterest: oi, Settle: close, Timestamp: ts}
}

// ratioOf returns the point's ratio, or -1 when it is nil.
func ratioOf(p PCRPoint) float64 {
	if p.Ratio == nil {
		return -1
	}
	return *p.Ratio
}

func TestPutCallRatio(t *testing.T) {
	rows := []domain.Contract{
		fut(d1, 105, 0),
		opt(d1, domain.OptionCall, 100, 10, 0),
		opt(d1, domain.OptionCall, 110, 30, 0),
		opt(d1, domain.OptionPut, 100, 20, 0),
		opt(d1, domain.OptionPut, 110, 40, 0),
	}

	all := PutCallRatio(rows, PCROptions{})
	if len(all) != 1 || ratioOf(all[0]) != 1.5 {
		t.Fatalf("PCR = %+v, want ratio 1.5", all)
	}

	otm := PutCallRatio(rows, PCROptions{OTM: true})
	if len(otm) != 1 {
		t.Fatalf("OTM PCR points = %d, want 1", len(otm))
	}
	// Calls >= 105: 30; puts <= 105: 20.
	if otm[0].CallOI != 30 || otm[0].PutOI != 20 || ratioOf(otm[0]) != 0.6667 {
		t.Errorf("OTM PCR = %+v, want 20/30 = 0.6667", otm[0])
	}
}

func TestPutCallRatioCap(t *testing.T) {
	rows := []domain.Contract{
		opt(d1, domain.OptionCall, 100, 10, 0), opt(d1, domain.OptionPut, 100, 30, 0), // 3.0, no previous: null
		opt(d2, domain.OptionCall, 100, 10, 0), opt(d2, domain.OptionPut, 100, 12, 0), // 1.2
		opt(d3, domain.OptionCall, 100, 10, 0), opt(d3, domain.OptionPut, 100, 20, 0), // 2.0 -> 1.2
	}
	pts := PutCallRatio(rows, PCROptions{Cap: DefaultPCRCap})
	if len(pts) != 3 {
		t.Fatalf("points = %+v, want 3", pts)
	}
	if pts[0].Ratio != nil || !pts[0].Capped || pts[0].Err != nil {
		t.Errorf("point 0 = %+v, want capped with null ratio", pts[0])
	}
	if ratioOf(pts[1]) != 1.2 || pts[1].Capped {
		t.Errorf("point 1 = %+v, want 1.2 uncapped", pts[1])
	}
	if ratioOf(pts[2]) != 1.2 || !pts[2].Capped {
		t.Errorf("point 2 = %+v, want 1.2 capped", pts[2])
	}

	// Outliers before any reading all stay null.
	rows = []domain.Contract{
		opt(d1, domain.OptionCall, 100, 10, 0), opt(d1, domain.OptionPut, 100, 30, 0),
		opt(d2, domain.OptionCall, 100, 10, 0), opt(d2, domain.OptionPut, 100, 20, 0),
	}
	pts = PutCallRatio(rows, PCROptions{Cap: DefaultPCRCap})
	if len(pts) != 2 || pts[0].Ratio != nil || pts[1].Ratio != nil {
		t.Errorf("points = %+v, want two null ratios", pts)
	}

	data, err := json.Marshal(pts[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"ratio":null`) {
		t.Errorf("json = %s, want a null ratio", data)
	}
}

func TestContinuousPutCallRatio(t *testing.T) {
	sep := time.Date(2018, 9, 27, 0, 0, 0, 0, time.UTC)
	oct := time.Date(2018, 10, 25, 0, 0, 0, 0, time.UTC)
	day := func(m time.Month, d int) time.Time { return time.Date(2018, m, d, 0, 0, 0, 0, time.UTC) }

	sepRows := []domain.Contract{
		opt(day(8, 31), domain.OptionCall, 100, 10, 0), opt(day(8, 31), domain.OptionPut, 100, 50, 0), // before the window
		opt(day(9, 3), domain.OptionCall, 100, 10, 0), opt(day(9, 3), domain.OptionPut, 100, 30, 0), // 3.0, capped: null
		opt(day(9, 4), domain.OptionCall, 100, 10, 0), opt(day(9, 4), domain.OptionPut, 100, 8, 0), // 0.8
		opt(day(9, 27), domain.OptionCall, 100, 10, 0), opt(day(9, 27), domain.OptionPut, 100, 9, 0), // 0.9
	}
	octRows := []domain.Contract{
		opt(day(9, 20), domain.OptionCall, 100, 10, 0), opt(day(9, 20), domain.OptionPut, 100, 10, 0), // in the September window
		opt(day(9, 28), domain.OptionCall, 100, 10, 0), opt(day(9, 28), domain.OptionPut, 100, 20, 0), // 2.0 -> 0.9
		opt(day(10, 1), domain.OptionCall, 100, 10, 0), opt(day(10, 1), domain.OptionPut, 100, 11, 0), // 1.1
		opt(day(10, 26), domain.OptionCall, 100, 10, 0), opt(day(10, 26), domain.OptionPut, 100, 5, 0), // after expiry
	}

	// Given out of order on purpose.
	pts := ContinuousPutCallRatio([]ExpiryChain{
		{Expiry: oct, Contracts: octRows},
		{Expiry: sep, Contracts: sepRows},
	}, PCROptions{Cap: DefaultPCRCap})

	wantDays := []time.Time{day(9, 3), day(9, 4), day(9, 27), day(9, 28), day(10, 1)}
	wantRatios := []float64{-1, 0.8, 0.9, 0.9, 1.1}
	if len(pts) != len(wantDays) {
		t.Fatalf("points = %+v, want %d", pts, len(wantDays))
	}
	for i, p := range pts {
		if !p.Timestamp.Equal(wantDays[i]) {
			t.Errorf("point %d at %s, want %s", i, p.Timestamp.Format(time.DateOnly), wantDays[i].Format(time.DateOnly))
		}
		if got := ratioOf(p); got != wantRatios[i] {
			t.Errorf("point %d ratio = %v, want %v", i, got, wantRatios[i])
		}
	}
	if !pts[3].Capped {
		t.Errorf("point 3 = %+v, want capped across the expiry boundary", pts[3])
	}

	from := day(9, 10)
	pts = ContinuousPutCallRatio([]ExpiryChain{{Expiry: sep, Contracts: sepRows}}, PCROptions{From: from})
	if len(pts) != 1 || !pts[0].Timestamp.Equal(day(9, 27)) {
		t.Errorf("points from %s = %+v, want only 2018-09-27", from.Format(time.DateOnly), pts)
	}
}

func TestPutCallRatioErrors(t *testing.T) {
	rows := []domain.Contract{opt(d1, domain.OptionPut, 100, 5, 0)}
	pts := PutCallRatio(rows, PCROptions{})
	if len(pts) != 1 || !errors.Is(pts[0].Err, ErrNoCallInterest) {
		t.Errorf("points = %+v, want ErrNoCallInterest", pts)
	}

	pts = PutCallRatio(rows, PCROptions{OTM: true})
	if len(pts) != 1 || !errors.Is(pts[0].Err, ErrNoUnderlying) {
		t.Errorf("points = %+v, want ErrNoUnderlying", pts)
	}
}

func TestFuturesOI(t *testing.T) {
	rows := []domain.Contract{fut(d2, 110, 200), fut(d1, 100, 100), opt(d2, domain.OptionCall, 100, 1, 0)}
	pts := FuturesOI(rows, d1)
	if len(pts) != 2 || !pts[0].Timestamp.Equal(d1) || pts[1].OpenInterest != 200 {
		t.Errorf("FuturesOI = %+v", pts)
	}
	if pts := FuturesOI(rows, d2); len(pts) != 1 {
		t.Errorf("FuturesOI from d2 = %+v, want 1 point", pts)
	}
}

func TestLegPL(t *testing.T) {
	rows := []domain.Contract{
		opt(d1, domain.OptionCall, 100, 0, 10),
		opt(d2, domain.OptionCall, 100, 0, 15.5),
		opt(d3, domain.OptionCall, 100, 0, 8),
		opt(d1, domain.OptionPut, 100, 0, 12),
		opt(d2, domain.OptionPut, 100, 0, 9),
		opt(d3, domain.OptionPut, 100, 0, 14.25),
	}
	legs := []Leg{
		{Strike: 100, Type: domain.OptionCall, Side: Buy},
		{Strike: 100, Type: domain.OptionPut, Side: Sell},
		{Strike: 200, Type: domain.OptionPut, Side: Buy},
	}
	res := LegPL(rows, legs, d1)

	callPL := []float64{0, 5.5, -2}
	for i, p := range res.Legs[0].Points {
		if p.PL != callPL[i] {
			t.Errorf("call leg point %d = %v, want %v", i, p.PL, callPL[i])
		}
	}
	putPL := []float64{0, 3, -2.25}
	for i, p := range res.Legs[1].Points {
		if p.PL != putPL[i] {
			t.Errorf("short put point %d = %v, want %v", i, p.PL, putPL[i])
		}
	}
	if !errors.Is(res.Legs[2].Err, ErrNoEntryPrice) {
		t.Errorf("missing leg err = %v, want ErrNoEntryPrice", res.Legs[2].Err)
	}

	var combined []float64
	for _, p := range res.Combined {
		combined = append(combined, p.PL)
	}
	if !reflect.DeepEqual(combined, []float64{0, 8.5, -4.25}) {
		t.Errorf("combined = %v, want [0 8.5 -4.25]", combined)
	}
}

func TestTheoreticalPayoff(t *testing.T) {
	// Long straddle at 1000 with premium 50 on each leg.
	legs := []Leg{
		{Strike: 1000, Type: domain.OptionCall, Side: Buy, Premium: 50},
		{Strike: 1000, Type: domain.OptionPut, Side: Buy, Premium: 50},
	}
	spots, payoff := TheoreticalPayoff(legs, 800, 1300, 0)
	if !reflect.DeepEqual(spots, []float64{800, 900, 1000, 1100, 1200}) {
		t.Fatalf("spots = %v", spots)
	}
	want := []float64{100, 0, -100, 0, 100}
	if !reflect.DeepEqual(payoff, want) {
		t.Errorf("payoff = %v, want %v", payoff, want)
	}

	// Short call with default premium.
	_, payoff = TheoreticalPayoff([]Leg{{Strike: 1000, Type: domain.OptionCall, Side: Sell}}, 1000, 1300, 100)
	if !reflect.DeepEqual(payoff, []float64{100, 0, -100}) {
		t.Errorf("short call payoff = %v, want [100 0 -100]", payoff)
	}
}
