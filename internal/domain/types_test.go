package domain

import (
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	bar := Bar{}
	if bar.Symbol != "" {
		t.Error("expected empty Symbol for zero-value Bar")
	}
	if !bar.Timestamp.IsZero() {
		t.Error("expected zero Timestamp for zero-value Bar")
	}
	if bar.Open != 0 || bar.High != 0 || bar.Low != 0 || bar.Close != 0 {
		t.Error("expected zero OHLC values for zero-value Bar")
	}
	if bar.Volume != 0 || bar.Turnover != 0 {
		t.Error("expected zero Volume/Turnover for zero-value Bar")
	}

	c := Contract{}
	if c.Strike != 0 || c.OpenInterest != 0 || c.ChangeInOI != 0 {
		t.Error("expected zero Strike/OI for zero-value Contract")
	}
	if c.IsCall() || c.IsPut() {
		t.Error("zero-value Contract should be neither call nor put")
	}

	if OptionCall != "CE" {
		t.Errorf("OptionCall = %q, want %q", OptionCall, "CE")
	}
	if OptionPut != "PE" {
		t.Errorf("OptionPut = %q, want %q", OptionPut, "PE")
	}
	if DirectionLong != "long" || DirectionShort != "short" {
		t.Errorf("directions = %q/%q, want long/short", DirectionLong, DirectionShort)
	}
}

func TestContractClassification(t *testing.T) {
	expiry := time.Date(2024, 1, 25, 0, 0, 0, 0, time.UTC)

	call := Contract{Symbol: "NIFTY", Instrument: InstrumentOptIdx, Expiry: expiry, Strike: 21000, OptionType: OptionCall}
	if !call.IsCall() || call.IsPut() {
		t.Errorf("call row classified as call=%v put=%v", call.IsCall(), call.IsPut())
	}

	put := Contract{Symbol: "NIFTY", Instrument: InstrumentOptStk, Expiry: expiry, Strike: 21000, OptionType: OptionPut}
	if !put.IsPut() || put.IsCall() {
		t.Errorf("put row classified as call=%v put=%v", put.IsCall(), put.IsPut())
	}

	fut := Contract{Symbol: "NIFTY", Instrument: InstrumentFutIdx, Expiry: expiry}
	if !fut.Instrument.IsFuture() || fut.Instrument.IsOption() {
		t.Error("FUTIDX should be a future and not an option")
	}
	if fut.IsCall() || fut.IsPut() {
		t.Error("futures row should be neither call nor put")
	}
}
