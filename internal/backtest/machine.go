package backtest

import (
	"strikelab/internal/domain"
	"strikelab/internal/series"
)

// Machine is the FLAT / LONG_OPEN / SHORT_OPEN position state machine. It
// holds at most one open position and is driven one index at a time.
type Machine struct {
	dir      domain.Direction
	target   float64
	stopLoss float64

	state      State
	entryIndex int
	entryPrice float64
}

// NewMachine returns a flat machine. A long machine opens on buy and exits on
// sell; a short machine opens on sell and exits on buy.
func NewMachine(dir domain.Direction, target, stopLoss float64) *Machine {
	if dir != domain.DirectionShort {
		dir = domain.DirectionLong
	}
	return &Machine{dir: dir, target: target, stopLoss: stopLoss, state: StateFlat}
}

// State returns the current position state.
func (m *Machine) State() State { return m.state }

// Step processes index i. An index with a missing or non-positive price is
// ignored. When a position closes the trade is returned with ok set. A
// position closed at i is never reopened at the same i.
func (m *Machine) Step(i int, price float64, buy, sell bool) (Trade, bool) {
	if series.IsMissing(price) || price <= 0 {
		return Trade{}, false
	}

	if m.state == StateFlat {
		entry := buy
		if m.dir == domain.DirectionShort {
			entry = sell
		}
		if entry {
			m.open(i, price)
		}
		return Trade{}, false
	}

	r := m.ret(price)
	exitSignal := sell
	if m.state == StateShortOpen {
		exitSignal = buy
	}

	switch {
	case r >= m.target:
		return m.close(i, price, ExitTarget), true
	case r <= -m.stopLoss:
		return m.close(i, price, ExitStopLoss), true
	case exitSignal:
		return m.close(i, price, ExitSignal), true
	}
	return Trade{}, false
}

// Close force-closes an open position with END_OF_DATA.
func (m *Machine) Close(i int, price float64) (Trade, bool) {
	if m.state == StateFlat {
		return Trade{}, false
	}
	return m.close(i, price, ExitEndOfData), true
}

func (m *Machine) open(i int, price float64) {
	m.entryIndex = i
	m.entryPrice = price
	if m.dir == domain.DirectionShort {
		m.state = StateShortOpen
	} else {
		m.state = StateLongOpen
	}
}

func (m *Machine) ret(price float64) float64 {
	r := (price - m.entryPrice) / m.entryPrice
	if m.state == StateShortOpen {
		return -r
	}
	return r
}

func (m *Machine) close(i int, price float64, reason ExitReason) Trade {
	pl := price - m.entryPrice
	if m.state == StateShortOpen {
		pl = -pl
	}
	t := Trade{
		EntryIndex: m.entryIndex,
		EntryPrice: m.entryPrice,
		Direction:  m.dir,
		ExitIndex:  i,
		ExitPrice:  price,
		ExitReason: reason,
		RealizedPL: pl,
	}
	m.state = StateFlat
	m.entryIndex = 0
	m.entryPrice = 0
	return t
}
