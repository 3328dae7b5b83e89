// Package series holds the aligned numeric and boolean sequences that every
// signal and backtest computation operates on. Index i in every series of one
// evaluation refers to the same timestamp.
package series

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when series taking part in one
// computation do not share a length.
var ErrDimensionMismatch = errors.New("dimension mismatch")

// Missing is the sentinel stored for positions where a value is undefined,
// such as an indicator's warmup period.
var Missing = math.NaN()

// IsMissing reports whether v is the missing sentinel. Infinities are treated
// as missing too since no comparison on them is meaningful.
func IsMissing(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// Series is an ordered sequence of numeric values, one per timestamp.
type Series []float64

// Len returns the number of points.
func (s Series) Len() int { return len(s) }

// At returns the value at i, or Missing when i is out of range.
func (s Series) At(i int) float64 {
	if i < 0 || i >= len(s) {
		return Missing
	}
	return s[i]
}

// Filled returns a series of length n where every point is v.
func Filled(n int, v float64) Series {
	out := make(Series, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Bools is an ordered sequence of per-timestamp truth values.
type Bools []bool

// Count returns how many points are true.
func (b Bools) Count() int {
	n := 0
	for _, v := range b {
		if v {
			n++
		}
	}
	return n
}

// Indices returns the positions that are true, ascending.
func (b Bools) Indices() []int {
	var out []int
	for i, v := range b {
		if v {
			out = append(out, i)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Operands
// ---------------------------------------------------------------------------

// Operand is one side of a comparison: either a full series or a scalar
// constant broadcast to every index.
type Operand struct {
	values   Series
	scalar   float64
	isScalar bool
}

// Of wraps a series as an operand.
func Of(s Series) Operand { return Operand{values: s} }

// Scalar wraps a constant as an operand.
func Scalar(v float64) Operand { return Operand{scalar: v, isScalar: true} }

// IsScalar reports whether the operand is a broadcast constant.
func (o Operand) IsScalar() bool { return o.isScalar }

// Len returns the series length, or -1 for a scalar.
func (o Operand) Len() int {
	if o.isScalar {
		return -1
	}
	return len(o.values)
}

// At returns the operand's value at index i.
func (o Operand) At(i int) float64 {
	if o.isScalar {
		return o.scalar
	}
	return o.values.At(i)
}

// String renders the operand for log lines.
func (o Operand) String() string {
	if o.isScalar {
		return fmt.Sprintf("%g", o.scalar)
	}
	return fmt.Sprintf("series[%d]", len(o.values))
}

// ---------------------------------------------------------------------------
// Alignment
// ---------------------------------------------------------------------------

// Align returns the common length of the series operands. Scalars adapt to
// any length. At least one operand must be a series.
func Align(ops ...Operand) (int, error) {
	n := -1
	for _, op := range ops {
		l := op.Len()
		if l < 0 {
			continue
		}
		if n < 0 {
			n = l
			continue
		}
		if l != n {
			return 0, fmt.Errorf("%w: lengths %d and %d", ErrDimensionMismatch, n, l)
		}
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: no series operand", ErrDimensionMismatch)
	}
	return n, nil
}

// CheckLengths verifies that every given length equals want.
func CheckLengths(want int, lengths ...int) error {
	for _, l := range lengths {
		if l != want {
			return fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, want, l)
		}
	}
	return nil
}
