package signal

import (
	"fmt"

	"strikelab/internal/series"
)

// Condition is a single comparison evaluated at every index. Upper is only
// read by OpRangeEqual, where Right is the lower bound. The bull and bear
// range operators read Left only.
type Condition struct {
	Left  series.Operand
	Right series.Operand
	Upper series.Operand
	Op    Operator
}

// Compare builds a two-operand condition.
func Compare(left series.Operand, op Operator, right series.Operand) Condition {
	return Condition{Left: left, Right: right, Op: op}
}

// Between builds a RANGE_EQUAL condition: low <= value <= high.
func Between(value, low, high series.Operand) Condition {
	return Condition{Left: value, Right: low, Upper: high, Op: OpRangeEqual}
}

// Bullish is true where a pattern strength lies in [1, 100].
func Bullish(pattern series.Operand) Condition {
	return Condition{Left: pattern, Op: OpBullRange}
}

// Bearish is true where a pattern strength lies in [-100, -1].
func Bearish(pattern series.Operand) Condition {
	return Condition{Left: pattern, Op: OpBearRange}
}

func (c Condition) String() string {
	switch c.Op {
	case OpRangeEqual:
		return fmt.Sprintf("%s <= %s <= %s", c.Right, c.Left, c.Upper)
	case OpBullRange, OpBearRange:
		return fmt.Sprintf("%s(%s)", c.Op, c.Left)
	}
	return fmt.Sprintf("%s %s %s", c.Left, c.Op, c.Right)
}

// Evaluate returns one boolean per index. A missing operand at an index (or
// at the previous index for the cross operators) yields false there.
func Evaluate(c Condition) (series.Bools, error) {
	if !c.Op.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedOperator, int(c.Op))
	}

	var (
		n   int
		err error
	)
	switch c.Op {
	case OpBullRange, OpBearRange:
		n, err = series.Align(c.Left)
	case OpRangeEqual:
		n, err = series.Align(c.Left, c.Right, c.Upper)
	default:
		n, err = series.Align(c.Left, c.Right)
	}
	if err != nil {
		return nil, fmt.Errorf("evaluating %s: %w", c.Op, err)
	}

	out := make(series.Bools, n)
	for i := range out {
		out[i] = c.at(i)
	}
	return out, nil
}

func (c Condition) at(i int) bool {
	l := c.Left.At(i)
	if series.IsMissing(l) {
		return false
	}

	switch c.Op {
	case OpBullRange:
		return l >= PatternMin && l <= PatternMax
	case OpBearRange:
		return l >= -PatternMax && l <= -PatternMin
	case OpRangeEqual:
		lo, hi := c.Right.At(i), c.Upper.At(i)
		if series.IsMissing(lo) || series.IsMissing(hi) {
			return false
		}
		return lo <= l && l <= hi
	}

	r := c.Right.At(i)
	if series.IsMissing(r) {
		return false
	}

	switch c.Op {
	case OpEqual:
		return l == r
	case OpGTE:
		return l >= r
	case OpLTE:
		return l <= r
	case OpGT:
		return l > r
	case OpLT:
		return l < r
	case OpCrossover, OpCrossunder:
		if i == 0 {
			return false
		}
		pl, pr := c.Left.At(i-1), c.Right.At(i-1)
		if series.IsMissing(pl) || series.IsMissing(pr) {
			return false
		}
		if c.Op == OpCrossover {
			return pl <= pr && l > r
		}
		return pl >= pr && l < r
	}
	return false
}
