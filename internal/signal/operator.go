// Package signal evaluates rule-based trading conditions over aligned series.
// A Condition compares two operands per index; a Node combines conditions
// into an AND/OR tree whose evaluation yields one boolean per timestamp.
package signal

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	ErrUnsupportedOperator = errors.New("unsupported operator")
	ErrCyclicCondition     = errors.New("cyclic condition")
	ErrUnknownRule         = errors.New("unknown rule")
	ErrDuplicateRule       = errors.New("duplicate rule")
)

// Operator is the comparison applied by a Condition.
type Operator int

const (
	OpEqual Operator = iota + 1
	OpGTE
	OpLTE
	OpGT
	OpLT
	OpCrossover
	OpCrossunder
	OpRangeEqual
	OpBullRange
	OpBearRange
)

// Pattern strength bounds used by the bull and bear range operators.
const (
	PatternMin = 1
	PatternMax = 100
)

var operatorNames = map[Operator]string{
	OpEqual:      "EQUAL",
	OpGTE:        "GTE",
	OpLTE:        "LTE",
	OpGT:         "GT",
	OpLT:         "LT",
	OpCrossover:  "CROSSOVER",
	OpCrossunder: "CROSSUNDER",
	OpRangeEqual: "RANGE_EQUAL",
	OpBullRange:  "BULL_RANGE",
	OpBearRange:  "BEAR_RANGE",
}

var operatorAliases = map[string]Operator{
	"=":  OpEqual,
	"==": OpEqual,
	">=": OpGTE,
	"<=": OpLTE,
	">":  OpGT,
	"<":  OpLT,
}

// Valid reports whether op is one of the defined operators.
func (op Operator) Valid() bool {
	_, ok := operatorNames[op]
	return ok
}

func (op Operator) String() string {
	if name, ok := operatorNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Operator(%d)", int(op))
}

// MarshalText implements encoding.TextMarshaler.
func (op Operator) MarshalText() ([]byte, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedOperator, int(op))
	}
	return []byte(op.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (op *Operator) UnmarshalText(text []byte) error {
	parsed, err := ParseOperator(string(text))
	if err != nil {
		return err
	}
	*op = parsed
	return nil
}

// ParseOperator accepts either the symbolic form (">=") or the name
// ("CROSSOVER", case-insensitive).
func ParseOperator(s string) (Operator, error) {
	s = strings.TrimSpace(s)
	if op, ok := operatorAliases[s]; ok {
		return op, nil
	}
	upper := strings.ToUpper(s)
	for op, name := range operatorNames {
		if name == upper {
			return op, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedOperator, s)
}

// Logical joins two child results index by index.
type Logical int

const (
	And Logical = iota + 1
	Or
)

// Valid reports whether l is AND or OR.
func (l Logical) Valid() bool { return l == And || l == Or }

func (l Logical) String() string {
	switch l {
	case And:
		return "AND"
	case Or:
		return "OR"
	}
	return fmt.Sprintf("Logical(%d)", int(l))
}

// ParseLogical accepts "and"/"&" and "or"/"|".
func ParseLogical(s string) (Logical, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "AND", "&", "&&":
		return And, nil
	case "OR", "|", "||":
		return Or, nil
	}
	return 0, fmt.Errorf("%w: logical %q", ErrUnsupportedOperator, s)
}

func (l Logical) apply(a, b bool) bool {
	if l == And {
		return a && b
	}
	return a || b
}
