package strategy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"strikelab/internal/candle"
	"strikelab/internal/domain"
	"strikelab/internal/indicators"
	"strikelab/internal/series"
	"strikelab/internal/signal"
)

// ErrUnknownSeries is returned when a rule names a series that is neither a
// bar column nor an indicator output.
var ErrUnknownSeries = errors.New("unknown series")

// Reserved builder names for the entry and exit trees.
const (
	buyRule  = "$buy"
	sellRule = "$sell"
)

// Definition is a declarative strategy, usually loaded from YAML.
type Definition struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Direction   domain.Direction  `yaml:"direction" json:"direction"`
	Interval    candle.Interval   `yaml:"interval,omitempty" json:"interval,omitempty"`
	Price       string            `yaml:"price,omitempty" json:"price,omitempty"`
	Indicators  []indicators.Spec `yaml:"indicators,omitempty" json:"indicators,omitempty"`
	Rules       []Rule            `yaml:"rules,omitempty" json:"rules,omitempty"`
	Buy         Rule              `yaml:"buy" json:"buy"`
	Sell        Rule              `yaml:"sell" json:"sell"`
}

// Rule is one node of a rule tree. Exactly one form is used: a reference to
// a named rule (Ref), a group (All or Any) or a comparison (Left, Op and
// Right, with Upper as the high bound of "between").
type Rule struct {
	Name  string  `yaml:"name,omitempty" json:"name,omitempty"`
	Ref   string  `yaml:"ref,omitempty" json:"ref,omitempty"`
	All   []Rule  `yaml:"all,omitempty" json:"all,omitempty"`
	Any   []Rule  `yaml:"any,omitempty" json:"any,omitempty"`
	Left  Operand `yaml:"left,omitempty" json:"left,omitempty"`
	Op    string  `yaml:"op,omitempty" json:"op,omitempty"`
	Right Operand `yaml:"right,omitempty" json:"right,omitempty"`
	Upper Operand `yaml:"upper,omitempty" json:"upper,omitempty"`
}

func (r Rule) empty() bool {
	return r.Ref == "" && len(r.All) == 0 && len(r.Any) == 0 && r.Left == "" && r.Op == ""
}

// Operand names a series or holds a numeric literal. Both YAML and JSON
// accept either a string or a bare number.
type Operand string

// UnmarshalYAML accepts any scalar.
func (o *Operand) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: operand must be a scalar", node.Line)
	}
	*o = Operand(node.Value)
	return nil
}

// UnmarshalJSON accepts a string or a number.
func (o *Operand) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*o = Operand(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("operand must be a string or number: %s", b)
	}
	*o = Operand(n.String())
	return nil
}

// LoadFile reads and validates one YAML definition.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading strategy %s: %w", path, err)
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing strategy %s: %w", path, err)
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("strategy %s: %w", path, err)
	}
	return &def, nil
}

// PriceColumn returns the series the strategy trades on, "close" by default.
func (d *Definition) PriceColumn() string {
	if d.Price == "" {
		return "close"
	}
	return d.Price
}

// Validate checks the definition without market data: every rule must be
// well formed, every ref must resolve and the rule graph must be acyclic.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return errors.New("strategy has no name")
	}
	switch d.Direction {
	case "", domain.DirectionLong, domain.DirectionShort:
	default:
		return fmt.Errorf("strategy %s: direction %q", d.Name, d.Direction)
	}
	if _, err := candle.ParseInterval(string(d.Interval)); err != nil {
		return fmt.Errorf("strategy %s: %w", d.Name, err)
	}
	if d.Buy.empty() || d.Sell.empty() {
		return fmt.Errorf("strategy %s: buy and sell rules are required", d.Name)
	}
	// Structural check only: every series name resolves to a scalar.
	_, _, err := d.compile(func(string) (series.Operand, error) { return series.Scalar(0), nil })
	return err
}

// Compile resolves series names against table and builds the buy and sell
// trees.
func (d *Definition) Compile(table map[string]series.Series) (buy, sell *signal.Node, err error) {
	return d.compile(func(name string) (series.Operand, error) {
		s, ok := table[name]
		if !ok {
			return series.Operand{}, fmt.Errorf("%w: %q", ErrUnknownSeries, name)
		}
		return series.Of(s), nil
	})
}

func (d *Definition) compile(resolve func(string) (series.Operand, error)) (*signal.Node, *signal.Node, error) {
	c := &compiler{b: signal.NewBuilder(), resolve: resolve}
	seen := make(map[string]bool, len(d.Rules))
	for i, r := range d.Rules {
		if r.Name == "" {
			return nil, nil, fmt.Errorf("strategy %s: rule %d has no name", d.Name, i)
		}
		if seen[r.Name] {
			return nil, nil, fmt.Errorf("strategy %s: %w: %q", d.Name, signal.ErrDuplicateRule, r.Name)
		}
		seen[r.Name] = true
		if err := c.define(r.Name, r); err != nil {
			return nil, nil, fmt.Errorf("strategy %s: rule %s: %w", d.Name, r.Name, err)
		}
	}
	if err := c.define(buyRule, d.Buy); err != nil {
		return nil, nil, fmt.Errorf("strategy %s: buy: %w", d.Name, err)
	}
	if err := c.define(sellRule, d.Sell); err != nil {
		return nil, nil, fmt.Errorf("strategy %s: sell: %w", d.Name, err)
	}

	buy, err := c.b.Build(buyRule)
	if err != nil {
		return nil, nil, fmt.Errorf("strategy %s: buy: %w", d.Name, err)
	}
	sell, err := c.b.Build(sellRule)
	if err != nil {
		return nil, nil, fmt.Errorf("strategy %s: sell: %w", d.Name, err)
	}
	return buy, sell, nil
}

// compiler lowers rule trees onto a signal.Builder. Anonymous subrules get
// names derived from their parent ("parent.0", "parent.1", ...).
type compiler struct {
	b       *signal.Builder
	resolve func(string) (series.Operand, error)
}

func (c *compiler) define(name string, r Rule) error {
	switch {
	case r.Ref != "":
		// An alias: x AND x is x.
		return c.b.Link(name, r.Ref, signal.And, r.Ref)
	case len(r.All) > 0:
		return c.group(name, signal.And, r.All)
	case len(r.Any) > 0:
		return c.group(name, signal.Or, r.Any)
	}
	cond, err := c.condition(r)
	if err != nil {
		return err
	}
	return c.b.Condition(name, cond)
}

// ref returns the builder name a child rule is reachable under.
func (c *compiler) ref(name string, r Rule) (string, error) {
	if r.Ref != "" {
		return r.Ref, nil
	}
	return name, c.define(name, r)
}

func (c *compiler) group(name string, logic signal.Logical, kids []Rule) error {
	names := make([]string, len(kids))
	for i, k := range kids {
		n, err := c.ref(name+"."+strconv.Itoa(i), k)
		if err != nil {
			return err
		}
		names[i] = n
	}

	acc := names[0]
	for i := 1; i < len(names)-1; i++ {
		inter := fmt.Sprintf("%s.%s%d", name, logic, i)
		if err := c.b.Link(inter, acc, logic, names[i]); err != nil {
			return err
		}
		acc = inter
	}
	return c.b.Link(name, acc, logic, names[len(names)-1])
}

func (c *compiler) condition(r Rule) (signal.Condition, error) {
	op, err := signal.ParseOperator(r.Op)
	if err != nil {
		return signal.Condition{}, err
	}
	if r.Left == "" {
		return signal.Condition{}, fmt.Errorf("%s: missing left operand", op)
	}
	left, err := c.operand(r.Left)
	if err != nil {
		return signal.Condition{}, err
	}

	switch op {
	case signal.OpBullRange:
		return signal.Bullish(left), nil
	case signal.OpBearRange:
		return signal.Bearish(left), nil
	case signal.OpRangeEqual:
		if r.Right == "" || r.Upper == "" {
			return signal.Condition{}, fmt.Errorf("%s: needs right (low) and upper (high)", op)
		}
		lo, err := c.operand(r.Right)
		if err != nil {
			return signal.Condition{}, err
		}
		hi, err := c.operand(r.Upper)
		if err != nil {
			return signal.Condition{}, err
		}
		return signal.Between(left, lo, hi), nil
	}

	if r.Right == "" {
		return signal.Condition{}, fmt.Errorf("%s: missing right operand", op)
	}
	right, err := c.operand(r.Right)
	if err != nil {
		return signal.Condition{}, err
	}
	return signal.Compare(left, op, right), nil
}

func (c *compiler) operand(o Operand) (series.Operand, error) {
	if v, err := strconv.ParseFloat(string(o), 64); err == nil {
		return series.Scalar(v), nil
	}
	return c.resolve(string(o))
}
