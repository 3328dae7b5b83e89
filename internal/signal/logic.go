package signal

import (
	"errors"
	"fmt"

	"strikelab/internal/series"
)

// Node is a condition tree. A leaf holds one Condition; an internal node
// joins two children with AND or OR. Nodes are immutable once built and may
// be shared between trees.
type Node struct {
	cond  *Condition
	logic Logical
	left  *Node
	right *Node
}

// Leaf wraps a single condition.
func Leaf(c Condition) *Node {
	return &Node{cond: &c}
}

// Combine joins two subtrees.
func Combine(left *Node, logic Logical, right *Node) (*Node, error) {
	if !logic.Valid() {
		return nil, fmt.Errorf("%w: logical %d", ErrUnsupportedOperator, int(logic))
	}
	if left == nil || right == nil {
		return nil, errors.New("combine: nil child")
	}
	return &Node{logic: logic, left: left, right: right}, nil
}

// AllOf folds nodes left to right with AND.
func AllOf(nodes ...*Node) (*Node, error) { return fold(And, nodes) }

// AnyOf folds nodes left to right with OR.
func AnyOf(nodes ...*Node) (*Node, error) { return fold(Or, nodes) }

func fold(logic Logical, nodes []*Node) (*Node, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%s of no conditions", logic)
	}
	acc := nodes[0]
	if acc == nil {
		return nil, errors.New("fold: nil node")
	}
	for _, n := range nodes[1:] {
		var err error
		if acc, err = Combine(acc, logic, n); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// IsLeaf reports whether n holds a single condition.
func (n *Node) IsLeaf() bool { return n.cond != nil }

// Condition returns the leaf condition, or false for an internal node.
func (n *Node) Condition() (Condition, bool) {
	if n.cond == nil {
		return Condition{}, false
	}
	return *n.cond, true
}

// Children returns the logical operator and both subtrees of an internal node.
func (n *Node) Children() (Logical, *Node, *Node) {
	return n.logic, n.left, n.right
}

// Depth returns the height of the tree; a leaf has depth 1.
func (n *Node) Depth() int {
	if n.IsLeaf() {
		return 1
	}
	return 1 + max(n.left.Depth(), n.right.Depth())
}

func (n *Node) String() string {
	if n.IsLeaf() {
		return n.cond.String()
	}
	return fmt.Sprintf("(%s %s %s)", n.left, n.logic, n.right)
}

// Evaluate resolves both children then joins them at every index.
func (n *Node) Evaluate() (series.Bools, error) {
	return n.eval(make(map[*Node]bool))
}

func (n *Node) eval(visiting map[*Node]bool) (series.Bools, error) {
	if n == nil {
		return nil, errors.New("evaluate: nil node")
	}
	if n.IsLeaf() {
		return Evaluate(*n.cond)
	}
	if visiting[n] {
		return nil, ErrCyclicCondition
	}
	visiting[n] = true
	defer delete(visiting, n)

	l, err := n.left.eval(visiting)
	if err != nil {
		return nil, err
	}
	r, err := n.right.eval(visiting)
	if err != nil {
		return nil, err
	}
	if len(l) != len(r) {
		return nil, fmt.Errorf("%s: %w: lengths %d and %d", n.logic, series.ErrDimensionMismatch, len(l), len(r))
	}

	out := make(series.Bools, len(l))
	for i := range out {
		out[i] = n.logic.apply(l[i], r[i])
	}
	return out, nil
}
