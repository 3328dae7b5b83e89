package signal

import (
	"fmt"
	"sort"
)

type link struct {
	logic       Logical
	left, right string
}

// Builder assembles a condition graph from named rules that may reference
// each other before they are defined. Links may be rewritten; any rewrite
// that would close a loop is rejected with ErrCyclicCondition.
type Builder struct {
	conds map[string]Condition
	links map[string]link
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		conds: make(map[string]Condition),
		links: make(map[string]link),
	}
}

// Condition registers a leaf rule.
func (b *Builder) Condition(name string, c Condition) error {
	if b.defined(name) {
		return fmt.Errorf("%w: %q", ErrDuplicateRule, name)
	}
	b.conds[name] = c
	return nil
}

// Link defines or redefines name as left <logic> right.
func (b *Builder) Link(name, left string, logic Logical, right string) error {
	if !logic.Valid() {
		return fmt.Errorf("%w: logical %d", ErrUnsupportedOperator, int(logic))
	}
	if _, ok := b.conds[name]; ok {
		return fmt.Errorf("%w: %q is a condition", ErrDuplicateRule, name)
	}
	if left == name || right == name || b.reaches(left, name) || b.reaches(right, name) {
		return fmt.Errorf("%w: linking %q to %q and %q", ErrCyclicCondition, name, left, right)
	}
	b.links[name] = link{logic: logic, left: left, right: right}
	return nil
}

// Names returns every rule name, sorted.
func (b *Builder) Names() []string {
	names := make([]string, 0, len(b.conds)+len(b.links))
	for n := range b.conds {
		names = append(names, n)
	}
	for n := range b.links {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build materialises the tree rooted at name. Rules referenced from several
// places become one shared Node.
func (b *Builder) Build(name string) (*Node, error) {
	return b.build(name, make(map[string]*Node), make(map[string]bool))
}

func (b *Builder) build(name string, done map[string]*Node, visiting map[string]bool) (*Node, error) {
	if n, ok := done[name]; ok {
		return n, nil
	}
	if c, ok := b.conds[name]; ok {
		n := Leaf(c)
		done[name] = n
		return n, nil
	}
	l, ok := b.links[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRule, name)
	}
	if visiting[name] {
		return nil, fmt.Errorf("%w: at %q", ErrCyclicCondition, name)
	}
	visiting[name] = true
	defer delete(visiting, name)

	left, err := b.build(l.left, done, visiting)
	if err != nil {
		return nil, err
	}
	right, err := b.build(l.right, done, visiting)
	if err != nil {
		return nil, err
	}
	n, err := Combine(left, l.logic, right)
	if err != nil {
		return nil, fmt.Errorf("building %q: %w", name, err)
	}
	done[name] = n
	return n, nil
}

func (b *Builder) defined(name string) bool {
	_, c := b.conds[name]
	_, l := b.links[name]
	return c || l
}

// reaches reports whether target is reachable from start through links.
func (b *Builder) reaches(start, target string) bool {
	seen := make(map[string]bool)
	stack := []string{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == target {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		if l, ok := b.links[cur]; ok {
			stack = append(stack, l.left, l.right)
		}
	}
	return false
}
