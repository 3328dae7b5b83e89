// Package strategy loads declarative strategies and runs them through the
// backtest optimizer against stored bars.
package strategy

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Registry holds a named collection of strategy definitions for lookup and
// enumeration. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]*Definition
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]*Definition),
	}
}

// Register validates d and adds it, replacing any definition of the same
// name.
func (r *Registry) Register(d *Definition) error {
	if err := d.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[d.Name] = d
	return nil
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.strategies[name]
	return d, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadDir registers every *.yaml and *.yml file in dir and returns how many
// were loaded. A missing directory loads nothing.
func (r *Registry) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading strategies dir: %w", err)
	}

	log := slog.Default().With("component", "strategy")
	n := 0
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		def, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return n, err
		}
		if err := r.Register(def); err != nil {
			return n, err
		}
		log.Debug("strategy loaded", "name", def.Name, "file", e.Name())
		n++
	}
	return n, nil
}
