// internal/connector/registry.go
package connector

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps connector names to implementations. Registration
// happens during process wiring; lookups happen per run.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Connector
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Connector)}
}

// Register adds c under its name. Registering an empty name or a
// duplicate is a wiring bug and returns an error.
func (r *Registry) Register(c Connector) error {
	if c == nil {
		return fmt.Errorf("register: nil connector")
	}
	name := c.Name()
	if name == "" {
		return fmt.Errorf("register: connector has empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("register: connector %q already registered", name)
	}
	r.byName[name] = c
	return nil
}

// Lookup returns the connector registered under name.
func (r *Registry) Lookup(name string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown connector %q", name)
	}
	return c, nil
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
