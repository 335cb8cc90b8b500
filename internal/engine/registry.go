package engine

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the configured engines. It is populated at startup, sealed, and
// then shared read-only by all document workers.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
	order   []string
	sealed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		engines: make(map[string]Engine),
	}
}

// Register adds an engine. Registration order breaks priority ties.
func (r *Registry) Register(e Engine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("registry is sealed")
	}
	name := e.Descriptor().Name
	if name == "" {
		return fmt.Errorf("engine name is required")
	}
	if _, exists := r.engines[name]; exists {
		return fmt.Errorf("engine %q already registered", name)
	}
	r.engines[name] = e
	r.order = append(r.order, name)
	return nil
}

// Seal makes the registry read-only.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Get returns an engine by name.
func (r *Registry) Get(name string) (Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[name]
	return e, ok
}

// Names returns engine names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered engines.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Candidate is an engine with its effective priority for one run.
type Candidate struct {
	Engine   Engine
	Priority int
}

// Name is a shortcut for the engine's descriptor name.
func (c Candidate) Name() string {
	return c.Engine.Descriptor().Name
}

// Candidates returns engines in ascending effective priority. With an explicit
// order (preferred engine followed by fallbacks) only the named engines are
// returned, prioritized by their position; unknown names are skipped.
// Otherwise every engine is returned by descriptor priority, ties broken by
// registration order.
func (r *Registry) Candidates(order []string) []Candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(order) > 0 {
		seen := make(map[string]bool)
		out := make([]Candidate, 0, len(order))
		for _, name := range order {
			e, ok := r.engines[name]
			if !ok || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, Candidate{Engine: e, Priority: len(out)})
		}
		return out
	}

	out := make([]Candidate, 0, len(r.order))
	for _, name := range r.order {
		e := r.engines[name]
		out = append(out, Candidate{Engine: e, Priority: e.Descriptor().Priority})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// SelectionOrder builds the explicit engine order from the preferred engine and
// fallback list. It returns nil when neither is set.
func SelectionOrder(preferred string, fallbacks []string) []string {
	if preferred == "" && len(fallbacks) == 0 {
		return nil
	}
	order := make([]string, 0, len(fallbacks)+1)
	if preferred != "" {
		order = append(order, preferred)
	}
	for _, name := range fallbacks {
		if name != preferred {
			order = append(order, name)
		}
	}
	return order
}
