package indexer

import (
	"sort"
	"sync"
)

// Registry tracks the contracts whose logs feed the indexer: the factory and
// every market it has created. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	factory string
	markets map[string]struct{}
}

// NewRegistry returns a Registry for the given factory address. An empty
// factory disables emitter checks on factory events.
func NewRegistry(factory string) *Registry {
	return &Registry{
		factory: NormalizeAddress(factory),
		markets: make(map[string]struct{}),
	}
}

// Factory returns the normalized factory address.
func (r *Registry) Factory() string {
	return r.factory
}

// Add registers market contract addresses.
func (r *Registry) Add(addrs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range addrs {
		r.markets[NormalizeAddress(a)] = struct{}{}
	}
}

// Contains reports whether addr is a registered market.
func (r *Registry) Contains(addr string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.markets[NormalizeAddress(addr)]
	return ok
}

// Markets returns every registered market address in sorted order.
func (r *Registry) Markets() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.markets))
	for a := range r.markets {
		out = append(out, a)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Len returns the number of registered markets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.markets)
}
