package provider

import (
	"fmt"
	"sync"
)

// Factory constructs a provider instance.
type Factory func() Provider

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// RegisterFactory makes a provider constructor available by name.
// Typically called from a provider package's init.
func RegisterFactory(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Registry manages the lifecycle of loaded providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Load initializes and registers a provider by name. Loading an
// already-loaded provider is a no-op.
func (r *Registry) Load(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return nil
	}

	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown provider: %s", name)
	}

	r.providers[name] = factory()
	return nil
}

// Get returns a loaded provider.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider not loaded: %s", name)
	}
	return p, nil
}

// Schemas collects the schema for every resource type across a set of
// (provider, type) pairs, keyed by resource type.
func (r *Registry) Schemas(types map[string]string) map[string]Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Schema, len(types))
	for resourceType, providerName := range types {
		if p, ok := r.providers[providerName]; ok {
			out[resourceType] = p.Schema(resourceType)
		}
	}
	return out
}
