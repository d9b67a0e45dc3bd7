package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Provider is the contract between the sync engine and a source of work
// items. Implementations translate raw API responses into normalized
// Items; the engine never sees provider-specific payloads.
//
// FetchItems may return tagged errors from this package (NetworkError,
// HTTPError, TimeoutError, AuthError) and the engine will retry or
// surface them according to its policy.
type Provider interface {
	// Name returns the unique source id, e.g. "github-prs".
	Name() string

	// FetchItems retrieves the current remote item set. Results are
	// produced fresh on every call; the engine owns nothing across
	// calls beyond its persisted checkpoints.
	FetchItems(ctx context.Context) ([]Item, error)

	// IsEnabled reports whether the source should participate in
	// syncAll iterations.
	IsEnabled() bool

	// IsAuthenticated reports whether the source holds a usable
	// credential. Unauthenticated sources are skipped, not failed.
	IsAuthenticated() bool

	// Configure applies source settings from the configuration layer.
	Configure(settings map[string]any) error
}

// Constructor creates a Provider instance of a given type.
// Implementations register themselves with Register().
type Constructor func() Provider

var (
	constructors   = make(map[string]Constructor)
	constructorsMu sync.RWMutex
)

// Register registers a provider constructor under a type name.
// This is called from init() functions in implementation packages.
//
// Example:
//
//	func init() {
//	    remote.Register("static", func() remote.Provider { return New() })
//	}
func Register(typ string, constructor Constructor) {
	constructorsMu.Lock()
	defer constructorsMu.Unlock()

	if constructor == nil {
		panic(fmt.Sprintf("remote: Register constructor is nil for type %s", typ))
	}
	if _, exists := constructors[typ]; exists {
		panic(fmt.Sprintf("remote: Register called twice for type %s", typ))
	}
	constructors[typ] = constructor
}

// NewProvider creates a provider instance of the given registered type.
func NewProvider(typ string) (Provider, error) {
	constructorsMu.RLock()
	constructor := constructors[typ]
	constructorsMu.RUnlock()

	if constructor == nil {
		return nil, fmt.Errorf("%w: no constructor for type %q", ErrProviderNotFound, typ)
	}
	return constructor(), nil
}

// RegisteredTypes returns all registered provider type names, sorted.
// Useful for testing and CLI help output.
func RegisteredTypes() []string {
	constructorsMu.RLock()
	defer constructorsMu.RUnlock()

	types := make([]string, 0, len(constructors))
	for t := range constructors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// UnregisterAll clears all registered constructors.
// This is primarily useful for testing.
func UnregisterAll() {
	constructorsMu.Lock()
	defer constructorsMu.Unlock()
	constructors = make(map[string]Constructor)
}

// Registry holds the configured provider instances for a running
// process, keyed by source id. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Add registers a configured provider instance under its name.
// Adding a provider with an existing name replaces the old instance;
// configuration reloads re-register sources in place.
func (r *Registry) Add(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Remove drops a provider instance by source id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, id)
}

// Get retrieves a provider by source id.
func (r *Registry) Get(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}
	return p, nil
}

// IDs returns all registered source ids, sorted for deterministic
// iteration order in syncAll.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
