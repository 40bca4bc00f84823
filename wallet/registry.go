package wallet

import (
	"fmt"
	"sort"
	"strings"
)

// Registry is an immutable set of backends keyed by network name.
// Build it once at startup with NewRegistry and share it freely;
// lookups are read-only.
type Registry struct {
	backends map[string]Backend
}

// NewRegistry builds a Registry from the given backends. Network names
// are case-insensitive; registering two backends for the same network
// is a wiring error and fails loudly.
func NewRegistry(backends ...Backend) (*Registry, error) {
	r := &Registry{backends: make(map[string]Backend, len(backends))}
	for _, b := range backends {
		name := strings.ToLower(b.Network())
		if name == "" {
			return nil, fmt.Errorf("wallet: backend with empty network name")
		}
		if _, dup := r.backends[name]; dup {
			return nil, fmt.Errorf("wallet: duplicate backend for network %q", name)
		}
		r.backends[name] = b
	}
	return r, nil
}

// MustRegistry is like NewRegistry but panics on error. Use for
// hardcoded wiring.
func MustRegistry(backends ...Backend) *Registry {
	r, err := NewRegistry(backends...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the backend for a network name, case-insensitively.
func (r *Registry) Lookup(network string) (Backend, bool) {
	b, ok := r.backends[strings.ToLower(network)]
	return b, ok
}

// Has reports whether a network name is registered.
func (r *Registry) Has(network string) bool {
	_, ok := r.Lookup(network)
	return ok
}

// Networks returns the registered network names, sorted.
func (r *Registry) Networks() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Currencies returns the distinct currency codes served by the
// registered backends, sorted. Registration seeds one zero balance per
// entry.
func (r *Registry) Currencies() []string {
	seen := make(map[string]struct{}, len(r.backends))
	for _, b := range r.backends {
		seen[strings.ToLower(b.Currency())] = struct{}{}
	}
	currencies := make([]string, 0, len(seen))
	for c := range seen {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)
	return currencies
}

// Len returns the number of registered backends.
func (r *Registry) Len() int { return len(r.backends) }
