package dns

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-logr/logr"
)

// Factory is a constructor function that providers register to create themselves.
type Factory func(log logr.Logger, settings map[string]string) (Provider, error)

var (
	mu        sync.Mutex
	factories = make(map[string]Factory)
)

// Register is called by provider packages in their init() to self-register.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("dns: provider %q already registered", name))
	}
	factories[name] = f
}

// Registered returns the sorted names of all registered provider types.
func Registered() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewProvider looks up the named provider type in the registry and creates it.
func NewProvider(name string, log logr.Logger, settings map[string]string) (Provider, error) {
	mu.Lock()
	f, ok := factories[name]
	mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: type %q (registered: %v)", ErrUnknownProvider, name, Registered())
	}
	return f(log, settings)
}

// Set maps the numeric provider ids stored in subdomain bindings to
// configured provider instances. It is filled once at startup and
// read-only afterwards.
type Set struct {
	providers map[int]Provider
}

// NewSet returns an empty provider set.
func NewSet() *Set {
	return &Set{providers: make(map[int]Provider)}
}

// Add binds id to p. Ids must be unique within a set.
func (s *Set) Add(id int, p Provider) error {
	if _, exists := s.providers[id]; exists {
		return fmt.Errorf("dns: provider id %d already in use", id)
	}
	s.providers[id] = p
	return nil
}

// Lookup returns the provider bound to id.
func (s *Set) Lookup(id int) (Provider, error) {
	p, ok := s.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownProvider, id)
	}
	return p, nil
}

// Len reports how many providers are configured.
func (s *Set) Len() int {
	return len(s.providers)
}
