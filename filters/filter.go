// Package filters implements spec.md §4.7's filter set as value.Callable
// natives, grounded on the teacher's filters package (same category split:
// string/html/numeric/collection/utility) with every filter body rewritten
// from interface{}+reflect onto value.Value's tagged union — the teacher's
// type switches collapse into Value.Kind() dispatch plus the shared
// conversion helpers in helpers.go.
package filters

import (
	"fmt"
	"sync"

	"github.com/kilnjinja/kiln/value"
)

// Func is a filter's implementation: target is the piped-in value, extra
// the filter's own positional arguments, kwargs its named ones.
type Func func(target value.Value, extra []value.Value, kwargs map[string]value.Value) (value.Value, error)

// Registry holds the environment's filter table: builtins registered at
// construction plus whatever AddFilter layers on top, per spec.md §4.6.
type Registry struct {
	mu      sync.RWMutex
	filters map[string]*value.Callable
}

func NewRegistry() *Registry {
	r := &Registry{filters: make(map[string]*value.Callable)}
	r.registerBuiltins()
	return r
}

func wrap(name string, fn Func) *value.Callable {
	return &value.Callable{
		Name: name,
		Kind: value.CallableFilter,
		Native: func(args []value.Value, kwargs map[string]value.Value) (value.Value, error) {
			if len(args) == 0 {
				return value.Value{}, fmt.Errorf("filter %q called with no target", name)
			}
			return fn(args[0], args[1:], kwargs)
		},
	}
}

func (r *Registry) register(name string, fn Func) {
	r.filters[name] = wrap(name, fn)
}

// Register adds or replaces a user-defined filter.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.register(name, fn)
}

func (r *Registry) Get(name string) (*value.Callable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.filters[name]
	return c, ok
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.filters))
	for n := range r.filters {
		names = append(names, n)
	}
	return names
}

func (r *Registry) registerBuiltins() {
	registerStringFilters(r)
	registerHTMLFilters(r)
	registerNumericFilters(r)
	registerCollectionFilters(r)
	registerUtilityFilters(r)
}
