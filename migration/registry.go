package migration

import (
	"sync"

	"github.com/pkg/errors"
)

var ErrNotRegistered = errors.New("migration is not registered")
var ErrAlreadyRegistered = errors.New("migration is already registered")

// Registry maps unit names to their executable units. Generated
// artifacts register themselves into the default registry from
// init, which is how on-disk discovery gets paired with compiled
// code.
type Registry struct {
	mu    sync.RWMutex
	units map[string]*Unit
}

var _ Loader = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{units: make(map[string]*Unit)}
}

func (r *Registry) Add(u *Unit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.units[u.Name]; ok {
		return errors.Wrapf(ErrAlreadyRegistered, "[%s]", u.Name)
	}

	r.units[u.Name] = u

	return nil
}

func (r *Registry) Load(name string) (*Unit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.units[name]
	if !ok {
		return nil, errors.Wrapf(ErrNotRegistered, "[%s]", name)
	}

	return u, nil
}

var defaultRegistry = NewRegistry()

// Register adds u to the default registry. It is meant to be called
// from init of generated artifacts, so a duplicate name is a build
// misconfiguration and panics.
func Register(u *Unit) {
	if err := defaultRegistry.Add(u); err != nil {
		panic(err)
	}
}

func DefaultRegistry() *Registry {
	return defaultRegistry
}
