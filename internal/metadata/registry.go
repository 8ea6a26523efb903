package metadata

import (
	"fmt"
	"sync"
)

// Registry holds all registered type descriptors. It is built once at process
// start and treated as read-only afterwards; there is no ambient global
// instance, callers receive the registry explicitly.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*TypeDescriptor
	order []string
}

func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*TypeDescriptor)}
}

// Register validates and adds a type descriptor. Expression rules are
// compiled here so call sites never pay compilation cost. Failures are
// configuration errors and abort registration.
func (r *Registry) Register(t *TypeDescriptor) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("register type: %w", err)
	}
	for _, rule := range t.Rules {
		if err := rule.Compile(); err != nil {
			return fmt.Errorf("register type %s: %w", t.Name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[t.Name]; exists {
		return fmt.Errorf("register type: duplicate type %s", t.Name)
	}
	r.types[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// MustRegister is Register for static wiring at startup; it panics on
// configuration errors.
func (r *Registry) MustRegister(t *TypeDescriptor) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Type returns the descriptor with the given name, or nil.
func (r *Registry) Type(name string) *TypeDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.types[name]
}

// All returns all registered descriptors in registration order.
func (r *Registry) All() []*TypeDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*TypeDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.types[name])
	}
	return out
}
