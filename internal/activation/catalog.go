package activation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/zjrosen/propane/internal/domain/registry"
)

var (
	// ErrNoFactory means a binding names an implementation the catalog does
	// not know.
	ErrNoFactory = errors.New("no factory registered for implementation")

	// ErrDuplicateFactory is returned when an implementation is registered twice.
	ErrDuplicateFactory = errors.New("implementation already registered")

	// ErrCatalogSealed is returned when registering after the catalog was
	// handed to an Activator.
	ErrCatalogSealed = errors.New("catalog is sealed")
)

// Factory instantiates one implementation.
type Factory func(ctx context.Context, req Request) (any, error)

// Catalog maps implementation identifiers to factories and capability names
// to the Go types instances must satisfy. It is sealed once handed to an
// Activator.
type Catalog struct {
	mu           sync.RWMutex
	factories    map[string]Factory
	capabilities map[string]reflect.Type
	sealed       bool
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		factories:    make(map[string]Factory),
		capabilities: make(map[string]reflect.Type),
	}
}

// Register adds a factory for an implementation identifier.
func (c *Catalog) Register(implementation string, factory Factory) error {
	if implementation == "" || factory == nil {
		return fmt.Errorf("register %q: implementation and factory are required", implementation)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		return fmt.Errorf("register %q: %w", implementation, ErrCatalogSealed)
	}
	if _, ok := c.factories[implementation]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateFactory, implementation)
	}
	c.factories[implementation] = factory
	return nil
}

// MustRegister is Register for program initialization.
func (c *Catalog) MustRegister(implementation string, factory Factory) {
	if err := c.Register(implementation, factory); err != nil {
		panic(err)
	}
}

// Capability declares the Go type behind a capability name. Instances of
// contracts with that capability must be assignable to t (or implement it,
// for interface types).
func (c *Catalog) Capability(name string, t reflect.Type) error {
	if name == "" || t == nil {
		return fmt.Errorf("capability %q: name and type are required", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		return fmt.Errorf("capability %q: %w", name, ErrCatalogSealed)
	}
	c.capabilities[name] = t
	return nil
}

// CapabilityOf declares T as the type behind a capability name.
func CapabilityOf[T any](c *Catalog, name string) error {
	return c.Capability(name, reflect.TypeFor[T]())
}

// Seal prevents further registration.
func (c *Catalog) Seal() {
	c.mu.Lock()
	c.sealed = true
	c.mu.Unlock()
}

// Sealed reports whether the catalog is sealed.
func (c *Catalog) Sealed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sealed
}

// Factory returns the factory for an implementation.
func (c *Catalog) Factory(implementation string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[implementation]
	return f, ok
}

// Implementations returns the registered implementation identifiers, sorted.
func (c *Catalog) Implementations() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.factories))
	for impl := range c.factories {
		out = append(out, impl)
	}
	slices.Sort(out)
	return out
}

func (c *Catalog) capability(name string) (reflect.Type, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.capabilities[name]
	return t, ok
}

// Missing returns the bindings in reg whose implementation has no factory,
// in contract then binding order.
func (c *Catalog) Missing(reg registry.Lookuper) []registry.BindingID {
	var out []registry.BindingID
	for _, ct := range reg.Contracts() {
		entry, ok := reg.Lookup(ct.ID())
		if !ok {
			continue
		}
		for _, b := range entry.Bindings() {
			if _, ok := c.Factory(b.Implementation()); !ok {
				out = append(out, b.ID())
			}
		}
	}
	return out
}
