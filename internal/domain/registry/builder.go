package registry

import (
	"errors"
	"math"
)

// Priorities.
const (
	// PriorityFallback is the lowest priority, used by default implementations.
	PriorityFallback = 0
	// PriorityBuilder is reserved for bindings the application supplies itself.
	PriorityBuilder = math.MaxInt32
)

// Builder errors
var (
	ErrEmptyContract       = errors.New("binding contract cannot be empty or contain \"::\"")
	ErrEmptyImplementation = errors.New("binding implementation cannot be empty or contain \"::\"")
	ErrEmptyOrigin         = errors.New("binding origin cannot be empty or contain \"::\"")
	ErrNegativePriority    = errors.New("binding priority cannot be negative")
)

// Binding is a concrete implementation registered against a contract.
type Binding struct {
	id       BindingID
	priority int
	fragment *Fragment
}

// ID returns the binding identity.
func (b Binding) ID() BindingID { return b.id }

// Contract returns the contract identifier.
func (b Binding) Contract() string { return b.id.Contract }

// Implementation returns the implementation identifier.
func (b Binding) Implementation() string { return b.id.Implementation }

// Origin returns the contributing origin.
func (b Binding) Origin() string { return b.id.Origin }

// Priority returns the binding priority. Higher wins.
func (b Binding) Priority() int { return b.priority }

// Fragment returns the binding's own configuration fragment, if any.
func (b Binding) Fragment() (Fragment, bool) {
	if b.fragment == nil {
		return Fragment{}, false
	}
	return *b.fragment, true
}

// BindingBuilder provides a fluent API for creating bindings
type BindingBuilder struct {
	contract       string
	implementation string
	origin         string
	priority       int
	fragment       *Fragment
}

// NewBindingBuilder creates a new binding builder for a contract
func NewBindingBuilder(contract string) *BindingBuilder {
	return &BindingBuilder{contract: contract}
}

// Implementation sets the implementation identifier
func (b *BindingBuilder) Implementation(impl string) *BindingBuilder {
	b.implementation = impl
	return b
}

// Origin sets the contributing origin
func (b *BindingBuilder) Origin(origin string) *BindingBuilder {
	b.origin = origin
	return b
}

// Priority sets the priority
func (b *BindingBuilder) Priority(p int) *BindingBuilder {
	b.priority = p
	return b
}

// Fragment attaches a configuration fragment
func (b *BindingBuilder) Fragment(f Fragment) *BindingBuilder {
	b.fragment = &f
	return b
}

// Build validates and creates the binding. Validation failures are returned
// as *MalformedDescriptorError wrapping one of the builder sentinels.
func (b *BindingBuilder) Build() (Binding, error) {
	var cause error
	switch {
	case !validName(b.contract):
		cause = ErrEmptyContract
	case !validName(b.implementation):
		cause = ErrEmptyImplementation
	case !validName(b.origin):
		cause = ErrEmptyOrigin
	case b.priority < 0:
		cause = ErrNegativePriority
	}
	if cause != nil {
		return Binding{}, &MalformedDescriptorError{
			Origin:     b.origin,
			Descriptor: "binding " + b.contract + "/" + b.implementation,
			Err:        cause,
		}
	}

	binding := Binding{
		id: BindingID{
			Contract:       b.contract,
			Implementation: b.implementation,
			Origin:         b.origin,
		},
		priority: b.priority,
	}
	if b.fragment != nil {
		f := *b.fragment
		f.contract = b.contract
		f.origin = b.origin
		binding.fragment = &f
	}
	return binding, nil
}
