package registry

import "fmt"

// Cardinality decides how many bindings of a contract are expected to win.
type Cardinality string

const (
	// CardinalityMultiple retains every binding, ordered by priority.
	CardinalityMultiple Cardinality = "multiple"
	// CardinalitySingle expects one winner; equal-priority ties are conflicts.
	CardinalitySingle Cardinality = "single"
)

// ParseCardinality maps a manifest value to a Cardinality. Empty means multiple.
func ParseCardinality(s string) (Cardinality, error) {
	switch Cardinality(s) {
	case "", CardinalityMultiple:
		return CardinalityMultiple, nil
	case CardinalitySingle:
		return CardinalitySingle, nil
	default:
		return "", fmt.Errorf("unknown cardinality %q", s)
	}
}

// Contract is an abstract capability that implementations can satisfy.
type Contract struct {
	id          string
	capability  string
	cardinality Cardinality
	initOrder   int
	description string
	origin      string
	implicit    bool
}

// NewContract validates and creates a contract declaration.
func NewContract(id, origin string, cardinality Cardinality) (Contract, error) {
	if !validName(id) {
		return Contract{}, &MalformedDescriptorError{Origin: origin, Descriptor: "contract", Reason: "contract identifier is required"}
	}
	if !validName(origin) {
		return Contract{}, &MalformedDescriptorError{Origin: origin, Descriptor: "contract " + id, Reason: "origin is required"}
	}
	if cardinality == "" {
		cardinality = CardinalityMultiple
	}
	if _, err := ParseCardinality(string(cardinality)); err != nil {
		return Contract{}, &MalformedDescriptorError{Origin: origin, Descriptor: "contract " + id, Reason: err.Error()}
	}
	return Contract{id: id, origin: origin, cardinality: cardinality}, nil
}

// ImplicitContract creates the contract used when a descriptor references an
// identifier that no source declared.
func ImplicitContract(id, origin string) Contract {
	return Contract{id: id, origin: origin, cardinality: CardinalityMultiple, implicit: true}
}

// WithCapability returns a copy with the capability shape set.
func (c Contract) WithCapability(capability string) Contract {
	c.capability = capability
	return c
}

// WithInitOrder returns a copy with the eager activation order set.
func (c Contract) WithInitOrder(order int) Contract {
	c.initOrder = order
	return c
}

// WithDescription returns a copy with the description set.
func (c Contract) WithDescription(d string) Contract {
	c.description = d
	return c
}

// ID returns the qualified contract identifier.
func (c Contract) ID() string { return c.id }

// Capability returns the declared capability shape, possibly empty.
func (c Contract) Capability() string { return c.capability }

// Cardinality returns the contract cardinality.
func (c Contract) Cardinality() Cardinality { return c.cardinality }

// SingleWinner reports whether the contract expects exactly one winner.
func (c Contract) SingleWinner() bool { return c.cardinality == CardinalitySingle }

// InitOrder returns the eager activation order. Lower activates first.
func (c Contract) InitOrder() int { return c.initOrder }

// Description returns the human-readable description.
func (c Contract) Description() string { return c.description }

// Origin returns the origin of the first declaration.
func (c Contract) Origin() string { return c.origin }

// Implicit reports whether the contract was created on first reference.
func (c Contract) Implicit() bool { return c.implicit }
