package registry

import "slices"

// Entry is the resolved view of one contract: its bindings in priority order
// and its merged configuration.
type Entry struct {
	contract Contract
	bindings []Binding
	config   Config
}

// Contract returns the resolved contract.
func (e *Entry) Contract() Contract { return e.contract }

// Bindings returns the bindings ordered by priority descending, then origin,
// then implementation.
func (e *Entry) Bindings() []Binding { return slices.Clone(e.bindings) }

// Implementations returns the implementation identifiers in binding order.
func (e *Entry) Implementations() []string {
	out := make([]string, len(e.bindings))
	for i, b := range e.bindings {
		out[i] = b.Implementation()
	}
	return out
}

// Winner returns the highest-ordered binding.
func (e *Entry) Winner() (Binding, bool) {
	if len(e.bindings) == 0 {
		return Binding{}, false
	}
	return e.bindings[0], true
}

// Config returns the merged configuration.
func (e *Entry) Config() Config { return e.config }

// ConfigOnly reports whether the entry has configuration but no bindings.
func (e *Entry) ConfigOnly() bool { return len(e.bindings) == 0 }
