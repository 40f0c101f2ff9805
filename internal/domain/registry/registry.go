package registry

import (
	"slices"
	"sort"
)

// Lookuper is the read surface of a Registry.
type Lookuper interface {
	Lookup(contract string) (*Entry, bool)
	Contracts() []Contract
}

var _ Lookuper = (*Registry)(nil)

// Registry is the sealed result of resolution. It is never mutated after
// Resolve returns, so concurrent reads need no locking.
type Registry struct {
	id      string
	entries map[string]*Entry
	order   []string // own contract ids, sorted
	parent  *Registry
}

// ID returns the generation identifier assigned at resolution.
func (r *Registry) ID() string { return r.id }

// Parent returns the parent registry, or nil.
func (r *Registry) Parent() *Registry { return r.parent }

// Lookup returns the entry for contract, falling back to the parent chain.
// Unknown contracts return (nil, false).
func (r *Registry) Lookup(contract string) (*Entry, bool) {
	for reg := r; reg != nil; reg = reg.parent {
		if e, ok := reg.entries[contract]; ok {
			return e, true
		}
	}
	return nil, false
}

// Owns reports whether contract was resolved by this registry rather than a parent.
func (r *Registry) Owns(contract string) bool {
	_, ok := r.entries[contract]
	return ok
}

// Contracts returns every visible contract sorted by identifier.
func (r *Registry) Contracts() []Contract {
	ids := r.ContractIDs()
	out := make([]Contract, 0, len(ids))
	for _, id := range ids {
		e, _ := r.Lookup(id)
		out = append(out, e.contract)
	}
	return out
}

// ContractIDs returns every visible contract identifier in sorted order.
func (r *Registry) ContractIDs() []string {
	if r.parent == nil {
		return slices.Clone(r.order)
	}
	seen := make(map[string]struct{})
	var ids []string
	for reg := r; reg != nil; reg = reg.parent {
		for _, id := range reg.order {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Entries returns every visible entry in contract identifier order.
func (r *Registry) Entries() []*Entry {
	ids := r.ContractIDs()
	out := make([]*Entry, 0, len(ids))
	for _, id := range ids {
		e, _ := r.Lookup(id)
		out = append(out, e)
	}
	return out
}

// Len returns the number of visible contracts.
func (r *Registry) Len() int {
	if r.parent == nil {
		return len(r.order)
	}
	return len(r.ContractIDs())
}

// BindingCount returns the number of bindings across visible entries.
func (r *Registry) BindingCount() int {
	n := 0
	for _, e := range r.Entries() {
		n += len(e.bindings)
	}
	return n
}
