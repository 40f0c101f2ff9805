package registry

import (
	"cmp"
	"context"
	"slices"
	"sort"
)

// Option configures Resolve.
type Option func(*resolveOptions)

type resolveOptions struct {
	id     string
	parent *Registry
}

// WithID sets the generation identifier of the resolved registry.
func WithID(id string) Option {
	return func(o *resolveOptions) { o.id = id }
}

// WithParent resolves a child registry. Lookups of contracts the child does
// not own fall back to parent, and contract declarations made by the parent
// apply to the child's bindings.
func WithParent(parent *Registry) Option {
	return func(o *resolveOptions) { o.parent = parent }
}

// Resolve merges contributions into a sealed Registry. It either returns a
// registry or an error, never both: conflicts are reported together as
// *ResolutionErrors and cancellation returns ctx.Err().
func Resolve(ctx context.Context, c Contributions, opts ...Option) (*Registry, error) {
	var o resolveOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var conflicts []*ResolutionConflictError

	contracts, contractConflicts := mergeContracts(c.Contracts)
	conflicts = append(conflicts, contractConflicts...)

	bindingsByContract := make(map[string][]Binding)
	for _, b := range c.Bindings {
		bindingsByContract[b.Contract()] = append(bindingsByContract[b.Contract()], b)
	}
	fragmentsByContract := make(map[string][]Fragment)
	for _, f := range c.Fragments {
		fragmentsByContract[f.Contract()] = append(fragmentsByContract[f.Contract()], f)
	}

	ids := make(map[string]struct{}, len(contracts))
	for id := range contracts {
		ids[id] = struct{}{}
	}
	for id := range bindingsByContract {
		ids[id] = struct{}{}
	}
	for id := range fragmentsByContract {
		ids[id] = struct{}{}
	}
	order := make([]string, 0, len(ids))
	for id := range ids {
		order = append(order, id)
	}
	sort.Strings(order)

	entries := make(map[string]*Entry, len(order))
	for _, id := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		contract, ok := contracts[id]
		if !ok {
			contract = inheritedOrImplicit(id, o.parent, bindingsByContract[id], fragmentsByContract[id])
		}

		bindings, bindingConflicts := orderBindings(contract, bindingsByContract[id])
		conflicts = append(conflicts, bindingConflicts...)

		cfg, configConflicts := mergeFragments(id, fragmentsByContract[id])
		conflicts = append(conflicts, configConflicts...)

		entries[id] = &Entry{contract: contract, bindings: bindings, config: cfg}
	}

	if len(conflicts) > 0 {
		sortConflicts(conflicts)
		return nil, &ResolutionErrors{Conflicts: conflicts}
	}

	// Commit point: nothing above is visible until the registry is returned.
	return &Registry{
		id:      o.id,
		entries: entries,
		order:   order,
		parent:  o.parent,
	}, nil
}

// mergeContracts folds repeated declarations of the same contract. Agreeing
// declarations collapse into the first one; disagreement is a conflict.
func mergeContracts(declared []Contract) (map[string]Contract, []*ResolutionConflictError) {
	merged := make(map[string]Contract, len(declared))
	declarers := make(map[string][]Contract)
	for _, ct := range declared {
		declarers[ct.ID()] = append(declarers[ct.ID()], ct)
		if _, ok := merged[ct.ID()]; !ok {
			merged[ct.ID()] = ct
		}
	}

	var conflicts []*ResolutionConflictError
	for id, decls := range declarers {
		first := decls[0]
		var cardinalityClash, capabilityClash bool
		for _, d := range decls[1:] {
			if d.Cardinality() != first.Cardinality() {
				cardinalityClash = true
			}
			if d.Capability() != "" && first.Capability() != "" && d.Capability() != first.Capability() {
				capabilityClash = true
			}
		}
		if cardinalityClash {
			conflicts = append(conflicts, &ResolutionConflictError{Contract: id, Kind: ConflictCardinality, Origins: contractOrigins(decls)})
		}
		if capabilityClash {
			conflicts = append(conflicts, &ResolutionConflictError{Contract: id, Kind: ConflictCapability, Origins: contractOrigins(decls)})
		}

		// Later declarations may fill in details the first one left empty.
		for _, d := range decls[1:] {
			if first.capability == "" {
				first.capability = d.capability
			}
			if first.description == "" {
				first.description = d.description
			}
			if first.initOrder == 0 {
				first.initOrder = d.initOrder
			}
		}
		merged[id] = first
	}
	return merged, conflicts
}

func inheritedOrImplicit(id string, parent *Registry, bindings []Binding, fragments []Fragment) Contract {
	if parent != nil {
		if e, ok := parent.Lookup(id); ok {
			return e.contract
		}
	}
	origin := ""
	if len(bindings) > 0 {
		origin = bindings[0].Origin()
	} else if len(fragments) > 0 {
		origin = fragments[0].Origin()
	}
	return ImplicitContract(id, origin)
}

// orderBindings sorts bindings by priority descending with origin and then
// implementation as tiebreaks, and reports ambiguous or tied bindings.
func orderBindings(contract Contract, bindings []Binding) ([]Binding, []*ResolutionConflictError) {
	if len(bindings) == 0 {
		return nil, nil
	}

	sorted := slices.Clone(bindings)
	slices.SortStableFunc(sorted, func(a, b Binding) int {
		if c := cmp.Compare(b.Priority(), a.Priority()); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Origin(), b.Origin()); c != 0 {
			return c
		}
		return cmp.Compare(a.Implementation(), b.Implementation())
	})

	var conflicts []*ResolutionConflictError

	// Same origin, same priority: the origin itself is ambiguous.
	for i := 0; i < len(sorted); {
		j := i + 1
		for j < len(sorted) && sorted[j].Priority() == sorted[i].Priority() && sorted[j].Origin() == sorted[i].Origin() {
			j++
		}
		if j-i > 1 {
			conflicts = append(conflicts, &ResolutionConflictError{
				Contract: contract.ID(),
				Kind:     ConflictAmbiguousOrigin,
				Priority: sorted[i].Priority(),
				Origins:  []string{sorted[i].Origin()},
			})
		}
		i = j
	}

	if contract.SingleWinner() {
		if tie := priorityTie(contract.ID(), sorted); tie != nil {
			conflicts = append(conflicts, tie)
		}
	}

	return sorted, conflicts
}

// priorityTie folds every equal-priority group spanning several origins into
// one conflict for the contract. Priority is the highest tied priority.
func priorityTie(contract string, sorted []Binding) *ResolutionConflictError {
	var tie *ResolutionConflictError
	seen := make(map[string]struct{})
	for i := 0; i < len(sorted); {
		j := i + 1
		for j < len(sorted) && sorted[j].Priority() == sorted[i].Priority() {
			j++
		}
		origins := distinctOrigins(sorted[i:j])
		if len(origins) > 1 {
			if tie == nil {
				tie = &ResolutionConflictError{Contract: contract, Kind: ConflictPriorityTie, Priority: sorted[i].Priority()}
			}
			for _, o := range origins {
				if _, ok := seen[o]; !ok {
					seen[o] = struct{}{}
					tie.Origins = append(tie.Origins, o)
				}
			}
		}
		i = j
	}
	if tie != nil {
		sort.Strings(tie.Origins)
	}
	return tie
}

func distinctOrigins(bindings []Binding) []string {
	var out []string
	for _, b := range bindings {
		if !slices.Contains(out, b.Origin()) {
			out = append(out, b.Origin())
		}
	}
	return out
}

func contractOrigins(decls []Contract) []string {
	var out []string
	for _, d := range decls {
		if !slices.Contains(out, d.Origin()) {
			out = append(out, d.Origin())
		}
	}
	sort.Strings(out)
	return out
}

func sortConflicts(conflicts []*ResolutionConflictError) {
	slices.SortStableFunc(conflicts, func(a, b *ResolutionConflictError) int {
		if c := cmp.Compare(a.Contract, b.Contract); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Key, b.Key); c != 0 {
			return c
		}
		return cmp.Compare(b.Priority, a.Priority)
	})
}
