package presentation

import (
	"errors"

	"github.com/zjrosen/propane/internal/domain/registry"
)

// RegistryDTO represents a sealed registry for presentation.
type RegistryDTO struct {
	ID        string        `json:"id"`
	Parent    string        `json:"parent,omitempty"`
	Contracts []ContractDTO `json:"contracts"`
	Warnings  []ProblemDTO  `json:"warnings,omitempty"`
}

// ContractDTO represents one registry entry.
type ContractDTO struct {
	ID          string           `json:"id"`
	Cardinality string           `json:"cardinality"`
	Capability  string           `json:"capability,omitempty"`
	InitOrder   int              `json:"init_order,omitempty"`
	Description string           `json:"description,omitempty"`
	Origin      string           `json:"origin,omitempty"`
	Implicit    bool             `json:"implicit,omitempty"`
	Inherited   bool             `json:"inherited,omitempty"` // resolved by a parent registry
	Bindings    []BindingDTO     `json:"bindings"`            // always present, in priority order
	Config      []ConfigValueDTO `json:"config,omitempty"`
}

// BindingDTO represents a binding in resolution order.
type BindingDTO struct {
	ID             string         `json:"id"`
	Implementation string         `json:"implementation"`
	Origin         string         `json:"origin"`
	Priority       int            `json:"priority"`
	Winner         bool           `json:"winner,omitempty"`
	Config         map[string]any `json:"config,omitempty"`
}

// ConfigValueDTO is one merged config key with the origins that supplied it.
type ConfigValueDTO struct {
	Key     string   `json:"key"`
	Value   any      `json:"value"`
	Origins []string `json:"origins"`
}

// ProblemDTO is one scan, resolution or activation error.
type ProblemDTO struct {
	Kind     string   `json:"kind"`
	Contract string   `json:"contract,omitempty"`
	Origins  []string `json:"origins,omitempty"`
	Message  string   `json:"message"`
}

// FromEntry converts an entry. inherited marks entries the registry sees
// through its parent.
func FromEntry(e *registry.Entry, inherited bool) ContractDTO {
	ct := e.Contract()
	winner, hasWinner := e.Winner()

	bindings := make([]BindingDTO, 0)
	for _, b := range e.Bindings() {
		dto := BindingDTO{
			ID:             b.ID().String(),
			Implementation: b.Implementation(),
			Origin:         b.Origin(),
			Priority:       b.Priority(),
			Winner:         hasWinner && b.ID() == winner.ID(),
		}
		if f, ok := b.Fragment(); ok {
			dto.Config = f.Values()
		}
		bindings = append(bindings, dto)
	}

	cfg := e.Config()
	var values []ConfigValueDTO
	for _, key := range cfg.Keys() {
		v, _ := cfg.Get(key)
		values = append(values, ConfigValueDTO{Key: key, Value: v, Origins: cfg.Origins(key)})
	}

	return ContractDTO{
		ID:          ct.ID(),
		Cardinality: string(ct.Cardinality()),
		Capability:  ct.Capability(),
		InitOrder:   ct.InitOrder(),
		Description: ct.Description(),
		Origin:      ct.Origin(),
		Implicit:    ct.Implicit(),
		Inherited:   inherited,
		Bindings:    bindings,
		Config:      values,
	}
}

// FromRegistry converts every visible entry, sorted by contract.
func FromRegistry(reg *registry.Registry) RegistryDTO {
	dto := RegistryDTO{ID: reg.ID(), Contracts: make([]ContractDTO, 0, reg.Len())}
	if p := reg.Parent(); p != nil {
		dto.Parent = p.ID()
	}
	for _, e := range reg.Entries() {
		dto.Contracts = append(dto.Contracts, FromEntry(e, !reg.Owns(e.Contract().ID())))
	}
	return dto
}

// FromErrors flattens aggregated errors into problems, one per leaf error.
func FromErrors(errs ...error) []ProblemDTO {
	var out []ProblemDTO
	for _, err := range errs {
		if err == nil {
			continue
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			out = append(out, FromErrors(joined.Unwrap()...)...)
			continue
		}
		out = append(out, fromError(err))
	}
	return out
}

func fromError(err error) ProblemDTO {
	var (
		malformed  *registry.MalformedDescriptorError
		unreadable *registry.SourceUnreadableError
		conflict   *registry.ResolutionConflictError
		activation *registry.ActivationFailedError
	)
	p := ProblemDTO{Kind: "error", Message: err.Error()}
	switch {
	case errors.As(err, &conflict):
		p.Kind = "conflict:" + string(conflict.Kind)
		p.Contract = conflict.Contract
		p.Origins = conflict.Origins
	case errors.As(err, &malformed):
		p.Kind = "malformed"
		p.Origins = []string{malformed.Origin}
	case errors.As(err, &unreadable):
		p.Kind = "unreadable"
		p.Origins = []string{unreadable.Origin}
	case errors.As(err, &activation):
		p.Kind = "activation"
		p.Contract = activation.Binding.Contract
		p.Origins = []string{activation.Binding.Origin}
	}
	return p
}
