// Package manifest defines the raw descriptor records every contribution
// source produces, independent of how they were serialized.
package manifest

// Manifest is everything one origin contributes.
type Manifest struct {
	// Origin identifies the contributing module. Sources fill it from the
	// file name or table row when the serialized form leaves it empty.
	Origin    string           `yaml:"origin" json:"origin" validate:"required,excludes=::"`
	Contracts []ContractRecord `yaml:"contracts" json:"contracts,omitempty"`
	Bindings  []BindingRecord  `yaml:"bindings" json:"bindings,omitempty"`
	Config    []ConfigRecord   `yaml:"config" json:"config,omitempty"`

	// Location is where the manifest was read from (file path, table, ...).
	Location string `yaml:"-" json:"-"`
}

// ContractRecord declares a service contract.
type ContractRecord struct {
	ID          string `yaml:"id" json:"id" validate:"required,excludes=::"`
	Capability  string `yaml:"capability" json:"capability,omitempty"`
	Cardinality string `yaml:"cardinality" json:"cardinality,omitempty" validate:"omitempty,oneof=single multiple"`
	InitOrder   int    `yaml:"init_order" json:"init_order,omitempty"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// BindingRecord registers an implementation against a contract. Config, when
// present, is the binding's own fragment merged with Strategy.
type BindingRecord struct {
	Contract       string         `yaml:"contract" json:"contract" validate:"required,excludes=::"`
	Implementation string         `yaml:"implementation" json:"implementation" validate:"required,excludes=::"`
	Priority       int            `yaml:"priority" json:"priority" validate:"gte=0"`
	Strategy       string         `yaml:"strategy" json:"strategy,omitempty" validate:"omitempty,oneof=override append error-on-conflict"`
	Config         map[string]any `yaml:"config" json:"config,omitempty"`
}

// ConfigRecord is a standalone configuration fragment.
type ConfigRecord struct {
	Contract string         `yaml:"contract" json:"contract" validate:"required,excludes=::"`
	Strategy string         `yaml:"strategy" json:"strategy,omitempty" validate:"omitempty,oneof=override append error-on-conflict"`
	Values   map[string]any `yaml:"values" json:"values" validate:"required"`
}

// Empty reports whether the manifest contributes nothing.
func (m Manifest) Empty() bool {
	return len(m.Contracts) == 0 && len(m.Bindings) == 0 && len(m.Config) == 0
}

// Describe returns the location if known, else the origin. Used to tag errors.
func (m Manifest) Describe() string {
	if m.Location != "" {
		return m.Location
	}
	return m.Origin
}
