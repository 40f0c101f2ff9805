package testutil

import "github.com/zjrosen/propane/internal/manifest"

// ContractOption configures a contract record.
type ContractOption func(*manifest.ContractRecord)

// Single makes the contract single-winner.
func Single() ContractOption {
	return func(c *manifest.ContractRecord) { c.Cardinality = "single" }
}

// Multiple makes the contract multi-binding. This is the default.
func Multiple() ContractOption {
	return func(c *manifest.ContractRecord) { c.Cardinality = "multiple" }
}

// Capability sets the capability name.
func Capability(name string) ContractOption {
	return func(c *manifest.ContractRecord) { c.Capability = name }
}

// InitOrder sets the eager activation order.
func InitOrder(n int) ContractOption {
	return func(c *manifest.ContractRecord) { c.InitOrder = n }
}

// Description sets the contract description.
func Description(d string) ContractOption {
	return func(c *manifest.ContractRecord) { c.Description = d }
}

// BindingOption configures a binding record.
type BindingOption func(*manifest.BindingRecord)

// Priority sets the binding priority.
func Priority(p int) BindingOption {
	return func(b *manifest.BindingRecord) { b.Priority = p }
}

// Values attaches a config fragment to the binding.
func Values(values map[string]any) BindingOption {
	return func(b *manifest.BindingRecord) { b.Config = values }
}

// Merge sets the merge strategy of the binding's fragment.
func Merge(strategy string) BindingOption {
	return func(b *manifest.BindingRecord) { b.Strategy = strategy }
}

// ConfigOption configures a standalone config record.
type ConfigOption func(*manifest.ConfigRecord)

// Strategy sets the merge strategy of a standalone fragment.
func Strategy(strategy string) ConfigOption {
	return func(c *manifest.ConfigRecord) { c.Strategy = strategy }
}
