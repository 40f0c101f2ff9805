// Package registry implements the domain layer of the service registry.
//
// This package follows Domain-Driven Design (DDD) principles:
//   - Has no knowledge of infrastructure concerns (file I/O, YAML/HCL parsing, databases)
//   - Defines the descriptor value objects (Contract, Binding, Fragment)
//   - Implements resolution: grouping, priority ordering, config merging and conflict detection
//   - Produces a sealed, immutable Registry safe for concurrent reads
//
// # Descriptor Model
//
// Contract is an abstract capability identified by a qualified name. Its
// Cardinality decides whether every binding is retained (CardinalityMultiple)
// or exactly one winner is expected (CardinalitySingle).
//
// Binding registers an implementation against a contract with a priority and
// the origin module that contributed it. Use BindingBuilder for construction.
//
// Fragment is a set of configuration values contributed by one origin for one
// contract, merged according to its Strategy.
//
// # Resolution
//
// Resolve turns Contributions (everything the scanner collected, in scan
// order) into a *Registry. Resolution is all-or-nothing: it returns either a
// sealed registry or a *ResolutionErrors listing every conflict, never both.
//
// # Registry
//
// Registry maps contract identifiers to Entry values. Lookup of an unknown
// contract returns (nil, false). Contracts enumerates in identifier order.
// A registry resolved WithParent falls back to its parent for contracts it
// does not own.
package registry
