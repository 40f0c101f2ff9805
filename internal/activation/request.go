package activation

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/zjrosen/propane/internal/domain/registry"
)

// Request is what a factory receives.
type Request struct {
	// Binding being instantiated.
	Binding registry.Binding
	// Config holds the binding's own fragment values, empty when the binding
	// carries none.
	Config registry.Config
	// ContractConfig is the contract's merged configuration.
	ContractConfig registry.Config

	ctx       context.Context
	activator *Activator
}

// Require returns the instance of a single-winner dependency, or the first
// instance of a multiple one. Cycles through Require fail with
// ErrActivationCycle.
func (r Request) Require(contract string) (any, error) {
	instances, errs := r.activator.Activate(r.ctx, contract)
	if len(instances) == 0 {
		return nil, noInstance(contract, errs)
	}
	return instances[0].Value, nil
}

// RequireAll returns every instance of a dependency. Failed bindings are
// reported in the error while the other instances are still returned.
func (r Request) RequireAll(contract string) ([]any, error) {
	instances, errs := r.activator.Activate(r.ctx, contract)
	out := make([]any, len(instances))
	for i, inst := range instances {
		out[i] = inst.Value
	}
	return out, errors.Join(errs...)
}

func noInstance(contract string, errs []error) error {
	if len(errs) == 0 {
		return fmt.Errorf("%w for contract %s", ErrNoInstance, contract)
	}
	return fmt.Errorf("%w for contract %s: %w", ErrNoInstance, contract, errors.Join(errs...))
}

// Get activates contract and returns its first instance as T.
func Get[T any](ctx context.Context, a *Activator, contract string) (T, error) {
	var zero T
	instances, errs := a.Activate(ctx, contract)
	if len(instances) == 0 {
		return zero, noInstance(contract, errs)
	}
	v, ok := instances[0].Value.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T, not %s", ErrCapabilityMismatch, instances[0].Binding, instances[0].Value, reflect.TypeFor[T]())
	}
	return v, nil
}

// All activates contract and returns every instance as T. Activation
// failures and instances of the wrong type are joined into the error; the
// usable instances are still returned.
func All[T any](ctx context.Context, a *Activator, contract string) ([]T, error) {
	instances, errs := a.Activate(ctx, contract)
	out := make([]T, 0, len(instances))
	for _, inst := range instances {
		v, ok := inst.Value.(T)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s is %T, not %s", ErrCapabilityMismatch, inst.Binding, inst.Value, reflect.TypeFor[T]()))
			continue
		}
		out = append(out, v)
	}
	return out, errors.Join(errs...)
}
