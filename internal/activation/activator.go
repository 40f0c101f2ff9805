// Package activation instantiates resolved bindings. Each binding is
// instantiated at most once per Activator, on first demand (lazy) or when
// the registry is built (eager). A failing binding never blocks its
// siblings: every failure is returned next to the instances that succeeded.
package activation

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/propane/internal/domain/registry"
	"github.com/zjrosen/propane/internal/log"
	"github.com/zjrosen/propane/internal/tracing"
)

var (
	// ErrActivationCycle means a factory required, directly or through other
	// factories, the binding it is instantiating.
	ErrActivationCycle = errors.New("activation cycle")

	// ErrCapabilityMismatch means an instance does not satisfy the Go type
	// declared for its contract's capability.
	ErrCapabilityMismatch = errors.New("instance does not satisfy capability")

	// ErrUnknownContract is returned for contracts the registry does not contain.
	ErrUnknownContract = errors.New("unknown contract")

	// ErrNoInstance means a contract produced no instance.
	ErrNoInstance = errors.New("no instance")
)

// Mode selects when bindings are instantiated.
type Mode string

const (
	ModeLazy  Mode = "lazy"
	ModeEager Mode = "eager"
)

// ParseMode parses a mode name. Empty means lazy.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeLazy:
		return ModeLazy, nil
	case ModeEager:
		return ModeEager, nil
	default:
		return "", fmt.Errorf("unknown activation mode %q (want lazy or eager)", s)
	}
}

// Instance is one activated binding.
type Instance struct {
	Binding registry.BindingID
	Value   any
}

// Observer receives one call per factory invocation.
type Observer interface {
	RecordActivation(contract string, duration time.Duration, err error)
	RecordActivationCycle()
}

type cellState int

const (
	cellIdle cellState = iota
	cellRunning
	cellDone
)

// cell memoizes the single instantiation of one binding. state is guarded
// by Activator.mu; value and err are written before done is closed.
type cell struct {
	state cellState
	done  chan struct{}
	value any
	err   error
}

// Activator instantiates the bindings of one registry. It is safe for
// concurrent use. A factory that blocks on a binding whose instantiation
// is, directly or through other factories, waiting on the factory's own
// binding fails with ErrActivationCycle instead of waiting, whether the
// chain runs on one goroutine or several. Factories must call Require
// through their Request for this to hold.
type Activator struct {
	reg      *registry.Registry
	catalog  *Catalog
	parent   *Activator
	mode     Mode
	tracer   trace.Tracer
	observer Observer

	// Built once in New; the map is never mutated, so lookups need no lock.
	cells map[registry.BindingID]*cell

	mu sync.Mutex
	// waits counts, per binding being instantiated, the bindings its factory
	// is blocked on.
	waits map[registry.BindingID]map[registry.BindingID]int
}

// Option configures an Activator.
type Option func(*Activator)

// WithMode sets lazy or eager activation. The Activator itself only records
// the mode; the engine calls ActivateAll for eager registries.
func WithMode(m Mode) Option {
	return func(a *Activator) { a.mode = m }
}

// WithParent delegates contracts the registry does not own to parent, so
// child registries share the parent's instances.
func WithParent(parent *Activator) Option {
	return func(a *Activator) { a.parent = parent }
}

// WithTracer records a span per factory call.
func WithTracer(t trace.Tracer) Option {
	return func(a *Activator) { a.tracer = t }
}

// WithObserver reports factory calls, typically to metrics.
func WithObserver(o Observer) Option {
	return func(a *Activator) { a.observer = o }
}

// New creates an Activator for reg and seals the catalog. When reg has a
// parent and no parent Activator is given, one is created for it.
func New(reg *registry.Registry, catalog *Catalog, opts ...Option) *Activator {
	a := &Activator{reg: reg, catalog: catalog, mode: ModeLazy}
	for _, opt := range opts {
		opt(a)
	}
	catalog.Seal()

	if a.parent == nil && reg.Parent() != nil {
		a.parent = New(reg.Parent(), catalog, WithMode(a.mode), WithTracer(a.tracer), WithObserver(a.observer))
	}

	a.cells = make(map[registry.BindingID]*cell)
	a.waits = make(map[registry.BindingID]map[registry.BindingID]int)
	for _, entry := range reg.Entries() {
		if !reg.Owns(entry.Contract().ID()) {
			continue
		}
		for _, b := range entry.Bindings() {
			a.cells[b.ID()] = &cell{done: make(chan struct{})}
		}
	}
	return a
}

// Registry returns the registry being activated.
func (a *Activator) Registry() *registry.Registry { return a.reg }

// Mode returns the configured mode.
func (a *Activator) Mode() Mode { return a.mode }

// Activate instantiates the bindings of contract. Single-winner contracts
// return the first binding (in priority order) that activates; the failures
// of bindings tried before it are returned too. Multiple contracts return
// every binding that activates plus one error per binding that failed.
// Config-only contracts return nothing and no error.
func (a *Activator) Activate(ctx context.Context, contract string) ([]Instance, []error) {
	if err := ctx.Err(); err != nil {
		return nil, []error{err}
	}

	if !a.reg.Owns(contract) && a.parent != nil {
		return a.parent.Activate(ctx, contract)
	}

	entry, ok := a.reg.Lookup(contract)
	if !ok {
		return nil, []error{fmt.Errorf("%w: %s", ErrUnknownContract, contract)}
	}

	var (
		instances []Instance
		errs      []error
	)
	bindings := entry.Bindings()
	for i, b := range bindings {
		value, err := a.activateBinding(ctx, entry, b)
		if err != nil {
			errs = append(errs, err)
			if entry.Contract().SingleWinner() && i+1 < len(bindings) {
				log.Warn(log.CatActivate, "falling back to next binding",
					"contract", contract, "failed", b.ID().String(), "next", bindings[i+1].ID().String())
				trace.SpanFromContext(ctx).AddEvent(tracing.EventFallback,
					trace.WithAttributes(attribute.String(tracing.AttrImplementation, b.Implementation())))
			}
			continue
		}
		instances = append(instances, Instance{Binding: b.ID(), Value: value})
		if entry.Contract().SingleWinner() {
			break
		}
	}
	return instances, errs
}

// ActivateAll activates every visible contract in init order, then contract
// identifier order. It is what eager mode runs at build time.
func (a *Activator) ActivateAll(ctx context.Context) ([]Instance, []error) {
	contracts := a.reg.Contracts()
	slices.SortStableFunc(contracts, func(x, y registry.Contract) int {
		if c := cmp.Compare(x.InitOrder(), y.InitOrder()); c != 0 {
			return c
		}
		return cmp.Compare(x.ID(), y.ID())
	})

	var (
		instances []Instance
		errs      []error
	)
	for _, ct := range contracts {
		if err := ctx.Err(); err != nil {
			return instances, append(errs, err)
		}
		got, failed := a.Activate(ctx, ct.ID())
		instances = append(instances, got...)
		errs = append(errs, failed...)
	}
	log.Info(log.CatActivate, "activated all contracts",
		"contracts", len(contracts), "instances", len(instances), "errors", len(errs))
	return instances, errs
}

// activateBinding returns the memoized instance of b, instantiating it on
// first use. A binding already on the calling chain, or one whose running
// instantiation waits on the calling chain, fails as a cycle instead of
// being waited on.
func (a *Activator) activateBinding(ctx context.Context, entry *registry.Entry, b registry.Binding) (any, error) {
	id := b.ID()
	chain := chainFrom(ctx)
	if slices.Contains(chain, id) {
		return nil, a.cycle(id, slices.Concat(chain, []registry.BindingID{id}))
	}

	c, ok := a.cells[id]
	if !ok {
		// Bindings of parent-owned contracts are activated by the parent.
		return nil, &registry.ActivationFailedError{Binding: id, Err: fmt.Errorf("%w: %s", ErrUnknownContract, id.Contract)}
	}

	a.mu.Lock()
	switch c.state {
	case cellDone:
		a.mu.Unlock()
		return c.value, c.err
	case cellIdle:
		c.state = cellRunning
		a.mu.Unlock()
		return a.run(ctx, c, entry, b)
	}

	// Another chain is instantiating b. Only a chain that is itself inside a
	// factory can close a cycle.
	if len(chain) == 0 {
		a.mu.Unlock()
		return a.wait(ctx, c, id)
	}
	waiter := chain[len(chain)-1]
	if loop := a.waitPath(id, waiter); loop != nil {
		a.mu.Unlock()
		return nil, a.cycle(id, slices.Concat(chain, loop))
	}
	if a.waits[waiter] == nil {
		a.waits[waiter] = make(map[registry.BindingID]int)
	}
	a.waits[waiter][id]++
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		if a.waits[waiter][id]--; a.waits[waiter][id] == 0 {
			delete(a.waits[waiter], id)
			if len(a.waits[waiter]) == 0 {
				delete(a.waits, waiter)
			}
		}
		a.mu.Unlock()
	}()
	return a.wait(ctx, c, id)
}

func (a *Activator) run(ctx context.Context, c *cell, entry *registry.Entry, b registry.Binding) (value any, err error) {
	defer func() {
		a.mu.Lock()
		c.value, c.err = value, err
		c.state = cellDone
		close(c.done)
		a.mu.Unlock()
	}()
	return a.instantiate(withChain(ctx, b.ID()), entry, b)
}

// wait blocks until another chain finishes c. The outcome is not memoized
// for the caller when ctx ends first.
func (a *Activator) wait(ctx context.Context, c *cell, id registry.BindingID) (any, error) {
	select {
	case <-c.done:
		return c.value, c.err
	case <-ctx.Done():
		return nil, &registry.ActivationFailedError{Binding: id, Err: ctx.Err()}
	}
}

// waitPath returns the bindings from target to waiter along the wait edges
// of running instantiations, or nil when waiter is not reachable. Callers
// hold a.mu.
func (a *Activator) waitPath(target, waiter registry.BindingID) []registry.BindingID {
	seen := make(map[registry.BindingID]bool)
	var walk func(id registry.BindingID) []registry.BindingID
	walk = func(id registry.BindingID) []registry.BindingID {
		if id == waiter {
			return []registry.BindingID{id}
		}
		if seen[id] {
			return nil
		}
		seen[id] = true
		for next := range a.waits[id] {
			if rest := walk(next); rest != nil {
				return append([]registry.BindingID{id}, rest...)
			}
		}
		return nil
	}
	return walk(target)
}

func (a *Activator) cycle(id registry.BindingID, chain []registry.BindingID) error {
	if a.observer != nil {
		a.observer.RecordActivationCycle()
	}
	err := fmt.Errorf("%w: %s", ErrActivationCycle, formatChain(chain))
	log.Warn(log.CatActivate, "activation cycle", "binding", id.String(), "error", err)
	return &registry.ActivationFailedError{Binding: id, Err: err}
}

func (a *Activator) instantiate(ctx context.Context, entry *registry.Entry, b registry.Binding) (value any, err error) {
	id := b.ID()
	start := time.Now()

	ctx, span := tracing.Start(ctx, a.tracer, tracing.SpanActivate,
		attribute.String(tracing.AttrContract, id.Contract),
		attribute.String(tracing.AttrImplementation, id.Implementation),
		attribute.String(tracing.AttrOrigin, id.Origin),
		attribute.String(tracing.AttrActivationMode, string(a.mode)),
	)
	defer func() {
		if err != nil {
			value = nil
			err = &registry.ActivationFailedError{Binding: id, Err: err}
			log.Warn(log.CatActivate, "activation failed", "binding", id.String(), "error", err)
		} else {
			log.Debug(log.CatActivate, "activated", "binding", id.String(), "took", time.Since(start))
		}
		if a.observer != nil {
			a.observer.RecordActivation(id.Contract, time.Since(start), err)
		}
		tracing.Finish(span, err)
	}()

	factory, ok := a.catalog.Factory(id.Implementation)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoFactory, id.Implementation)
	}

	req := Request{
		Binding:        b,
		ContractConfig: entry.Config(),
		ctx:            ctx,
		activator:      a,
	}
	if f, ok := b.Fragment(); ok {
		req.Config = registry.ConfigFromFragment(f)
	}

	value, err = callFactory(ctx, factory, req)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, fmt.Errorf("factory returned nil instance")
	}
	if err := a.checkCapability(entry.Contract(), value); err != nil {
		return nil, err
	}
	return value, nil
}

// callFactory turns a factory panic into an error.
func callFactory(ctx context.Context, f Factory, req Request) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("factory panicked: %v", r)
		}
	}()
	return f(ctx, req)
}

func (a *Activator) checkCapability(contract registry.Contract, value any) error {
	name := contract.Capability()
	if name == "" {
		return nil
	}
	want, ok := a.catalog.capability(name)
	if !ok {
		return nil
	}
	got := reflect.TypeOf(value)
	if want.Kind() == reflect.Interface {
		if got.Implements(want) {
			return nil
		}
	} else if got.AssignableTo(want) {
		return nil
	}
	return fmt.Errorf("%w: %s is not %s (%s)", ErrCapabilityMismatch, got, want, name)
}

type chainKey struct{}

func chainFrom(ctx context.Context) []registry.BindingID {
	chain, _ := ctx.Value(chainKey{}).([]registry.BindingID)
	return chain
}

func withChain(ctx context.Context, id registry.BindingID) context.Context {
	return context.WithValue(ctx, chainKey{}, slices.Concat(chainFrom(ctx), []registry.BindingID{id}))
}

func formatChain(chain []registry.BindingID) string {
	parts := make([]string, len(chain))
	for i, id := range chain {
		parts[i] = id.String()
	}
	return strings.Join(parts, " -> ")
}
