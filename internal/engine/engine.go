package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/propane/internal/activation"
	"github.com/zjrosen/propane/internal/domain/registry"
	"github.com/zjrosen/propane/internal/log"
	"github.com/zjrosen/propane/internal/metrics"
	"github.com/zjrosen/propane/internal/pubsub"
	"github.com/zjrosen/propane/internal/source"
	"github.com/zjrosen/propane/internal/tracing"
	"github.com/zjrosen/propane/internal/watcher"
)

// ErrNoSnapshot is returned by reads before the first successful build.
var ErrNoSnapshot = errors.New("no registry built yet")

// Snapshot is one successfully built registry generation together with the
// activator that owns its instances.
type Snapshot struct {
	ID        string
	Registry  *registry.Registry
	Activator *activation.Activator
	// Warnings are tolerated scan errors.
	Warnings []error
	// ActivationErrors are the failures of eager activation.
	ActivationErrors []error
	BuiltAt          time.Time
}

// Event is published after every reload attempt. Exactly one of Snapshot
// and Err is set.
type Event struct {
	Snapshot *Snapshot
	Err      error
}

// Config holds engine dependencies.
type Config struct {
	// Sources are scanned in order on every build.
	Sources []source.Source

	// Catalog maps implementation identifiers to factories. Defaults to an
	// empty catalog, which is enough for diagnostics.
	Catalog *activation.Catalog

	// Mode selects lazy or eager activation.
	Mode activation.Mode

	// Parent makes every snapshot a child of the parent's registry, sharing
	// the parent's instances.
	Parent *activation.Activator

	Parallelism       int
	ImplicitContracts bool
	AllowUnreadable   bool

	// WatchDirs and WatchFiles are what Watch observes.
	WatchDirs  []string
	WatchFiles []string
	Debounce   time.Duration

	Tracer   trace.Tracer
	Recorder metrics.Recorder
}

// Engine owns the current registry snapshot. Reads are lock-free; reloads
// are serialized and swap the snapshot atomically, so readers see either the
// old or the new registry, never a mix.
type Engine struct {
	cfg     Config
	current atomic.Pointer[Snapshot]
	broker  *pubsub.Broker[Event]

	reloadMu sync.Mutex
}

// New creates an engine. It does not build; call Reload.
func New(cfg Config) (*Engine, error) {
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("at least one source is required")
	}
	if cfg.Catalog == nil {
		cfg.Catalog = activation.NewCatalog()
	}
	if cfg.Mode == "" {
		cfg.Mode = activation.ModeLazy
	}
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.NewNoOpCollector()
	}
	return &Engine{
		cfg:    cfg,
		broker: pubsub.NewBroker[Event](),
	}, nil
}

// Current returns the current snapshot, or nil before the first build.
func (e *Engine) Current() *Snapshot {
	return e.current.Load()
}

// Broker returns the reload event broker for subscription.
func (e *Engine) Broker() *pubsub.Broker[Event] {
	return e.broker
}

// Lookup reads from the current snapshot.
func (e *Engine) Lookup(contract string) (*registry.Entry, bool) {
	snap := e.current.Load()
	if snap == nil {
		return nil, false
	}
	return snap.Registry.Lookup(contract)
}

// Activate activates contract in the current snapshot. Instances are
// memoized per snapshot: a reload starts over with fresh cells.
func (e *Engine) Activate(ctx context.Context, contract string) ([]activation.Instance, []error) {
	snap := e.current.Load()
	if snap == nil {
		return nil, []error{ErrNoSnapshot}
	}
	return snap.Activator.Activate(ctx, contract)
}

// Reload rebuilds from the sources. On success the new snapshot replaces the
// current one. On failure the current snapshot is kept and the error is
// returned and published.
func (e *Engine) Reload(ctx context.Context) (snap *Snapshot, err error) {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	ctx, span := tracing.Start(ctx, e.cfg.Tracer, tracing.SpanReload)
	defer func() {
		e.cfg.Recorder.RecordReload(err)
		tracing.Finish(span, err)
		if err != nil {
			e.broker.Publish(pubsub.RebuildFailedEvent, Event{Err: err})
			return
		}
		e.broker.Publish(pubsub.RebuiltEvent, Event{Snapshot: snap})
	}()

	opts := []Option{
		WithParallelism(e.cfg.Parallelism),
		WithImplicitContracts(e.cfg.ImplicitContracts),
		WithAllowUnreadable(e.cfg.AllowUnreadable),
		WithTracer(e.cfg.Tracer),
		WithRecorder(e.cfg.Recorder),
	}
	if e.cfg.Parent != nil {
		opts = append(opts, WithParent(e.cfg.Parent.Registry()))
	}

	res, err := Build(ctx, e.cfg.Sources, opts...)
	if err != nil {
		if prev := e.current.Load(); prev != nil {
			log.Warn(log.CatEngine, "rebuild failed, keeping previous registry", "id", prev.ID, "error", err)
		}
		return nil, err
	}

	actOpts := []activation.Option{
		activation.WithMode(e.cfg.Mode),
		activation.WithTracer(e.cfg.Tracer),
		activation.WithObserver(e.cfg.Recorder),
	}
	if e.cfg.Parent != nil {
		actOpts = append(actOpts, activation.WithParent(e.cfg.Parent))
	}
	act := activation.New(res.Registry, e.cfg.Catalog, actOpts...)

	snap = &Snapshot{
		ID:        res.Registry.ID(),
		Registry:  res.Registry,
		Activator: act,
		Warnings:  res.Warnings,
		BuiltAt:   time.Now(),
	}
	if e.cfg.Mode == activation.ModeEager {
		_, snap.ActivationErrors = act.ActivateAll(ctx)
		for _, actErr := range snap.ActivationErrors {
			log.ErrorErr(log.CatEngine, "eager activation failed", actErr)
		}
	}

	prev := e.current.Swap(snap)
	span.AddEvent(tracing.EventSnapshotSwapped, trace.WithAttributes(
		attribute.String(tracing.AttrSnapshotID, snap.ID)))
	if prev != nil {
		log.Info(log.CatEngine, "registry replaced", "previous", prev.ID, "current", snap.ID)
	}
	return snap, nil
}

// Watch reloads whenever the watched manifests change, until ctx is done.
// Reload failures are published, not returned: the engine keeps serving the
// last good snapshot.
func (e *Engine) Watch(ctx context.Context) error {
	w, err := watcher.New(watcher.Config{
		Dirs:        e.cfg.WatchDirs,
		Files:       e.cfg.WatchFiles,
		DebounceDur: e.cfg.Debounce,
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	onChange, err := w.Start()
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-onChange:
			log.Debug(log.CatEngine, "manifests changed, reloading")
			_, _ = e.Reload(ctx)
		}
	}
}

// Close closes the event broker. Subscriptions end.
func (e *Engine) Close() {
	e.broker.Close()
}
