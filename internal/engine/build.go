// Package engine is the entry point of propane: it scans sources, resolves
// them into a sealed registry, and keeps the current snapshot for reloads.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/propane/internal/domain/registry"
	"github.com/zjrosen/propane/internal/log"
	"github.com/zjrosen/propane/internal/metrics"
	"github.com/zjrosen/propane/internal/scanner"
	"github.com/zjrosen/propane/internal/source"
	"github.com/zjrosen/propane/internal/tracing"
)

// BuildError is a rejected build. It carries every scan error that failed
// the build and the resolution conflicts, so one run reports all problems.
type BuildError struct {
	Scan       []error
	Resolution *registry.ResolutionErrors
}

func (e *BuildError) Error() string {
	errs := e.Unwrap()
	if len(errs) == 1 {
		return "build registry: " + errs[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "build registry: %d errors:", len(errs))
	for _, err := range errs {
		b.WriteString("\n  * ")
		b.WriteString(strings.ReplaceAll(err.Error(), "\n", "\n    "))
	}
	return b.String()
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (e *BuildError) Unwrap() []error {
	errs := make([]error, 0, len(e.Scan)+1)
	errs = append(errs, e.Scan...)
	if e.Resolution != nil {
		for _, c := range e.Resolution.Conflicts {
			errs = append(errs, c)
		}
	}
	return errs
}

// Conflicts returns the resolution conflicts, if any.
func (e *BuildError) Conflicts() []*registry.ResolutionConflictError {
	if e.Resolution == nil {
		return nil
	}
	return e.Resolution.Conflicts
}

// Option configures a build.
type Option func(*buildOptions)

type buildOptions struct {
	parallelism     int
	implicit        bool
	allowUnreadable bool
	parent          *registry.Registry
	tracer          trace.Tracer
	recorder        metrics.Recorder
}

// WithParallelism bounds how many sources are read at once.
func WithParallelism(n int) Option {
	return func(o *buildOptions) { o.parallelism = n }
}

// WithImplicitContracts accepts bindings for contracts no source declares.
func WithImplicitContracts(enabled bool) Option {
	return func(o *buildOptions) { o.implicit = enabled }
}

// WithAllowUnreadable turns unreadable sources into warnings. Malformed
// descriptors still fail the build.
func WithAllowUnreadable(enabled bool) Option {
	return func(o *buildOptions) { o.allowUnreadable = enabled }
}

// WithParent builds a child registry of parent.
func WithParent(parent *registry.Registry) Option {
	return func(o *buildOptions) { o.parent = parent }
}

// WithTracer records build, scan and resolve spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *buildOptions) { o.tracer = t }
}

// WithRecorder reports build metrics.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *buildOptions) { o.recorder = r }
}

// BuildResult is a successful build.
type BuildResult struct {
	Registry *registry.Registry
	// Warnings are scan errors tolerated by WithAllowUnreadable.
	Warnings  []error
	Manifests int
	Duration  time.Duration
}

// BuildRegistry scans sources and resolves them into a sealed registry with
// default options. The error is a *BuildError, or the context error when ctx
// is cancelled.
func BuildRegistry(ctx context.Context, sources ...source.Source) (*registry.Registry, error) {
	res, err := Build(ctx, sources)
	if err != nil {
		return nil, err
	}
	return res.Registry, nil
}

// Build is BuildRegistry with options. It never returns a partial registry.
func Build(ctx context.Context, sources []source.Source, opts ...Option) (res *BuildResult, err error) {
	o := buildOptions{recorder: metrics.NewNoOpCollector()}
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.NewString()
	start := time.Now()
	ctx, span := tracing.Start(ctx, o.tracer, tracing.SpanBuild,
		attribute.String(tracing.AttrSnapshotID, id),
		attribute.Int(tracing.AttrSourceCount, len(sources)))
	defer func() {
		o.recorder.RecordBuild(time.Since(start), err)
		tracing.Finish(span, err)
	}()

	scanned := scan(ctx, sources, o)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var fatal, warnings []error
	for _, scanErr := range scanned.Errors {
		switch {
		case errors.Is(scanErr, registry.ErrMalformedDescriptor):
			o.recorder.RecordScanError("malformed")
			fatal = append(fatal, scanErr)
		case errors.Is(scanErr, registry.ErrSourceUnreadable):
			o.recorder.RecordScanError("unreadable")
			if o.allowUnreadable {
				warnings = append(warnings, scanErr)
				continue
			}
			fatal = append(fatal, scanErr)
		default:
			fatal = append(fatal, scanErr)
		}
	}

	reg, resolveErr := resolve(ctx, scanned.Contributions, id, o)
	var conflicts *registry.ResolutionErrors
	switch {
	case resolveErr == nil:
	case errors.As(resolveErr, &conflicts):
		for _, c := range conflicts.Conflicts {
			o.recorder.RecordConflict(string(c.Kind))
		}
	default:
		return nil, resolveErr
	}

	if len(fatal) > 0 || conflicts != nil {
		buildErr := &BuildError{Scan: fatal, Resolution: conflicts}
		log.ErrorErr(log.CatEngine, "registry build rejected", buildErr,
			"scan_errors", len(fatal), "conflicts", len(buildErr.Conflicts()))
		return nil, buildErr
	}

	for _, w := range warnings {
		log.Warn(log.CatEngine, "source skipped", "error", w)
	}
	o.recorder.RecordSnapshot(reg.Len(), reg.BindingCount())
	span.SetAttributes(
		attribute.Int(tracing.AttrContractCount, reg.Len()),
		attribute.Int(tracing.AttrBindingCount, reg.BindingCount()))

	res = &BuildResult{
		Registry:  reg,
		Warnings:  warnings,
		Manifests: scanned.Manifests,
		Duration:  time.Since(start),
	}
	log.Info(log.CatEngine, "registry built",
		"id", id,
		"contracts", reg.Len(),
		"bindings", reg.BindingCount(),
		"warnings", len(warnings),
		"duration", res.Duration)
	return res, nil
}

func scan(ctx context.Context, sources []source.Source, o buildOptions) scanner.Result {
	ctx, span := tracing.Start(ctx, o.tracer, tracing.SpanScan,
		attribute.Int(tracing.AttrSourceCount, len(sources)))

	opts := []scanner.Option{
		scanner.WithParallelism(o.parallelism),
		scanner.WithImplicitContracts(o.implicit),
	}
	if o.parent != nil {
		opts = append(opts, scanner.WithParent(o.parent))
	}
	res := scanner.New(opts...).Scan(ctx, sources...)

	span.SetAttributes(
		attribute.Int(tracing.AttrManifestCount, res.Manifests),
		attribute.Int(tracing.AttrScanErrors, len(res.Errors)))
	tracing.Finish(span, res.Err())
	return res
}

func resolve(ctx context.Context, c registry.Contributions, id string, o buildOptions) (*registry.Registry, error) {
	ctx, span := tracing.Start(ctx, o.tracer, tracing.SpanResolve)

	opts := []registry.Option{registry.WithID(id)}
	if o.parent != nil {
		opts = append(opts, registry.WithParent(o.parent))
	}
	reg, err := registry.Resolve(ctx, c, opts...)

	var conflicts *registry.ResolutionErrors
	if errors.As(err, &conflicts) {
		span.SetAttributes(attribute.Int(tracing.AttrConflictCount, len(conflicts.Conflicts)))
	}
	tracing.Finish(span, err)
	return reg, err
}
