// Package scanner reads contribution sources in parallel and turns their
// manifests into domain descriptors. Scanning is tolerant of partial
// failure: every unreadable source and malformed record is reported, and
// everything else is still collected.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/zjrosen/propane/internal/domain/registry"
	"github.com/zjrosen/propane/internal/log"
	"github.com/zjrosen/propane/internal/manifest"
	"github.com/zjrosen/propane/internal/source"
)

// Result is the outcome of a scan. Contributions are in scan order: sources
// in the order given, manifests in the order each source returned them.
type Result struct {
	Contributions registry.Contributions
	Errors        []error
	// Manifests counts manifests read across all sources.
	Manifests int
}

// Err folds Errors into one error, or nil when the scan was clean.
func (r Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	merr := &multierror.Error{Errors: r.Errors, ErrorFormat: formatErrors}
	return merr.ErrorOrNil()
}

// Unreadable returns the SourceUnreadable errors.
func (r Result) Unreadable() []error {
	return r.filter(registry.ErrSourceUnreadable)
}

// Malformed returns the MalformedDescriptor errors.
func (r Result) Malformed() []error {
	return r.filter(registry.ErrMalformedDescriptor)
}

func (r Result) filter(target error) []error {
	var out []error
	for _, err := range r.Errors {
		if errors.Is(err, target) {
			out = append(out, err)
		}
	}
	return out
}

func formatErrors(errs []error) string {
	if len(errs) == 1 {
		return "1 scan error: " + errs[0].Error()
	}
	lines := make([]string, len(errs))
	for i, err := range errs {
		lines[i] = "  * " + err.Error()
	}
	return fmt.Sprintf("%d scan errors:\n%s", len(errs), strings.Join(lines, "\n"))
}

// Scanner reads sources.
type Scanner struct {
	parallelism int
	implicit    bool
	parent      registry.Lookuper
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithParallelism bounds the number of sources read at once. Values below 1
// use GOMAXPROCS.
func WithParallelism(n int) Option {
	return func(s *Scanner) { s.parallelism = n }
}

// WithImplicitContracts accepts bindings and fragments for contracts no
// source declares.
func WithImplicitContracts(enabled bool) Option {
	return func(s *Scanner) { s.implicit = enabled }
}

// WithParent treats contracts known to the parent registry as declared.
func WithParent(parent registry.Lookuper) Option {
	return func(s *Scanner) { s.parent = parent }
}

// New creates a Scanner.
func New(opts ...Option) *Scanner {
	s := &Scanner{}
	for _, opt := range opts {
		opt(s)
	}
	if s.parallelism < 1 {
		s.parallelism = runtime.GOMAXPROCS(0)
	}
	return s
}

// Scan reads sources with default options.
func Scan(ctx context.Context, sources ...source.Source) Result {
	return New().Scan(ctx, sources...)
}

type sourceResult struct {
	manifests []manifest.Manifest
	errs      []error
}

// Scan reads every source and converts the manifests. A cancelled context
// stops sources that have not started; the context error is the last entry
// of Result.Errors.
func (s *Scanner) Scan(ctx context.Context, sources ...source.Source) Result {
	results := make([]sourceResult, len(sources))

	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for i, src := range sources {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[i] = readSource(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	var out Result
	for _, res := range results {
		out.Errors = append(out.Errors, res.errs...)
		for _, m := range res.manifests {
			out.Manifests++
			contrib, errs := manifest.ToContributions(m)
			out.Contributions.Append(contrib)
			out.Errors = append(out.Errors, errs...)
		}
	}

	if !s.implicit {
		var undeclared []error
		out.Contributions, undeclared = s.dropUndeclared(out.Contributions)
		out.Errors = append(out.Errors, undeclared...)
	}

	if err := ctx.Err(); err != nil {
		out.Errors = append(out.Errors, err)
	}

	log.Debug(log.CatScan, "scan finished",
		"sources", len(sources),
		"manifests", out.Manifests,
		"contracts", len(out.Contributions.Contracts),
		"bindings", len(out.Contributions.Bindings),
		"fragments", len(out.Contributions.Fragments),
		"errors", len(out.Errors))
	return out
}

// safeRead turns a panicking source into an unreadable one.
func safeRead(ctx context.Context, src source.Source) (manifests []manifest.Manifest, err error) {
	defer func() {
		if r := recover(); r != nil {
			manifests = nil
			err = &registry.SourceUnreadableError{Origin: src.Name(), Err: fmt.Errorf("source panicked: %v", r)}
		}
	}()
	return src.Read(ctx)
}

func readSource(ctx context.Context, src source.Source) sourceResult {
	manifests, err := safeRead(ctx, src)
	if err == nil {
		return sourceResult{manifests: manifests}
	}

	var errs []error
	for _, e := range flatten(err) {
		switch {
		case errors.Is(e, registry.ErrSourceUnreadable), errors.Is(e, registry.ErrMalformedDescriptor):
			errs = append(errs, e)
		case errors.Is(e, context.Canceled), errors.Is(e, context.DeadlineExceeded):
			// Reported once by Scan.
		default:
			errs = append(errs, &registry.SourceUnreadableError{Origin: src.Name(), Err: e})
		}
	}
	for _, e := range errs {
		log.Warn(log.CatScan, "source error", "source", src.Name(), "error", e)
	}
	return sourceResult{manifests: manifests, errs: errs}
}

// flatten expands errors.Join and multierror aggregates.
func flatten(err error) []error {
	var merr *multierror.Error
	if errors.As(err, &merr) {
		return merr.WrappedErrors()
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}

// dropUndeclared removes bindings and fragments whose contract no source
// declares, reporting each once as malformed.
func (s *Scanner) dropUndeclared(c registry.Contributions) (registry.Contributions, []error) {
	declared := make(map[string]bool, len(c.Contracts))
	for _, ct := range c.Contracts {
		declared[ct.ID()] = true
	}
	known := func(id string) bool {
		if declared[id] {
			return true
		}
		if s.parent != nil {
			_, ok := s.parent.Lookup(id)
			return ok
		}
		return false
	}

	var (
		out      = registry.Contributions{Contracts: c.Contracts}
		reported = make(map[string]bool)
		errs     []error
	)
	report := func(contract, origin, descriptor string) {
		key := contract + "|" + origin
		if reported[key] {
			return
		}
		reported[key] = true
		errs = append(errs, &registry.MalformedDescriptorError{
			Origin:     origin,
			Descriptor: descriptor,
			Reason:     fmt.Sprintf("contract %q is not declared by any source", contract),
		})
	}

	for _, b := range c.Bindings {
		if known(b.Contract()) {
			out.Bindings = append(out.Bindings, b)
			continue
		}
		report(b.Contract(), b.Origin(), "binding "+b.ID().String())
	}
	for _, f := range c.Fragments {
		if known(f.Contract()) {
			out.Fragments = append(out.Fragments, f)
			continue
		}
		report(f.Contract(), f.Origin(), "config "+f.Contract())
	}

	return out, errs
}
