// Package source implements the contribution sources the scanner reads:
// manifest files on any fs.FS (directories, embed.FS), programmatic lists and
// the user's manifest directory. The SQLite store lives in
// internal/infrastructure/sqlite and implements the same interface.
package source

import (
	"context"

	"github.com/zjrosen/propane/internal/manifest"
)

// Source yields raw manifests. A Source may return manifests together with
// an error when only part of it could be read; returning no manifests and a
// nil error means the source contributes nothing.
type Source interface {
	Name() string
	Read(ctx context.Context) ([]manifest.Manifest, error)
}

// Static is a programmatic source holding manifests built in code.
type Static struct {
	name      string
	manifests []manifest.Manifest
}

var _ Source = (*Static)(nil)

// NewStatic creates a programmatic source.
func NewStatic(name string, manifests ...manifest.Manifest) *Static {
	return &Static{name: name, manifests: manifests}
}

// Name returns the source name.
func (s *Static) Name() string { return s.name }

// Read returns the manifests. Manifests without an origin take the source name.
func (s *Static) Read(ctx context.Context) ([]manifest.Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]manifest.Manifest, len(s.manifests))
	for i, m := range s.manifests {
		if m.Origin == "" {
			m.Origin = s.name
		}
		if m.Location == "" {
			m.Location = s.name
		}
		out[i] = m
	}
	return out, nil
}

// Func adapts a function to a Source.
type Func struct {
	SourceName string
	ReadFunc   func(ctx context.Context) ([]manifest.Manifest, error)
}

var _ Source = Func{}

// Name returns the source name.
func (f Func) Name() string { return f.SourceName }

// Read calls ReadFunc.
func (f Func) Read(ctx context.Context) ([]manifest.Manifest, error) {
	return f.ReadFunc(ctx)
}
