// Package testutil builds manifest fixtures for tests: in memory, as YAML
// files on disk, or imported into a manifest store.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/propane/internal/manifest"
	"github.com/zjrosen/propane/internal/source"
)

// Builder accumulates manifest records per origin, keeping the order in
// which origins and records were added.
type Builder struct {
	t         testing.TB
	manifests []manifest.Manifest
	index     map[string]int
}

// NewBuilder creates an empty builder.
func NewBuilder(t testing.TB) *Builder {
	t.Helper()
	return &Builder{t: t, index: make(map[string]int)}
}

func (b *Builder) origin(name string) *manifest.Manifest {
	i, ok := b.index[name]
	if !ok {
		i = len(b.manifests)
		b.index[name] = i
		b.manifests = append(b.manifests, manifest.Manifest{Origin: name})
	}
	return &b.manifests[i]
}

// WithContract declares a contract from origin.
func (b *Builder) WithContract(origin, id string, opts ...ContractOption) *Builder {
	rec := manifest.ContractRecord{ID: id, Cardinality: "multiple"}
	for _, opt := range opts {
		opt(&rec)
	}
	m := b.origin(origin)
	m.Contracts = append(m.Contracts, rec)
	return b
}

// WithBinding binds impl to contract from origin.
func (b *Builder) WithBinding(origin, contract, impl string, opts ...BindingOption) *Builder {
	rec := manifest.BindingRecord{Contract: contract, Implementation: impl}
	for _, opt := range opts {
		opt(&rec)
	}
	m := b.origin(origin)
	m.Bindings = append(m.Bindings, rec)
	return b
}

// WithConfig adds a standalone config fragment from origin.
func (b *Builder) WithConfig(origin, contract string, values map[string]any, opts ...ConfigOption) *Builder {
	rec := manifest.ConfigRecord{Contract: contract, Values: values}
	for _, opt := range opts {
		opt(&rec)
	}
	m := b.origin(origin)
	m.Config = append(m.Config, rec)
	return b
}

// Manifests returns the accumulated manifests, one per origin.
func (b *Builder) Manifests() []manifest.Manifest {
	out := make([]manifest.Manifest, len(b.manifests))
	copy(out, b.manifests)
	return out
}

// Source returns an in-memory source over the manifests.
func (b *Builder) Source(name string) *source.Static {
	return source.NewStatic(name, b.Manifests()...)
}

// WriteDir writes one YAML file per origin into dir, named with a numeric
// prefix so the directory reads back in the order origins were added.
// Returns dir.
func (b *Builder) WriteDir(dir string) string {
	b.t.Helper()
	require.NoError(b.t, os.MkdirAll(dir, 0o755))
	for i, m := range b.manifests {
		data, err := yaml.Marshal(m)
		require.NoError(b.t, err)
		name := fmt.Sprintf("%02d-%s.yaml", i, m.Origin)
		require.NoError(b.t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}
	return dir
}

// WriteFile writes raw content to dir/name, creating parent directories.
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
