package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/propane/internal/domain/registry"
	"github.com/zjrosen/propane/internal/manifest"
)

const acmeYAML = `
origin: acme-logging
contracts:
  - id: logging.Sink
    capability: io.Writer
    cardinality: multiple
    init_order: 1
bindings:
  - contract: logging.Sink
    implementation: acme.Stdout
    priority: 10
    config:
      level: info
config:
  - contract: logging.Sink
    strategy: append
    values:
      tags: [stdout, acme]
`

const extraHCL = `
origin = "extra"

contract "metrics.Exporter" {
  cardinality = "single"
  capability  = "Exporter"
}

binding "metrics.Exporter" "extra.Prom" {
  priority = 5
  config   = { port = 9090, ratio = 0.25, enabled = true }
}

config "logging.Sink" {
  strategy = "append"
  values   = { tags = ["extra"] }
}
`

func TestFS_ReadsYAMLAndHCL(t *testing.T) {
	fsys := fstest.MapFS{
		"manifests/acme.yaml":  {Data: []byte(acmeYAML)},
		"manifests/extra.hcl":  {Data: []byte(extraHCL)},
		"manifests/README.md":  {Data: []byte("not a manifest")},
		"manifests/.git/x.yml": {Data: []byte("origin: hidden")},
	}

	src := NewFS("embedded", fsys, WithRoot("manifests"))
	manifests, err := src.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, manifests, 2)

	acme := manifests[0]
	require.Equal(t, "acme-logging", acme.Origin)
	require.Equal(t, "embedded:manifests/acme.yaml", acme.Location)
	require.Equal(t, "io.Writer", acme.Contracts[0].Capability)
	require.Equal(t, 10, acme.Bindings[0].Priority)
	require.Equal(t, "info", acme.Bindings[0].Config["level"])
	require.Equal(t, []any{"stdout", "acme"}, acme.Config[0].Values["tags"])

	extra := manifests[1]
	require.Equal(t, "extra", extra.Origin)
	require.Equal(t, "single", extra.Contracts[0].Cardinality)
	require.Equal(t, "extra.Prom", extra.Bindings[0].Implementation)
	require.Equal(t, int64(9090), extra.Bindings[0].Config["port"])
	require.Equal(t, 0.25, extra.Bindings[0].Config["ratio"])
	require.Equal(t, true, extra.Bindings[0].Config["enabled"])
	require.Equal(t, []any{"extra"}, extra.Config[0].Values["tags"])
}

func TestFS_DefaultOriginFromFileName(t *testing.T) {
	fsys := fstest.MapFS{
		"billing.yml": {Data: []byte("contracts:\n  - id: billing.Gateway\n")},
	}

	manifests, err := NewFS("fs", fsys).Read(context.Background())
	require.NoError(t, err)
	require.Len(t, manifests, 1)
	require.Equal(t, "billing", manifests[0].Origin)
}

func TestFS_MultiDocumentYAML(t *testing.T) {
	fsys := fstest.MapFS{
		"bundle.yaml": {Data: []byte("origin: one\n---\norigin: two\n")},
	}

	manifests, err := NewFS("fs", fsys).Read(context.Background())
	require.NoError(t, err)
	require.Len(t, manifests, 2)
	require.Equal(t, "one", manifests[0].Origin)
	require.Equal(t, "two", manifests[1].Origin)
}

func TestFS_PartialFailure(t *testing.T) {
	fsys := fstest.MapFS{
		"a-good.yaml": {Data: []byte("origin: good\n")},
		"b-bad.yaml":  {Data: []byte("origin: [unterminated\n")},
		"c-typo.yaml": {Data: []byte("origin: typo\nbindngs: []\n")},
		"d-bad.hcl":   {Data: []byte("binding {")},
		"e-good.hcl":  {Data: []byte(`origin = "good-hcl"`)},
	}

	manifests, err := NewFS("fs", fsys).Read(context.Background())
	require.Error(t, err)
	require.Len(t, manifests, 2, "readable files are still returned")

	var joined interface{ Unwrap() []error }
	require.True(t, errors.As(err, &joined))
	errs := joined.Unwrap()
	require.Len(t, errs, 3)
	for _, e := range errs {
		require.ErrorIs(t, e, registry.ErrSourceUnreadable)
	}

	var unreadable *registry.SourceUnreadableError
	require.ErrorAs(t, errs[0], &unreadable)
	require.Equal(t, "fs:b-bad.yaml", unreadable.Origin)
}

func TestFS_EmptyIsNotAnError(t *testing.T) {
	manifests, err := NewFS("fs", fstest.MapFS{}).Read(context.Background())
	require.NoError(t, err)
	require.Empty(t, manifests)
}

func TestFS_MissingRootIsUnreadable(t *testing.T) {
	_, err := NewDir(filepath.Join(t.TempDir(), "nope")).Read(context.Background())
	require.ErrorIs(t, err, registry.ErrSourceUnreadable)
}

func TestFS_CancelledRead(t *testing.T) {
	fsys := fstest.MapFS{"a.yaml": {Data: []byte("origin: a\n")}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFS("fs", fsys).Read(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFS_ParseCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte("origin: v1\n"), 0o644))

	cache := NewParseCache(time.Minute)
	src := NewDir(dir, WithCache(cache, time.Minute))

	manifests, err := src.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, "v1", manifests[0].Origin)

	_, err = src.Read(context.Background())
	require.NoError(t, err)
	hits, _ := cache.Stats()
	require.Equal(t, uint64(1), hits)

	// A changed file has a new identity and is parsed again.
	require.NoError(t, os.WriteFile(path, []byte("origin: version-two\n"), 0o644))
	manifests, err = src.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, "version-two", manifests[0].Origin)
}

func TestStatic_DefaultsOrigin(t *testing.T) {
	src := NewStatic("app", manifest.Manifest{}, manifest.Manifest{Origin: "lib"})
	manifests, err := src.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, "app", manifests[0].Origin)
	require.Equal(t, "lib", manifests[1].Origin)
	require.Equal(t, "app", src.Name())
}

func TestUserDir(t *testing.T) {
	missing := UserDir(filepath.Join(t.TempDir(), "missing"))
	manifests, err := missing.Read(context.Background())
	require.NoError(t, err)
	require.Empty(t, manifests)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mine.yaml"), []byte("origin: mine\n"), 0o644))
	manifests, err = UserDir(dir).Read(context.Background())
	require.NoError(t, err)
	require.Len(t, manifests, 1)
	require.Equal(t, "mine", manifests[0].Origin)
}

func TestUserManifestDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.Equal(t, filepath.Join(home, ".config", "propane", "manifests"), UserManifestDir())
}

func TestIsManifest(t *testing.T) {
	require.True(t, IsManifest("a.YAML"))
	require.True(t, IsManifest("b.hcl"))
	require.False(t, IsManifest("c.json"))
	require.Equal(t, []string{".hcl", ".yaml", ".yml"}, Extensions())
}
