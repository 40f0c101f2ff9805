package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/propane/internal/presentation"
	"github.com/zjrosen/propane/internal/testutil"
)

// execute runs the root command with fresh flag and viper state.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	err := executeContext(t, context.Background(), &buf, args...)
	return buf.String(), err
}

func executeContext(t *testing.T, ctx context.Context, out io.Writer, args ...string) error {
	t.Helper()
	viper.Reset()
	formatFlag = "text"
	storePath = ""
	debugFlag = false
	watchLogs = false
	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) { f.Changed = false })

	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

// syncBuffer is a bytes.Buffer safe to read while a command writes to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// writeConfig writes a config that scans dirs and nothing else.
func writeConfig(t *testing.T, dirs ...string) string {
	t.Helper()
	content := "sources:\n  user_dir: \"\"\n  manifest_dirs:\n"
	for _, d := range dirs {
		content += "    - " + d + "\n"
	}
	content += "cache:\n  enabled: false\n"
	return testutil.WriteFile(t, t.TempDir(), "config.yaml", content)
}

func standardDir(t *testing.T) string {
	t.Helper()
	return testutil.NewBuilder(t).WithStandardTestData().WriteDir(filepath.Join(t.TempDir(), "manifests"))
}

func TestRegistryList_Text(t *testing.T) {
	out, err := execute(t, "registry:list", "--config", writeConfig(t, standardDir(t)))
	require.NoError(t, err)
	require.Contains(t, out, "acme.Prometheus")
	require.Contains(t, out, "logging.Sink")
	require.Contains(t, out, "3 contracts")
}

func TestRegistryList_JSON(t *testing.T) {
	out, err := execute(t, "registry:list", "--config", writeConfig(t, standardDir(t)), "--format", "json")
	require.NoError(t, err)

	var dto presentation.RegistryDTO
	require.NoError(t, json.Unmarshal([]byte(out), &dto))
	require.Len(t, dto.Contracts, 3)
	require.Equal(t, "http.Server", dto.Contracts[0].ID)
}

func TestRegistryList_BadFormat(t *testing.T) {
	_, err := execute(t, "registry:list", "--config", writeConfig(t, standardDir(t)), "--format", "xml")
	require.ErrorContains(t, err, "unknown format")
}

func TestRegistryLookup(t *testing.T) {
	cfgPath := writeConfig(t, standardDir(t))

	out, err := execute(t, "registry:lookup", "metrics.Exporter", "--config", cfgPath)
	require.NoError(t, err)
	require.Contains(t, out, "* acme.Prometheus")
	require.Contains(t, out, "path = \"/metrics\"")

	_, err = execute(t, "registry:lookup", "no.Such", "--config", cfgPath)
	require.ErrorContains(t, err, `contract "no.Such" not found`)
}

func TestRegistryCheck(t *testing.T) {
	dir := standardDir(t)
	out, err := execute(t, "registry:check", "--config", writeConfig(t, dir))
	require.NoError(t, err)
	require.Equal(t, "ok: 3 contracts, 4 bindings\n", out)

	testutil.WriteFile(t, dir, "99-clash.yaml", `
origin: zulu
bindings:
  - contract: metrics.Exporter
    implementation: zulu.Exporter
    priority: 5
  - contract: undeclared.Thing
    implementation: zulu.Thing
`)
	out, err = execute(t, "registry:check", "--config", writeConfig(t, dir))
	require.ErrorIs(t, err, errCheckFailed)
	require.Contains(t, out, "2 problems:")
	require.Contains(t, out, "[malformed]")
	require.Contains(t, out, "[conflict:priority-tie]")
}

func TestRegistryDiff(t *testing.T) {
	current := standardDir(t)
	against := testutil.NewBuilder(t).
		WithContract("acme", "logging.Sink").
		WithBinding("acme", "logging.Sink", "acme.Stdout", testutil.Priority(10)).
		WriteDir(filepath.Join(t.TempDir(), "old"))

	out, err := execute(t, "registry:diff", "--config", writeConfig(t, current), "--against", against)
	require.NoError(t, err)
	require.Contains(t, out, "--- against\n+++ current\n")
	require.Contains(t, out, "+contract metrics.Exporter cardinality=single")
	require.Contains(t, out, "+  binding beta.File origin=beta priority=20")
}

func TestManifestImportAndStoreSource(t *testing.T) {
	dir := standardDir(t)
	dbPath := filepath.Join(t.TempDir(), "store", "manifests.db")

	out, err := execute(t, "manifest:import", dbPath, dir, "--config", writeConfig(t, dir))
	require.NoError(t, err)
	require.Contains(t, out, "imported 2 manifests")

	out, err = execute(t, "manifest:origins", dbPath, "--config", writeConfig(t, dir))
	require.NoError(t, err)
	require.Contains(t, out, "acme")
	require.Contains(t, out, "beta")

	// The store alone resolves the same registry.
	empty := t.TempDir()
	out, err = execute(t, "registry:check", "--config", writeConfig(t, empty), "--store", dbPath)
	require.NoError(t, err)
	require.Equal(t, "ok: 3 contracts, 4 bindings\n", out)

	out, err = execute(t, "manifest:remove", dbPath, "beta", "--config", writeConfig(t, dir))
	require.NoError(t, err)
	require.Contains(t, out, "removed beta")

	_, err = execute(t, "manifest:remove", dbPath, "beta", "--config", writeConfig(t, dir))
	require.ErrorContains(t, err, "origin not found")
}

func TestManifestImport_RejectsMalformed(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "bad.yaml", "origin: bad\nbindings:\n  - contract: Foo\n    implementation: Impl\n    priority: -3\n")
	dbPath := filepath.Join(t.TempDir(), "manifests.db")

	_, err := execute(t, "manifest:import", dbPath, dir, "--config", writeConfig(t, dir))
	require.ErrorContains(t, err, "nothing imported")
}

func TestConfigAddManifests(t *testing.T) {
	cfgPath := writeConfig(t, "existing")

	out, err := execute(t, "config:add-manifests", "existing", "./plugins/manifests", "--config", cfgPath)
	require.NoError(t, err)
	require.Contains(t, out, "added 1 manifest dirs")

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "- existing")
	require.Contains(t, string(data), "- plugins/manifests")
	require.Contains(t, string(data), "enabled: false", "other sections are kept")
}

func TestVersion(t *testing.T) {
	SetVersion("1.2.3")
	out, err := execute(t, "version", "--config", writeConfig(t, t.TempDir()))
	require.NoError(t, err)
	require.Equal(t, "propane 1.2.3\n", out)
}

func TestEnvOverridesKeysMissingFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "ghost.yaml", "origin: ghost\nbindings:\n  - contract: Ghost\n    implementation: ghost.Impl\n")
	cfgPath := testutil.WriteFile(t, t.TempDir(), "config.yaml", "sources:\n  manifest_dirs:\n    - "+dir+"\n")

	t.Setenv("PROPANE_SCAN_PARALLELISM", "7")
	t.Setenv("PROPANE_SCAN_ALLOW_UNREADABLE", "true")
	t.Setenv("PROPANE_RESOLUTION_IMPLICIT_CONTRACTS", "true")

	out, err := execute(t, "registry:list", "--config", cfgPath)
	require.NoError(t, err, "undeclared contract is accepted with implicit contracts from the environment")
	require.Contains(t, out, "ghost.Impl")

	require.Equal(t, 7, cfg.Scan.Parallelism)
	require.True(t, cfg.Scan.AllowUnreadable)
	require.True(t, cfg.Resolution.ImplicitContracts)
	require.False(t, cfg.Metrics.Enabled)
}

func TestRegistryWatch_StreamsLogs(t *testing.T) {
	cfgPath := writeConfig(t, standardDir(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out syncBuffer
	errc := make(chan error, 1)
	go func() { errc <- executeContext(t, ctx, &out, "registry:watch", "--logs", "--config", cfgPath) }()

	require.Eventually(t, func() bool {
		s := out.String()
		return strings.Contains(s, "log: ") && strings.Contains(s, "[engine] registry built") &&
			strings.Contains(s, "rebuilt ")
	}, 5*time.Second, 10*time.Millisecond, "output: %s", out.String())

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("registry:watch did not stop")
	}
}
