// Package config provides configuration types and defaults for propane.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/propane/internal/log"
	"github.com/zjrosen/propane/internal/source"
	"github.com/zjrosen/propane/internal/tracing"
)

// Config holds all configuration options for propane.
type Config struct {
	Sources    SourcesConfig    `mapstructure:"sources"`
	Scan       ScanConfig       `mapstructure:"scan"`
	Resolution ResolutionConfig `mapstructure:"resolution"`
	Activation ActivationConfig `mapstructure:"activation"`
	Watch      WatchConfig      `mapstructure:"watch"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Flags      map[string]bool  `mapstructure:"flags"`
}

// SourcesConfig lists where manifests come from. Sources are scanned in
// this order: manifest directories, the store, then the user directory.
type SourcesConfig struct {
	// ManifestDirs are directories scanned for *.yaml, *.yml and *.hcl.
	ManifestDirs []string `mapstructure:"manifest_dirs"`

	// Store is the path of the SQLite manifest store. Empty disables it.
	Store string `mapstructure:"store"`

	// UserDir is scanned last when the user-manifests flag is on.
	// Default: ~/.config/propane/manifests
	UserDir string `mapstructure:"user_dir"`
}

// ScanConfig controls source scanning.
type ScanConfig struct {
	// Parallelism bounds concurrent source reads. 0 uses GOMAXPROCS.
	Parallelism int `mapstructure:"parallelism"`

	// AllowUnreadable turns unreadable sources into warnings instead of
	// failing the build. Malformed descriptors always fail.
	AllowUnreadable bool `mapstructure:"allow_unreadable"`
}

// ResolutionConfig controls conflict resolution.
type ResolutionConfig struct {
	// ImplicitContracts creates undeclared contracts on first reference with
	// multiple cardinality instead of rejecting the reference.
	ImplicitContracts bool `mapstructure:"implicit_contracts"`
}

// ActivationConfig controls instantiation.
type ActivationConfig struct {
	// Mode is "lazy" (default) or "eager".
	Mode string `mapstructure:"mode"`
}

// WatchConfig controls manifest directory watching.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// CacheConfig controls the parsed manifest cache.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// TracingConfig holds tracing configuration.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Exporter     string  `mapstructure:"exporter"`
	FilePath     string  `mapstructure:"file_path"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

// Tracing converts to the tracing package's config.
func (t TracingConfig) Tracing() tracing.Config {
	return tracing.Config{
		Enabled:      t.Enabled,
		Exporter:     t.Exporter,
		FilePath:     t.FilePath,
		OTLPEndpoint: t.OTLPEndpoint,
		SampleRate:   t.SampleRate,
		ServiceName:  tracing.DefaultServiceName,
	}
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// DefaultTracesFilePath returns ~/.config/propane/traces/traces.jsonl or ""
// when the home directory is unavailable.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "propane", "traces", "traces.jsonl")
}

// DefaultUserDir returns ~/.config/propane/manifests or "" when the home
// directory is unavailable.
func DefaultUserDir() string {
	return source.UserManifestDir()
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Sources: SourcesConfig{
			ManifestDirs: []string{".propane/manifests"},
			UserDir:      DefaultUserDir(),
		},
		Scan: ScanConfig{
			Parallelism: 0,
		},
		Activation: ActivationConfig{
			Mode: "lazy",
		},
		Watch: WatchConfig{
			Debounce: 200 * time.Millisecond,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     10 * time.Minute,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     DefaultTracesFilePath(),
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "propane",
		},
	}
}

// Validate runs every section validator and returns the first error.
func Validate(cfg Config) error {
	validators := []func() error{
		func() error { return ValidateSources(cfg.Sources) },
		func() error { return ValidateScan(cfg.Scan) },
		func() error { return ValidateActivation(cfg.Activation) },
		func() error { return ValidateWatch(cfg.Watch) },
		func() error { return ValidateCache(cfg.Cache) },
		func() error { return ValidateTracing(cfg.Tracing) },
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateSources checks source configuration for errors.
func ValidateSources(src SourcesConfig) error {
	for i, dir := range src.ManifestDirs {
		if dir == "" {
			return fmt.Errorf("sources.manifest_dirs[%d] cannot be empty", i)
		}
	}
	return nil
}

// ValidateScan checks scan configuration for errors.
func ValidateScan(scan ScanConfig) error {
	if scan.Parallelism < 0 {
		return fmt.Errorf("scan.parallelism must be >= 0, got %d", scan.Parallelism)
	}
	return nil
}

// ValidateActivation checks activation configuration for errors.
// Empty mode means lazy.
func ValidateActivation(act ActivationConfig) error {
	switch act.Mode {
	case "", "lazy", "eager":
		return nil
	default:
		return fmt.Errorf("activation.mode must be \"lazy\" or \"eager\", got %q", act.Mode)
	}
}

// ValidateWatch checks watch configuration for errors.
func ValidateWatch(w WatchConfig) error {
	if w.Debounce < 0 {
		return fmt.Errorf("watch.debounce must be >= 0, got %s", w.Debounce)
	}
	return nil
}

// ValidateCache checks cache configuration for errors.
func ValidateCache(c CacheConfig) error {
	if c.Enabled && c.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive when the cache is enabled, got %s", c.TTL)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(t TracingConfig) error {
	if t.SampleRate < 0.0 || t.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", t.SampleRate)
	}

	if t.Exporter != "" {
		switch t.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", t.Exporter)
		}
	}

	// Path requirements only matter when tracing is on.
	if t.Enabled {
		if t.Exporter == "file" && t.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if t.Exporter == "otlp" && t.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}
	return nil
}

// DefaultConfigTemplate returns the default config as YAML with comments.
func DefaultConfigTemplate() string {
	return `# propane configuration
# Lookup order: --config, .propane/config.yaml, ~/.config/propane/config.yaml
# Every key can be overridden with PROPANE_<SECTION>_<KEY>, e.g. PROPANE_SCAN_PARALLELISM=4

sources:
  # Directories scanned for *.yaml, *.yml and *.hcl manifests, in order
  manifest_dirs:
    - .propane/manifests
  # SQLite manifest store written by 'propane manifest:import' (empty disables)
  # store: .propane/manifests.db
  # user_dir: ~/.config/propane/manifests   # scanned when flags.user-manifests is on

scan:
  parallelism: 0           # concurrent source reads, 0 = GOMAXPROCS
  allow_unreadable: false  # true: unreadable sources become warnings

resolution:
  implicit_contracts: false  # true: undeclared contracts are created on first use

activation:
  mode: lazy  # lazy (default) or eager

watch:
  debounce: 200ms

cache:
  enabled: true
  ttl: 10m

# tracing:
#   enabled: false
#   exporter: file                 # none, file, stdout, otlp
#   file_path: ~/.config/propane/traces/traces.jsonl
#   otlp_endpoint: localhost:4317
#   sample_rate: 1.0

# metrics:
#   enabled: false
#   namespace: propane

# flags:
#   user-manifests: true
#   watch-store: true
`
}

// WriteDefaultConfig creates a config file at the given path with default
// settings and comments. Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "created default config", "path", configPath)
	return nil
}
