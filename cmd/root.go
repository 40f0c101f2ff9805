package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/propane/internal/config"
	"github.com/zjrosen/propane/internal/engine"
	"github.com/zjrosen/propane/internal/flags"
	"github.com/zjrosen/propane/internal/log"
	"github.com/zjrosen/propane/internal/metrics"
	"github.com/zjrosen/propane/internal/presentation"
	"github.com/zjrosen/propane/internal/tracing"
)

const defaultConfigPath = ".propane/config.yaml"

var (
	version      = "dev"
	cfgFile      string
	debugFlag    bool
	manifestDirs []string
	storePath    string
	formatFlag   string
	cfg          config.Config

	// Set up in PersistentPreRunE, released by cobra.OnFinalize.
	tracerProvider *tracing.Provider
	recorder       metrics.Recorder = metrics.NewNoOpCollector()
	cleanups       []func()
)

var rootCmd = &cobra.Command{
	Use:   "propane",
	Short: "Inspect service registrations and resolved configuration",
	Long: `propane scans contribution manifests (YAML, HCL and the SQLite manifest
store), resolves them into a sealed registry of contracts, bindings and
merged configuration, and reports conflicts.

Sources are scanned in order: manifest directories, the store, then the
user directory (~/.config/propane/manifests) when the user-manifests flag is on.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	cobra.OnInitialize(initConfig)
	cobra.OnFinalize(teardown)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .propane/config.yaml or ~/.config/propane/config.yaml)")
	pf.BoolVarP(&debugFlag, "debug", "d", false,
		"write debug logs (path from PROPANE_LOG, default debug.log)")
	pf.StringArrayVarP(&manifestDirs, "manifests", "m", nil,
		"manifest directory to scan (repeatable, replaces sources.manifest_dirs)")
	pf.StringVar(&storePath, "store", "",
		"path of the SQLite manifest store (overrides sources.store)")
	pf.StringVarP(&formatFlag, "format", "f", "text",
		"output format: text or json")
}

// setDefaults registers every config key. AutomaticEnv only consults the
// environment for keys viper already knows, so a key missing here could not
// be set through PROPANE_* when the config file omits it.
func setDefaults() {
	defaults := config.Defaults()
	viper.SetDefault("sources.manifest_dirs", defaults.Sources.ManifestDirs)
	viper.SetDefault("sources.store", defaults.Sources.Store)
	viper.SetDefault("sources.user_dir", defaults.Sources.UserDir)
	viper.SetDefault("scan.parallelism", defaults.Scan.Parallelism)
	viper.SetDefault("scan.allow_unreadable", defaults.Scan.AllowUnreadable)
	viper.SetDefault("resolution.implicit_contracts", defaults.Resolution.ImplicitContracts)
	viper.SetDefault("activation.mode", defaults.Activation.Mode)
	viper.SetDefault("watch.debounce", defaults.Watch.Debounce)
	viper.SetDefault("cache.enabled", defaults.Cache.Enabled)
	viper.SetDefault("cache.ttl", defaults.Cache.TTL)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.file_path", defaults.Tracing.FilePath)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	viper.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	viper.SetDefault("metrics.namespace", defaults.Metrics.Namespace)
}

func initConfig() {
	setDefaults()

	viper.SetEnvPrefix("PROPANE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .propane/config.yaml (current directory)
		// 2. ~/.config/propane/config.yaml (user config)
		if _, err := os.Stat(defaultConfigPath); err == nil {
			viper.SetConfigFile(defaultConfigPath)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "propane"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// No config file anywhere: write a commented default and use it.
			if writeErr := config.WriteDefaultConfig(defaultConfigPath); writeErr == nil {
				viper.SetConfigFile(defaultConfigPath)
				_ = viper.ReadInConfig()
			}
		}
	}

	cfg = config.Config{}
	_ = viper.Unmarshal(&cfg)
}

// setup applies flag overrides, validates the config and starts logging,
// tracing and metrics.
func setup(cmd *cobra.Command, _ []string) error {
	if debugFlag || os.Getenv("PROPANE_DEBUG") != "" {
		logPath := os.Getenv("PROPANE_LOG")
		if logPath == "" {
			logPath = "debug.log"
		}
		cleanup, err := log.Init(logPath)
		if err != nil {
			return fmt.Errorf("initializing logging: %w", err)
		}
		cleanups = append(cleanups, cleanup)
		log.Info(log.CatConfig, "propane starting", "command", cmd.Name(), "config", viper.ConfigFileUsed())
	}

	if cmd.Flags().Changed("manifests") {
		cfg.Sources.ManifestDirs = manifestDirs
	}
	if cmd.Flags().Changed("store") {
		cfg.Sources.Store = storePath
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	provider, err := tracing.NewProvider(cfg.Tracing.Tracing())
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	tracerProvider = provider
	cleanups = append(cleanups, func() { _ = provider.Shutdown(context.Background()) })

	if cfg.Metrics.Enabled {
		recorder = metrics.NewCollector(cfg.Metrics.Namespace)
	}
	return nil
}

func teardown() {
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
	cleanups = nil
}

func tracer() trace.Tracer {
	if tracerProvider == nil || !tracerProvider.Enabled() {
		return nil
	}
	return tracerProvider.Tracer()
}

// newEngine assembles the configured sources into an engine. The caller
// closes the assembly.
func newEngine() (*engine.Engine, *engine.Assembly, error) {
	asm, err := engine.Assemble(cfg, flags.New(cfg.Flags))
	if err != nil {
		return nil, nil, err
	}
	ecfg, err := asm.EngineConfig(cfg)
	if err != nil {
		_ = asm.Close()
		return nil, nil, err
	}
	ecfg.Tracer = tracer()
	ecfg.Recorder = recorder

	e, err := engine.New(ecfg)
	if err != nil {
		_ = asm.Close()
		return nil, nil, err
	}
	return e, asm, nil
}

func newFormatter(cmd *cobra.Command) (*presentation.Formatter, error) {
	format, err := presentation.ParseFormat(formatFlag)
	if err != nil {
		return nil, err
	}
	return presentation.NewFormatter(cmd.OutOrStdout(), format), nil
}

// configPath is where config:* commands write.
func configPath() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return defaultConfigPath
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
