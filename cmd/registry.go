package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/propane/internal/engine"
	"github.com/zjrosen/propane/internal/presentation"
	"github.com/zjrosen/propane/internal/source"
)

// errCheckFailed makes the process exit non-zero after the report is printed.
var errCheckFailed = errors.New("registry check failed")

var registryListCmd = &cobra.Command{
	Use:   "registry:list",
	Short: "List every contract with its bindings in resolution order",
	Long: `Build the registry from the configured sources and list every contract,
sorted by identifier, with its bindings in priority order and the keys of
its merged configuration. The winning binding of single-winner contracts is
highlighted.

Examples:
  # List using the configured sources
  propane registry:list

  # Scan specific directories instead of sources.manifest_dirs
  propane registry:list -m ./manifests -m ./plugins/manifests

  # Include the manifest store
  propane registry:list --store .propane/manifests.db

  # Parse specific fields with jq
  propane registry:list --format json | jq '.contracts[].id'
  propane registry:list -f json | jq '.contracts[] | select(.cardinality == "single")'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, asm, err := newEngine()
		if err != nil {
			return err
		}
		defer func() { _ = asm.Close() }()

		snap, err := e.Reload(cmd.Context())
		if err != nil {
			return err
		}

		formatter, err := newFormatter(cmd)
		if err != nil {
			return err
		}
		dto := presentation.FromRegistry(snap.Registry)
		dto.Warnings = presentation.FromErrors(snap.Warnings...)
		return formatter.FormatRegistry(dto)
	},
}

var registryLookupCmd = &cobra.Command{
	Use:   "registry:lookup <contract>",
	Short: "Show one contract, its bindings and merged configuration",
	Long: `Look up one contract in the resolved registry. Prints the contract
declaration, its bindings in priority order (the winner marked with *) and
every merged configuration key with the origins that supplied it.

A contract that is not in the registry is an error.

Examples:
  propane registry:lookup logging.Sink
  propane registry:lookup http.Server --format json | jq '.config'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, asm, err := newEngine()
		if err != nil {
			return err
		}
		defer func() { _ = asm.Close() }()

		snap, err := e.Reload(cmd.Context())
		if err != nil {
			return err
		}

		entry, ok := snap.Registry.Lookup(args[0])
		if !ok {
			return fmt.Errorf("contract %q not found in registry %s", args[0], snap.ID)
		}

		formatter, err := newFormatter(cmd)
		if err != nil {
			return err
		}
		return formatter.FormatContract(presentation.FromEntry(entry, !snap.Registry.Owns(args[0])))
	},
}

var registryCheckCmd = &cobra.Command{
	Use:   "registry:check",
	Short: "Validate manifests and report every scan error and conflict",
	Long: `Build the registry and report every problem at once: unreadable sources,
malformed descriptors, single-winner priority ties, ambiguous bindings and
error-on-conflict configuration keys. Exits non-zero when the build fails.

Intended for CI:
  propane registry:check
  propane registry:check -f json | jq '.problems[] | select(.kind | startswith("conflict"))'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, asm, err := newEngine()
		if err != nil {
			return err
		}
		defer func() { _ = asm.Close() }()

		formatter, err := newFormatter(cmd)
		if err != nil {
			return err
		}

		snap, buildErr := e.Reload(cmd.Context())
		var report presentation.CheckReport
		if buildErr != nil {
			var be *engine.BuildError
			if !errors.As(buildErr, &be) {
				return buildErr
			}
			report.Problems = presentation.FromErrors(be)
		} else {
			report = presentation.CheckReport{
				OK:        true,
				Registry:  snap.ID,
				Contracts: snap.Registry.Len(),
				Bindings:  snap.Registry.BindingCount(),
				Warnings:  presentation.FromErrors(snap.Warnings...),
			}
		}

		if err := formatter.FormatCheck(report); err != nil {
			return err
		}
		if !report.OK {
			return errCheckFailed
		}
		return nil
	},
}

var diffAgainst []string

var registryDiffCmd = &cobra.Command{
	Use:   "registry:diff --against <dir>",
	Short: "Compare the resolved registry with one built from other manifests",
	Long: `Build the registry from the configured sources and another one from the
--against directories, then print what differs: added or removed bindings,
changed winners and changed configuration values.

Examples:
  # What would the manifests on another branch change?
  git worktree add /tmp/main main
  propane registry:diff --against /tmp/main/.propane/manifests

  propane registry:diff --against ./old -f json | jq '.lines[] | select(.op != " ")'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if len(diffAgainst) == 0 {
			return errors.New("--against is required")
		}

		e, asm, err := newEngine()
		if err != nil {
			return err
		}
		defer func() { _ = asm.Close() }()

		current, err := e.Reload(cmd.Context())
		if err != nil {
			return err
		}

		var other []source.Source
		for _, dir := range diffAgainst {
			other = append(other, source.NewDir(dir))
		}
		res, err := engine.Build(cmd.Context(), other,
			engine.WithParallelism(cfg.Scan.Parallelism),
			engine.WithImplicitContracts(cfg.Resolution.ImplicitContracts),
			engine.WithAllowUnreadable(cfg.Scan.AllowUnreadable),
			engine.WithTracer(tracer()),
		)
		if err != nil {
			return fmt.Errorf("building --against registry: %w", err)
		}

		formatter, err := newFormatter(cmd)
		if err != nil {
			return err
		}
		d := presentation.DiffRegistries(
			presentation.FromRegistry(res.Registry),
			presentation.FromRegistry(current.Registry),
			"against", "current")
		return formatter.FormatDiff(d)
	},
}

func init() {
	registryDiffCmd.Flags().StringArrayVar(&diffAgainst, "against", nil, "manifest directory to compare with (repeatable)")

	rootCmd.AddCommand(registryListCmd, registryLookupCmd, registryCheckCmd, registryDiffCmd)
}
