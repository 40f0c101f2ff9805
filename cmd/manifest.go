package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/propane/internal/infrastructure/sqlite"
	"github.com/zjrosen/propane/internal/manifest"
	"github.com/zjrosen/propane/internal/presentation"
	"github.com/zjrosen/propane/internal/source"
)

var manifestImportCmd = &cobra.Command{
	Use:   "manifest:import <db> [dir...]",
	Short: "Import manifest files into the SQLite manifest store",
	Long: `Read manifest files from the given directories (default: the configured
manifest_dirs) and import them into the manifest store at <db>. The store is
created if it does not exist. Re-importing an origin replaces everything it
contributed before.

Every record is validated first; nothing is imported when any record is
malformed or any file is unreadable.

Examples:
  # Build tooling writes its metadata once
  propane manifest:import build/manifests.db ./gen/manifests

  # Then the store is one more source
  propane registry:list --store build/manifests.db`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dirs := args[1:]
		if len(dirs) == 0 {
			dirs = cfg.Sources.ManifestDirs
		}

		var manifests []manifest.Manifest
		for _, dir := range dirs {
			got, err := source.NewDir(dir).Read(cmd.Context())
			if err != nil {
				return err
			}
			manifests = append(manifests, got...)
		}

		var invalid []error
		for _, m := range manifests {
			_, errs := manifest.ToContributions(m)
			invalid = append(invalid, errs...)
		}
		if len(invalid) > 0 {
			return fmt.Errorf("nothing imported: %w", errors.Join(invalid...))
		}

		db, err := sqlite.NewDB(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		if err := db.Store().Import(cmd.Context(), manifests...); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d manifests into %s\n", len(manifests), args[0])
		return err
	},
}

// originDTO is one row of manifest:origins.
type originDTO struct {
	Name       string    `json:"name"`
	Location   string    `json:"location"`
	ImportedAt time.Time `json:"imported_at"`
}

func (o originDTO) String() string {
	return fmt.Sprintf("%-24s %-40s %s", o.Name, o.Location, o.ImportedAt.Format(time.RFC3339))
}

var manifestOriginsCmd = &cobra.Command{
	Use:   "manifest:origins <db>",
	Short: "List the origins imported into a manifest store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := sqlite.NewDB(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		origins, err := db.Store().Origins(cmd.Context())
		if err != nil {
			return err
		}

		formatter, err := newFormatter(cmd)
		if err != nil {
			return err
		}
		dtos := make([]originDTO, len(origins))
		for i, o := range origins {
			dtos[i] = originDTO(o)
		}
		if format, _ := presentation.ParseFormat(formatFlag); format == presentation.FormatJSON {
			return formatter.Format(dtos)
		}
		for _, o := range dtos {
			if err := formatter.Format(o); err != nil {
				return err
			}
		}
		return nil
	},
}

var manifestRemoveCmd = &cobra.Command{
	Use:   "manifest:remove <db> <origin>",
	Short: "Remove an origin and everything it contributed from a manifest store",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := sqlite.NewDB(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		if err := db.Store().Delete(cmd.Context(), args[1]); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[1])
		return err
	},
}

func init() {
	rootCmd.AddCommand(manifestImportCmd, manifestOriginsCmd, manifestRemoveCmd)
}
