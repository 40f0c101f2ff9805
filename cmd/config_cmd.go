package cmd

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/zjrosen/propane/internal/config"
)

var configAddManifestsCmd = &cobra.Command{
	Use:   "config:add-manifests <dir>...",
	Short: "Add manifest directories to the config file",
	Long: `Append directories to sources.manifest_dirs in the config file in use
(default .propane/config.yaml). Directories already listed are skipped.
Comments in the file are preserved.

Example:
  propane config:add-manifests ./plugins/manifests`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dirs := slices.Clone(cfg.Sources.ManifestDirs)
		added := 0
		for _, arg := range args {
			dir := filepath.Clean(arg)
			if slices.Contains(dirs, dir) {
				continue
			}
			dirs = append(dirs, dir)
			added++
		}

		path := configPath()
		if err := config.SaveManifestDirs(path, dirs); err != nil {
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "added %d manifest dirs to %s\n", added, path)
		return err
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "propane %s\n", version)
		return err
	},
}

func init() {
	rootCmd.AddCommand(configAddManifestsCmd, versionCmd)
}
