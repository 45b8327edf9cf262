package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/RamXX/plansync/internal/format"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect or rebuild the vision registry",
}

var registryShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the registry file",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		f, err := a.reg.Load(cmd.Context())
		if err != nil {
			return err
		}
		entries, err := a.reg.List(cmd.Context())
		if err != nil {
			return err
		}
		return emit(f, func(w io.Writer) {
			format.Visions(w, entries)
			fmt.Fprintf(w, "updated %s\n", f.Metadata.Updated.Format("2006-01-02 15:04:05"))
		})
	}),
}

var registryRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the registry from the vision documents on disk",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		f, err := a.reg.Rebuild(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOut {
			return format.JSON(cmd.OutOrStdout(), f)
		}
		infof("Registry rebuilt with %d vision(s)", f.Metadata.Count)
		return nil
	}),
}

func init() {
	registryCmd.AddCommand(registryShowCmd, registryRebuildCmd)
	rootCmd.AddCommand(registryCmd)
}
