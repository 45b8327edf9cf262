package cmd

import (
	"github.com/spf13/cobra"

	"github.com/RamXX/plansync/internal/format"
	"github.com/RamXX/plansync/internal/registry"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the registry in step with vision edits until interrupted",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		infof("Watching %s (Ctrl-C to stop)", a.store.Dir())
		return a.reg.Watch(cmd.Context(), func(ev registry.Event) {
			switch {
			case jsonOut:
				_ = format.JSON(cmd.OutOrStdout(), ev)
			case ev.Err != nil:
				errorf("%s: %v", ev.Slug, ev.Err)
			case ev.Removed:
				infof("- %s deregistered", ev.Slug)
			default:
				infof("~ %s refreshed", ev.Slug)
			}
		})
	}),
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
