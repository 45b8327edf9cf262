package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/RamXX/plansync/internal/gating"
	"github.com/RamXX/plansync/internal/ui"
)

var readyCmd = &cobra.Command{
	Use:   "ready <epic>",
	Short: "Show roadmaps whose gate is open",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		limit, _ := cmd.Flags().GetInt("limit")

		e, err := a.store.ReadEpic(args[0])
		if err != nil {
			return err
		}
		units := gating.EpicUnits(e)
		var ready []gating.Unit
		for _, i := range gating.ReadyIndices(units) {
			ready = append(ready, units[i])
		}
		if limit > 0 && len(ready) > limit {
			ready = ready[:limit]
		}
		return emit(ready, func(w io.Writer) {
			if len(ready) == 0 {
				fmt.Fprintln(w, "No roadmaps ready.")
				return
			}
			for _, u := range ready {
				fmt.Fprintf(w, "%s %s %s\n", ui.RenderStatusIcon(string(u.Status)), u.ID, u.Title)
			}
		})
	}),
}

func init() {
	readyCmd.Flags().IntP("limit", "n", 0, "max results")
	rootCmd.AddCommand(readyCmd)
}
