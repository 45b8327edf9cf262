package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/RamXX/plansync/internal/gating"
	"github.com/RamXX/plansync/internal/graph"
	"github.com/RamXX/plansync/internal/model"
)

type epicStats struct {
	Epic  string      `json:"epic"`
	Stats graph.Stats `json:"stats"`
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show roadmap statistics for every epic",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		slugs, err := a.store.ListEpicSlugs()
		if err != nil {
			return err
		}
		var out []epicStats
		total := graph.Stats{ByStatus: make(map[model.Status]int)}
		for _, slug := range slugs {
			e, err := a.store.LoadEpic(slug)
			if err != nil {
				return err
			}
			if e == nil {
				continue
			}
			st := graph.Build(gating.EpicUnits(e)).Stats()
			out = append(out, epicStats{Epic: slug, Stats: st})
			total.Total += st.Total
			total.Ready += st.Ready
			total.Blocked += st.Blocked
			for k, v := range st.ByStatus {
				total.ByStatus[k] += v
			}
		}
		return emit(out, func(w io.Writer) {
			fmt.Fprintf(w, "Epics:       %d\n", len(out))
			fmt.Fprintf(w, "Roadmaps:    %d\n", total.Total)
			fmt.Fprintf(w, "Ready:       %d\n", total.Ready)
			fmt.Fprintf(w, "Blocked:     %d\n", total.Blocked)
			if len(total.ByStatus) > 0 {
				fmt.Fprintln(w, "\nBy Status:")
				for _, s := range total.Statuses() {
					fmt.Fprintf(w, "  %-12s %d\n", s, total.ByStatus[s])
				}
			}
		})
	}),
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
