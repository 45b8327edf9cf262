package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RamXX/plansync/internal/format"
	"github.com/RamXX/plansync/internal/model"
	"github.com/RamXX/plansync/internal/store"
)

var roadmapCmd = &cobra.Command{
	Use:   "roadmap",
	Short: "Add roadmaps and report their progress",
}

var roadmapAddCmd = &cobra.Command{
	Use:   "add <epic> <title>",
	Short: "Append a roadmap to an epic",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		slug, _ := cmd.Flags().GetString("slug")
		deps, _ := cmd.Flags().GetStringSlice("depends-on")

		r, err := a.store.AddRoadmap(cmd.Context(), args[0], store.RoadmapSpec{Title: args[1], Slug: slug, DependsOn: deps})
		if err != nil {
			return err
		}
		if _, err := a.prop.SyncAll(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("sync %s: %w", args[0], err)
		}
		if jsonOut {
			return format.JSON(cmd.OutOrStdout(), r)
		}
		infof("Added %s (%s) to %s", r.RoadmapID, r.Slug, args[0])
		return nil
	}),
}

var roadmapStatusCmd = &cobra.Command{
	Use:   "status <epic> <roadmap-id> <status>",
	Short: "Report a roadmap status change",
	Args:  cobra.ExactArgs(3),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		reason, _ := cmd.Flags().GetString("reason")
		status, err := model.ParseStatus(args[2])
		if err != nil {
			return err
		}
		prog, err := a.orch.HandleRoadmapStatusChanged(cmd.Context(), args[0], args[1], status, reason)
		if err != nil {
			return err
		}
		return emit(prog, func(w io.Writer) { format.Progression(w, prog) })
	}),
}

var roadmapProgressCmd = &cobra.Command{
	Use:   "progress <epic> <roadmap-id> <pct>",
	Short: "Report a roadmap completion percentage",
	Args:  cobra.ExactArgs(3),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		pct, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid percentage %q", args[2])
		}
		prog, err := a.orch.HandleRoadmapProgressUpdated(cmd.Context(), args[0], args[1], pct, nil)
		if err != nil {
			return err
		}
		return emit(prog, func(w io.Writer) { format.Progression(w, prog) })
	}),
}

// roadmapPath accepts either a roadmap document path or "epic:roadmap-id".
func roadmapPath(a *app, arg string) (string, error) {
	epicSlug, id, ok := strings.Cut(arg, ":")
	if !ok || strings.ContainsRune(arg, '/') {
		return arg, nil
	}
	e, err := a.store.ReadEpic(epicSlug)
	if err != nil {
		return "", err
	}
	i := e.RoadmapIndex(id)
	if i < 0 || e.Roadmaps[i].Path == "" {
		return "", fmt.Errorf("epic %s has no roadmap document for %s", epicSlug, id)
	}
	return e.Roadmaps[i].Path, nil
}

func init() {
	roadmapAddCmd.Flags().String("slug", "", "slug (default: derived from the title)")
	roadmapAddCmd.Flags().StringSlice("depends-on", nil, "roadmap ids that must complete first")
	roadmapStatusCmd.Flags().String("reason", "", "failure reason recorded in the ledger")
	roadmapCmd.AddCommand(roadmapAddCmd, roadmapStatusCmd, roadmapProgressCmd)
	rootCmd.AddCommand(roadmapCmd)
}
