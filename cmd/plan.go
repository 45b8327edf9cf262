package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/RamXX/plansync/internal/format"
	"github.com/RamXX/plansync/internal/model"
	"github.com/RamXX/plansync/internal/store"
	"github.com/RamXX/plansync/internal/ui"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Create and inspect development plans",
}

var planCreateCmd = &cobra.Command{
	Use:   "create <roadmap> <title>",
	Short: "Create a plan under a roadmap",
	Long:  "The roadmap is a document path or epic:roadmap-id. Phases are given as --phase id:task,task.",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		slug, _ := cmd.Flags().GetString("slug")
		rawPhases, _ := cmd.Flags().GetStringArray("phase")

		path, err := roadmapPath(a, args[0])
		if err != nil {
			return err
		}
		p := &model.Plan{Slug: slug, Title: args[1], Phases: []model.Phase{}}
		for _, raw := range rawPhases {
			ph, err := store.ParsePhaseSpec(raw)
			if err != nil {
				return err
			}
			p.Phases = append(p.Phases, ph)
		}
		created, err := a.store.AddPlan(cmd.Context(), path, p)
		if err != nil {
			return err
		}
		if rm, err := a.store.ReadRoadmap(path); err == nil && rm.ParentEpic != nil {
			if _, err := a.prop.SyncAll(cmd.Context(), rm.ParentEpic.EpicSlug); err != nil {
				return fmt.Errorf("sync %s: %w", rm.ParentEpic.EpicSlug, err)
			}
		}
		if jsonOut {
			return format.JSON(cmd.OutOrStdout(), created)
		}
		infof("Created plan %s with %d phase(s)", created.Slug, len(created.Phases))
		return nil
	}),
}

var planShowCmd = &cobra.Command{
	Use:   "show <plan>",
	Short: "Show a plan's phases and tasks",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		p, err := a.store.ReadPlan(a.prop.PlanPath(args[0]))
		if err != nil {
			return fmt.Errorf("plan %s: %w", args[0], err)
		}
		return emit(p, func(w io.Writer) {
			fmt.Fprintf(w, "%s %s %s %s\n", ui.RenderStatusIcon(string(p.Status)), ui.RenderBold(p.Title),
				ui.RenderMuted("("+p.Slug+")"), ui.RenderProgress(p.CompletionPercentage, 20))
			for _, ph := range p.Phases {
				fmt.Fprintf(w, "  %s %s %s\n", ui.RenderStatusIcon(string(ph.Status)), ph.ID, ui.RenderProgress(ph.CompletionPercentage, 10))
				for _, t := range ph.Tasks {
					fmt.Fprintf(w, "    %s %s\n", ui.RenderStatusIcon(string(t.Status)), t.ID)
				}
			}
		})
	}),
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Report task events",
}

var taskCompleteCmd = &cobra.Command{
	Use:   "complete <plan> <phase-id> <task-id>",
	Short: "Mark a task completed and propagate upward",
	Args:  cobra.ExactArgs(3),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		prog, err := a.orch.HandleTaskCompleted(cmd.Context(), args[0], args[1], args[2])
		if err != nil {
			return err
		}
		return emit(prog, func(w io.Writer) { format.Progression(w, prog) })
	}),
}

func init() {
	planCreateCmd.Flags().String("slug", "", "slug (default: derived from the title)")
	planCreateCmd.Flags().StringArray("phase", nil, "phase as id:task,task (repeatable)")
	planCmd.AddCommand(planCreateCmd, planShowCmd)
	taskCmd.AddCommand(taskCompleteCmd)
	rootCmd.AddCommand(planCmd, taskCmd)
}
