package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/RamXX/plansync/internal/format"
	"github.com/RamXX/plansync/internal/model"
)

var epicCmd = &cobra.Command{
	Use:   "epic",
	Short: "Create and inspect epics",
}

var epicCreateCmd = &cobra.Command{
	Use:   "create <slug> <title>",
	Short: "Create an epic, optionally executing a vision",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		visionSlug, _ := cmd.Flags().GetString("vision")
		requireTests, _ := cmd.Flags().GetBool("require-tests")
		allowOverride, _ := cmd.Flags().GetBool("allow-override")
		budget, _ := cmd.Flags().GetInt("token-budget")
		threshold, _ := cmd.Flags().GetFloat64("threshold")

		if visionSlug != "" {
			if _, err := a.store.ReadVision(visionSlug); err != nil {
				return fmt.Errorf("vision %s: %w", visionSlug, err)
			}
		}
		e := &model.Epic{
			Slug:        args[0],
			Title:       args[1],
			VisionSlug:  visionSlug,
			Gating:      model.Gating{RequireTests: requireTests, AllowManualOverride: allowOverride},
			TokenBudget: model.TokenBudget{Total: budget, CompactionThreshold: threshold},
		}
		if err := a.store.CreateEpic(cmd.Context(), e); err != nil {
			return err
		}
		if visionSlug != "" {
			if _, _, err := a.prop.SyncVision(cmd.Context(), visionSlug, e.Slug); err != nil {
				return fmt.Errorf("link vision %s: %w", visionSlug, err)
			}
		}
		if jsonOut {
			return format.JSON(cmd.OutOrStdout(), e)
		}
		infof("Created epic %s (%s)", e.Slug, e.EpicID)
		return nil
	}),
}

var epicStatusCmd = &cobra.Command{
	Use:   "status <slug>",
	Short: "Show an epic with its ledger and ready roadmaps",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		st, err := a.orch.GetEpicStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return emit(st, func(w io.Writer) { format.EpicStatus(w, st) })
	}),
}

var epicTreeCmd = &cobra.Command{
	Use:   "tree <slug>",
	Short: "Show the epic with its roadmaps and plans",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		e, err := a.store.ReadEpic(args[0])
		if err != nil {
			return err
		}
		roadmaps := make(map[string]*model.Roadmap, len(e.Roadmaps))
		for _, entry := range e.Roadmaps {
			if entry.Path == "" {
				continue
			}
			rm, err := a.store.LoadRoadmap(entry.Path)
			if err != nil {
				return err
			}
			if rm != nil {
				roadmaps[entry.RoadmapID] = rm
			}
		}
		if jsonOut {
			return format.JSON(cmd.OutOrStdout(), map[string]any{"epic": e, "roadmaps": roadmaps})
		}
		format.EpicTree(cmd.OutOrStdout(), e, roadmaps)
		return nil
	}),
}

var epicSyncCmd = &cobra.Command{
	Use:   "sync <slug>",
	Short: "Recompute every level of the epic from its plans",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		res, err := a.prop.SyncAll(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return emit(res, func(w io.Writer) { format.Propagation(w, res) })
	}),
}

func init() {
	epicCreateCmd.Flags().String("vision", "", "vision this epic executes")
	epicCreateCmd.Flags().Bool("require-tests", false, "roadmaps need passing tests before completion")
	epicCreateCmd.Flags().Bool("allow-override", false, "allow starting a gated roadmap manually")
	epicCreateCmd.Flags().Int("token-budget", 0, "total token budget")
	epicCreateCmd.Flags().Float64("threshold", 0.8, "fraction of the budget that triggers compaction")
	epicCmd.AddCommand(epicCreateCmd, epicStatusCmd, epicTreeCmd, epicSyncCmd)
	rootCmd.AddCommand(epicCmd)
}
