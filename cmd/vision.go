package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RamXX/plansync/internal/format"
	"github.com/RamXX/plansync/internal/model"
	"github.com/RamXX/plansync/internal/store"
)

var visionCmd = &cobra.Command{
	Use:   "vision",
	Short: "Create, list and inspect visions",
}

var visionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered visions",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		entries, err := a.orch.GetRegisteredVisions(cmd.Context())
		if err != nil {
			return err
		}
		return emit(entries, func(w io.Writer) { format.Visions(w, entries) })
	}),
}

var visionActiveCmd = &cobra.Command{
	Use:   "active",
	Short: "List visions that are neither completed nor failed",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		entries, err := a.orch.GetActiveVisions(cmd.Context())
		if err != nil {
			return err
		}
		return emit(entries, func(w io.Writer) { format.Visions(w, entries) })
	}),
}

var visionShowCmd = &cobra.Command{
	Use:   "show <slug>",
	Short: "Show one vision",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		v, err := a.store.ReadVision(args[0])
		if err != nil {
			return fmt.Errorf("vision %s: %w", args[0], err)
		}
		return emit(v, func(w io.Writer) { format.Vision(w, v) })
	}),
}

var visionCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a vision with a unique slug",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		slug, _ := cmd.Flags().GetString("slug")
		desc, _ := cmd.Flags().GetString("description")
		objectives, _ := cmd.Flags().GetStringArray("okr")

		v := store.NewVision(slug, args[0], desc)
		for _, raw := range objectives {
			okr, err := parseObjective(raw)
			if err != nil {
				return err
			}
			v.OKRs = append(v.OKRs, okr)
		}
		created, err := a.reg.CreateVision(cmd.Context(), v)
		if err != nil {
			return err
		}
		if jsonOut {
			return format.JSON(cmd.OutOrStdout(), created)
		}
		infof("Created vision %s", created.Slug)
		return nil
	}),
}

var visionDeleteCmd = &cobra.Command{
	Use:   "delete <slug>",
	Short: "Delete a vision directory and its registry entry",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		if err := a.store.DeleteVision(cmd.Context(), args[0]); err != nil {
			return err
		}
		infof("Deleted vision %s", args[0])
		return nil
	}),
}

// parseObjective reads "objective: kr one; kr two".
func parseObjective(raw string) (model.Objective, error) {
	obj, krs, _ := strings.Cut(raw, ":")
	obj = strings.TrimSpace(obj)
	if obj == "" {
		return model.Objective{}, fmt.Errorf("okr %q: objective is empty", raw)
	}
	out := model.Objective{Objective: obj, KeyResults: []string{}}
	for _, kr := range strings.Split(krs, ";") {
		if kr = strings.TrimSpace(kr); kr != "" {
			out.KeyResults = append(out.KeyResults, kr)
		}
	}
	return out, nil
}

func init() {
	visionCreateCmd.Flags().String("slug", "", "slug (default: derived from the title)")
	visionCreateCmd.Flags().String("description", "", "markdown description")
	visionCreateCmd.Flags().StringArray("okr", nil, `objective with key results, "objective: kr; kr" (repeatable)`)
	visionCmd.AddCommand(visionListCmd, visionActiveCmd, visionShowCmd, visionCreateCmd, visionDeleteCmd)
	rootCmd.AddCommand(visionCmd)
}
