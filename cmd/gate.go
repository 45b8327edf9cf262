package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/RamXX/plansync/internal/format"
	"github.com/RamXX/plansync/internal/gating"
)

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Check whether a roadmap or plan may start",
}

var gateCheckCmd = &cobra.Command{
	Use:   "check <epic> <index>",
	Short: "Evaluate the gate of the epic's roadmap at index",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		index, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid index %q", args[1])
		}
		d, err := a.orch.CheckGatingRequirements(cmd.Context(), args[0], index)
		if err != nil {
			return err
		}
		return emit(d, func(w io.Writer) { format.Decision(w, fmt.Sprintf("%s[%d]", args[0], index), d) })
	}),
}

var gatePlanCmd = &cobra.Command{
	Use:   "plan <roadmap> <index>",
	Short: "Evaluate the gate of the roadmap's plan at index",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		override, _ := cmd.Flags().GetBool("allow-override")
		index, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid index %q", args[1])
		}
		path, err := roadmapPath(a, args[0])
		if err != nil {
			return err
		}
		r, err := a.store.ReadRoadmap(path)
		if err != nil {
			return err
		}
		d := gating.ForRoadmap(r, index, override)
		return emit(d, func(w io.Writer) { format.Decision(w, fmt.Sprintf("%s[%d]", r.Slug, index), d) })
	}),
}

func init() {
	gatePlanCmd.Flags().Bool("allow-override", false, "report whether a manual override could force the plan")
	gateCmd.AddCommand(gateCheckCmd, gatePlanCmd)
	rootCmd.AddCommand(gateCmd)
}
