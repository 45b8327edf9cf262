package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RamXX/plansync/internal/enforce"
	"github.com/RamXX/plansync/internal/format"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Validate the document tree",
	Long:  "Checks every document for schema problems, broken references, dependency cycles, stale percentages and registry drift.",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		fix, _ := cmd.Flags().GetBool("fix")

		report, err := enforce.CheckTree(cmd.Context(), a.store, a.reg)
		if err != nil {
			return err
		}
		if fix && !report.OK() {
			n, err := enforce.Fix(cmd.Context(), a.prop, a.reg, report)
			if err != nil {
				errorf("fix: %v", err)
			}
			if !jsonOut {
				fmt.Fprintf(cmd.OutOrStdout(), "Repaired %d epic(s); re-checking.\n\n", n)
			}
			if report, err = enforce.CheckTree(cmd.Context(), a.store, a.reg); err != nil {
				return err
			}
		}
		if jsonOut {
			return format.JSON(cmd.OutOrStdout(), report)
		}
		format.Problems(cmd.OutOrStdout(), report)
		if !report.OK() {
			return fmt.Errorf("%d problem(s) found", len(report.Problems))
		}
		return nil
	}),
}

func init() {
	doctorCmd.Flags().Bool("fix", false, "recompute drifting percentages and rebuild the registry")
	rootCmd.AddCommand(doctorCmd)
}
