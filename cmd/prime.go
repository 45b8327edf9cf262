package cmd

import (
	"github.com/spf13/cobra"

	"github.com/RamXX/plansync/internal/format"
)

var primeCmd = &cobra.Command{
	Use:   "prime <epic>",
	Short: "Output an agent context summary for an epic",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		st, err := a.orch.GetEpicStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOut {
			return format.JSON(cmd.OutOrStdout(), st)
		}
		format.PrimeContext(cmd.OutOrStdout(), st)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(primeCmd)
}
