package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/RamXX/plansync/internal/format"
	"github.com/RamXX/plansync/internal/store"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and drive an epic's orchestration ledger",
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show <epic>",
	Short: "Show the ledger and its checkpoints",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		l, err := a.store.LoadLedger(args[0])
		if err != nil {
			return err
		}
		if l == nil {
			return fmt.Errorf("epic %s has no ledger (run plansync ledger start): %w", args[0], store.ErrNotFound)
		}
		return emit(l, func(w io.Writer) { format.Ledger(w, l) })
	}),
}

var ledgerStartCmd = &cobra.Command{
	Use:   "start <epic>",
	Short: "Create the ledger and activate the first eligible roadmap",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		prog, err := a.orch.Start(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return emit(prog, func(w io.Writer) {
			format.Progression(w, prog)
			if prog.Ledger != nil {
				format.Ledger(w, prog.Ledger)
			}
		})
	}),
}

var ledgerAdvanceCmd = &cobra.Command{
	Use:   "advance <epic>",
	Short: "Move the ledger to the next roadmap",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		adv, l, err := a.orch.AdvanceToNextRoadmap(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return emit(adv, func(w io.Writer) {
			if adv.EpicCompleted {
				fmt.Fprintln(w, "Epic completed.")
			} else {
				fmt.Fprintf(w, "Current roadmap index is now %d of %d.\n", adv.NextIndex, l.RoadmapCount)
			}
		})
	}),
}

var ledgerBudgetCmd = &cobra.Command{
	Use:   "budget <epic> <used>",
	Short: "Record token usage and report whether compaction is due",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		used, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid token count %q", args[1])
		}
		needs, l, err := a.orch.UpdateTokenBudget(cmd.Context(), args[0], used)
		if err != nil {
			return err
		}
		out := map[string]any{"needs_compaction": needs, "token_budget": l.TokenBudget}
		return emit(out, func(w io.Writer) { format.Budget(w, l.TokenBudget, needs) })
	}),
}

var ledgerCheckpointCmd = &cobra.Command{
	Use:   "checkpoint <epic> <kind> [message]",
	Short: "Append a checkpoint to the ledger",
	Args:  cobra.RangeArgs(2, 3),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		roadmapID, _ := cmd.Flags().GetString("roadmap")
		msg := ""
		if len(args) == 3 {
			msg = args[2]
		}
		cp, err := a.orch.CreateCheckpoint(cmd.Context(), args[0], args[1], roadmapID, msg, nil)
		if err != nil {
			return err
		}
		return emit(cp, func(w io.Writer) { format.Checkpoint(w, *cp) })
	}),
}

func init() {
	ledgerCheckpointCmd.Flags().String("roadmap", "", "roadmap id the checkpoint refers to")
	ledgerCmd.AddCommand(ledgerShowCmd, ledgerStartCmd, ledgerAdvanceCmd, ledgerBudgetCmd, ledgerCheckpointCmd)
	rootCmd.AddCommand(ledgerCmd)
}
