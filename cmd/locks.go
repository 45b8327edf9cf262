package cmd

import (
	"io"
	"io/fs"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/RamXX/plansync/internal/format"
	"github.com/RamXX/plansync/internal/lock"
)

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "Inspect and clean lease files",
}

var locksListCmd = &cobra.Command{
	Use:   "list [dir]",
	Short: "List lease files under dir (default: the root)",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		fl := a.store.FileLocker()
		var all []lock.LeaseInfo
		err := walkDirs(lockDir(a, args), func(dir string) error {
			leases, err := fl.List(dir)
			all = append(all, leases...)
			return err
		})
		if err != nil {
			return err
		}
		return emit(all, func(w io.Writer) { format.Leases(w, a.store.Dir(), all) })
	}),
}

var locksCleanCmd = &cobra.Command{
	Use:   "clean [dir]",
	Short: "Remove stale lease files under dir (default: the root)",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		fl := a.store.FileLocker()
		removed := 0
		err := walkDirs(lockDir(a, args), func(dir string) error {
			n, err := fl.CleanStaleLocks(cmd.Context(), dir)
			removed += n
			return err
		})
		if err != nil {
			return err
		}
		if jsonOut {
			return format.JSON(cmd.OutOrStdout(), map[string]int{"removed": removed})
		}
		infof("Removed %d stale lock(s)", removed)
		return nil
	}),
}

func lockDir(a *app, args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return a.store.Dir()
}

// walkDirs calls fn for root and every directory below it.
func walkDirs(root string, fn func(dir string) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return fn(path)
	})
}

func init() {
	locksCmd.AddCommand(locksListCmd, locksCleanCmd)
	rootCmd.AddCommand(locksCmd)
}
