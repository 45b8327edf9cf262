package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RamXX/plansync/internal/store"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new plansync root",
	RunE: func(cmd *cobra.Command, args []string) error {
		lockMode, _ := cmd.Flags().GetString("lock-mode")
		dir := rootDir
		if dir == "" {
			dir = DefaultRootName
		}

		s, err := store.Init(dir)
		if err != nil {
			return fmt.Errorf("init %s: %w", dir, err)
		}
		if lockMode != "" {
			if err := s.SetConfigValue("lock.mode", lockMode); err != nil {
				return err
			}
		}
		infof("Initialized plansync root at %s", s.Dir())
		return nil
	},
}

func init() {
	initCmd.Flags().String("lock-mode", "", "document locking: file or memory (default file)")
	rootCmd.AddCommand(initCmd)
}
