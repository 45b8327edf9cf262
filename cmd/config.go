package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage root configuration",
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a config value",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		val, err := a.store.GetConfigValue(args[0])
		if err != nil {
			return err
		}
		return emit(map[string]string{args[0]: val}, func(w io.Writer) { fmt.Fprintln(w, val) })
	}),
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		if err := a.store.SetConfigValue(args[0], args[1]); err != nil {
			return err
		}
		infof("%s = %s", args[0], args[1])
		return nil
	}),
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all config values, environment overrides applied",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		entries := a.store.ConfigEntries()
		asMap := make(map[string]string, len(entries))
		for _, e := range entries {
			asMap[e[0]] = e[1]
		}
		return emit(asMap, func(w io.Writer) {
			for _, e := range entries {
				fmt.Fprintf(w, "%-24s %s\n", e[0], e[1])
			}
		})
	}),
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configListCmd)
	rootCmd.AddCommand(configCmd)
}
