package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/RamXX/plansync/internal/gating"
	"github.com/RamXX/plansync/internal/graph"
	"github.com/RamXX/plansync/internal/ui"
)

var graphCmd = &cobra.Command{
	Use:   "graph <epic> [roadmap-id]",
	Short: "Show the roadmap dependency graph as a terminal DAG",
	Long:  "Without roadmap-id: one tree per roadmap with no dependencies. With roadmap-id: the roadmaps waiting on it.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		e, err := a.store.ReadEpic(args[0])
		if err != nil {
			return err
		}
		g := graph.Build(gating.EpicUnits(e))

		var trees []*graph.PathNode
		if len(args) == 2 {
			tree := g.UnblockPath(args[1])
			if tree == nil {
				return fmt.Errorf("roadmap %s not found in %s", args[1], e.Slug)
			}
			trees = append(trees, tree)
		} else {
			for _, root := range g.Roots() {
				trees = append(trees, g.UnblockPath(root.ID))
			}
		}
		return emit(trees, func(w io.Writer) {
			if len(trees) == 0 {
				fmt.Fprintln(w, "No dependency graph to display.")
				return
			}
			for i, tree := range trees {
				printGraphNode(w, tree, "", true)
				if i < len(trees)-1 {
					fmt.Fprintln(w)
				}
			}
		})
	}),
}

func printGraphNode(w io.Writer, node *graph.PathNode, prefix string, isLast bool) {
	connector := "|- "
	if isLast {
		connector = "`- "
	}
	if prefix == "" {
		connector = ""
	}
	fmt.Fprintf(w, "%s%s%s %s %s\n", prefix, connector,
		ui.RenderStatusIcon(string(node.Node.Status)), node.Node.ID, node.Node.Title)

	childPrefix := prefix
	if prefix != "" || connector == "" {
		if isLast {
			childPrefix += "   "
		} else {
			childPrefix += "|  "
		}
	}
	for i, child := range node.Children {
		printGraphNode(w, child, childPrefix, i == len(node.Children)-1)
	}
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
