package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/threadgraph/internal/presentation/graph"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the graph visualization",
	Long: `Outputs a Mermaid diagram (graph TD) of the configured graph.
--highlight marks nodes as visited; the last one listed is marked current.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		highlight, _ := cmd.Flags().GetString("highlight")

		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		var overlay *graph.GraphOverlay
		if highlight != "" {
			visited := strings.Split(highlight, ",")
			for i := range visited {
				visited[i] = strings.TrimSpace(visited[i])
			}
			overlay = &graph.GraphOverlay{
				VisitedNodes: visited,
				CurrentNode:  visited[len(visited)-1],
			}
		}

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(rt.Engine.Graph(), overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("highlight", "", "Comma separated node names to highlight")
}
