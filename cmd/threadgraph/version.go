package main

import (
	"fmt"

	"github.com/aretw0/threadgraph"
	"github.com/aretw0/threadgraph/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of threadgraph",
	Run: func(cmd *cobra.Command, args []string) {
		if short, _ := cmd.Flags().GetBool("short"); short {
			fmt.Fprintln(cmd.OutOrStdout(), threadgraph.Version)
			return
		}
		tui.PrintBanner(cmd.OutOrStdout(), threadgraph.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().Bool("short", false, "Print only the version number")
}
