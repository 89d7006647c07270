package main

import (
	"os"

	"github.com/aretw0/threadgraph/internal/cli"
	"github.com/aretw0/threadgraph/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the configured graph in the terminal",
	Long: `Starts an interactive chat over one thread. The thread is resumed from its
checkpoints, or re-seeded from the archive when its checkpoints are gone.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		threadID, _ := cmd.Flags().GetString("thread")
		userID, _ := cmd.Flags().GetString("user")
		headless, _ := cmd.Flags().GetBool("headless")
		markdown, _ := cmd.Flags().GetBool("markdown")
		fresh, _ := cmd.Flags().GetBool("fresh")

		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		sc := cli.NewSignalContext(cmd.Context())
		defer sc.Cancel()

		out := cmd.OutOrStdout()
		if !headless && tui.IsTerminal(out) {
			tui.PrintBanner(out, "")
		}

		return cli.RunChat(sc, rt, cli.ChatOptions{
			ThreadID: threadID,
			UserID:   userID,
			Headless: headless,
			Markdown: markdown,
			Fresh:    fresh,
			Input:    cmd.InOrStdin(),
			Output:   out,
		})
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringP("thread", "t", "", "Thread ID to resume (a new one is generated when empty)")
	chatCmd.Flags().String("user", os.Getenv("USER"), "User the thread belongs to")
	chatCmd.Flags().Bool("headless", false, "Run in headless mode (no prompts, strict IO)")
	chatCmd.Flags().Bool("markdown", false, "Render replies as markdown once complete")
	chatCmd.Flags().Bool("fresh", false, "Discard the thread's checkpoints and archive before starting")
}
