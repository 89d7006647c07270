package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/aretw0/threadgraph/internal/cli"
	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/spf13/cobra"
)

var threadCmd = &cobra.Command{
	Use:   "thread",
	Short: "Manage persistent threads",
	Long:  `List, inspect, seed and remove threads held by the configured store and archive.`,
}

var threadLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List threads",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")

		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx := cmd.Context()
		records, err := rt.Archive.ListThreads(ctx, userID)
		if err != nil {
			return fmt.Errorf("error listing archived threads: %w", err)
		}

		ids := make([]string, 0, len(records))
		byID := make(map[string]domain.ThreadRecord, len(records))
		for _, rec := range records {
			ids = append(ids, rec.ID)
			byID[rec.ID] = rec
		}
		if userID == "" {
			checkpointed, err := rt.Engine.Threads(ctx)
			if err != nil {
				return fmt.Errorf("error listing threads: %w", err)
			}
			slices.Sort(checkpointed)
			for _, id := range checkpointed {
				if _, ok := byID[id]; !ok {
					ids = append(ids, id)
				}
			}
		}

		out := cmd.OutOrStdout()
		if len(ids) == 0 {
			fmt.Fprintln(out, "No threads found.")
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tUSER\tVERSION\tUPDATED")
		for _, id := range ids {
			rec := byID[id]
			version := "-"
			if cp, err := rt.Engine.GetCheckpoint(ctx, id); err == nil {
				version = fmt.Sprint(cp.Version)
			}
			updated := "-"
			if !rec.UpdatedAt.IsZero() {
				updated = rec.UpdatedAt.Local().Format(time.DateTime)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", id, orDash(rec.Name), orDash(rec.UserID), version, updated)
		}
		return tw.Flush()
	},
}

var threadInspectCmd = &cobra.Command{
	Use:   "inspect <thread-id>",
	Short: "Print the latest checkpoint of a thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		cp, err := rt.Engine.GetCheckpoint(cmd.Context(), args[0])
		if errors.Is(err, domain.ErrCheckpointNotFound) {
			return fmt.Errorf("thread '%s' has no checkpoint", args[0])
		}
		if err != nil {
			return fmt.Errorf("error loading thread '%s': %w", args[0], err)
		}

		data, err := json.MarshalIndent(cp, "", "  ")
		if err != nil {
			return fmt.Errorf("error marshaling checkpoint: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var threadHistoryCmd = &cobra.Command{
	Use:   "history <thread-id>",
	Short: "List the retained checkpoints of a thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		lineage, err := rt.Engine.History(cmd.Context(), args[0])
		if errors.Is(err, errors.ErrUnsupported) {
			return fmt.Errorf("store %q keeps only the latest checkpoint", rt.Config.Store.Driver)
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(lineage) == 0 {
			fmt.Fprintf(out, "Thread '%s' has no checkpoints.\n", args[0])
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tCREATED\tMESSAGES\tLAST")
		for _, cp := range lineage {
			last := "-"
			if msg, ok := cp.State.LastMessage(); ok {
				last = fmt.Sprintf("%s: %s", msg.Role, truncate(msg.Content, 40))
			}
			fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", cp.Version, cp.CreatedAt.Local().Format(time.DateTime), len(cp.State.Messages), last)
		}
		return tw.Flush()
	},
}

var threadRmCmd = &cobra.Command{
	Use:   "rm <thread-id>...",
	Short: "Remove one or more threads",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		var errs []error
		for _, threadID := range args {
			err := errors.Join(
				rt.Engine.Delete(ctx, threadID),
				rt.Archive.DeleteThread(ctx, threadID),
			)
			if err != nil {
				errs = append(errs, fmt.Errorf("error removing '%s': %w", threadID, err))
				continue
			}
			fmt.Fprintf(out, "Removed thread '%s'\n", threadID)
		}
		return errors.Join(errs...)
	},
}

var threadSeedCmd = &cobra.Command{
	Use:   "seed <thread-id>",
	Short: "Seed an empty thread with chat history",
	Long: `Installs chat history on a thread that has no messages. The history is read
from --file ({"chat_history": [{"role": ..., "content": ...}]}) or, without it,
from the thread's archive record.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")

		var doc []byte
		if path != "" {
			var err error
			if doc, err = os.ReadFile(path); err != nil {
				return fmt.Errorf("error reading history: %w", err)
			}
		}

		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		seeded, err := cli.SeedThread(cmd.Context(), rt, args[0], doc)
		if err != nil {
			return err
		}
		if seeded {
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded thread '%s'\n", args[0])
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Thread '%s' already has messages; nothing seeded\n", args[0])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(threadCmd)
	threadCmd.AddCommand(threadLsCmd)
	threadCmd.AddCommand(threadInspectCmd)
	threadCmd.AddCommand(threadHistoryCmd)
	threadCmd.AddCommand(threadRmCmd)
	threadCmd.AddCommand(threadSeedCmd)

	threadLsCmd.Flags().String("user", "", "Only list archived threads of this user")
	threadSeedCmd.Flags().StringP("file", "f", "", "JSON document holding chat_history")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "…"
	}
	return s
}
