package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/threadgraph/internal/presentation/tui"
	"github.com/aretw0/threadgraph/pkg/chat"
	"github.com/aretw0/threadgraph/pkg/domain"
)

// ChatOptions configures an interactive chat session.
type ChatOptions struct {
	ThreadID string
	UserID   string
	Headless bool
	Markdown bool
	Fresh    bool
	Input    io.Reader
	Output   io.Writer
}

// RunChat resumes (or starts) a thread and runs the REPL over it.
func RunChat(ctx context.Context, rt *Runtime, opts ChatOptions) error {
	if opts.Fresh && opts.ThreadID != "" {
		if err := rt.Engine.Delete(ctx, opts.ThreadID); err != nil {
			return fmt.Errorf("failed to reset thread: %w", err)
		}
		if err := rt.Archive.DeleteThread(ctx, opts.ThreadID); err != nil {
			return fmt.Errorf("failed to reset thread: %w", err)
		}
	}

	rec, err := rt.Chat.OnChatStart(ctx, chat.ChatStart{ThreadID: opts.ThreadID, UserID: opts.UserID})
	if err != nil {
		return err
	}

	seeded, err := rt.Chat.OnChatResume(ctx, rec)
	if err != nil {
		return fmt.Errorf("failed to resume thread: %w", err)
	}
	if !opts.Headless {
		if seeded {
			printSystemMessage(opts.Output, "Thread '%s' restored from archive.", rec.ID)
		} else {
			printSystemMessage(opts.Output, "Thread '%s' active.", rec.ID)
		}
	}

	runner := chat.NewRunner(rec.ID)
	runner.Input = NewInterruptibleReader(opts.Input, ctx.Done())
	runner.Output = opts.Output
	runner.Headless = opts.Headless
	if opts.Markdown && !opts.Headless {
		render, err := tui.NewRenderer(tui.Width(opts.Output, 100))
		if err != nil {
			return err
		}
		runner.Renderer = render
	}

	err = runner.Run(ctx, rt.Chat)
	if err != nil && IsInterrupted(err) {
		if !opts.Headless {
			fmt.Fprintln(opts.Output)
			printSystemMessage(opts.Output, "Interrupted.")
		}
		return nil
	}
	return err
}

// SeedThread installs history on an empty thread from a JSON document
// ({"chat_history": [...]}) or the archive when doc is empty.
func SeedThread(ctx context.Context, rt *Runtime, threadID string, doc []byte) (bool, error) {
	if len(doc) == 0 {
		seeded, err := rt.Chat.ResumeByID(ctx, threadID)
		if errors.Is(err, domain.ErrThreadNotFound) {
			return false, fmt.Errorf("thread %q is not archived", threadID)
		}
		return seeded, err
	}

	meta, err := chat.DecodeMetadata(doc)
	if err != nil {
		return false, err
	}
	return rt.Chat.Resume(ctx, threadID, meta.ChatHistory)
}

func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}
