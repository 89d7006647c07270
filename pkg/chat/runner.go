package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/threadgraph/pkg/domain"
)

// Runner handles an interactive chat loop over one thread using provided IO.
// Every line goes through Service.OnMessage, so the loop sanitises, streams
// and archives exactly like any other front-end.
type Runner struct {
	Input    io.Reader
	Output   io.Writer
	ThreadID string
	Headless bool
	Renderer ContentRenderer
}

// ContentRenderer is a function that transforms the reply before outputting it.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
// When set, the reply is printed once complete instead of token by token.
type ContentRenderer func(string) (string, error)

// NewRunner creates a Runner for a thread. Input and Output must be set before Run.
func NewRunner(threadID string) *Runner {
	return &Runner{ThreadID: threadID}
}

// Run reads one line per turn until EOF, "exit" or "quit".
// Turn failures that leave the thread usable are reported and the loop continues.
func (r *Runner) Run(ctx context.Context, svc *Service) error {
	if r.Input == nil {
		return fmt.Errorf("input reader must be set (use os.Stdin)")
	}
	if r.Output == nil {
		return fmt.Errorf("output writer must be set (use os.Stdout)")
	}
	if r.ThreadID == "" {
		return fmt.Errorf("thread id must be set")
	}

	lineReader := bufio.NewReader(r.Input)
	writer := r.Output

	if !r.Headless {
		fmt.Fprintf(writer, "--- threadgraph chat (thread %s) ---\n", r.ThreadID)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !r.Headless {
			fmt.Fprint(writer, "> ")
		}
		text, err := lineReader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && text != "") {
			if errors.Is(err, io.EOF) {
				// Graceful exit on EOF
				return nil
			}
			return fmt.Errorf("input error: %w", err)
		}

		input := strings.TrimSpace(text)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			if !r.Headless {
				fmt.Fprintln(writer, "Bye!")
			}
			return nil
		}

		if err := r.turn(ctx, svc, input); err != nil {
			return err
		}
	}
}

func (r *Runner) turn(ctx context.Context, svc *Service, input string) error {
	sink := &terminalSink{w: r.Output, render: r.Renderer}
	_, err := svc.OnMessage(ctx, r.ThreadID, input, sink)
	if err == nil {
		return nil
	}
	sink.endLine()

	var (
		nodeErr *domain.NodeExecutionError
		cte     *domain.ConcurrentTurnError
		perr    *domain.PersistenceError
	)
	switch {
	case errors.Is(err, ErrInputTooLarge), errors.Is(err, ErrInvalidUTF8), errors.Is(err, ErrEmptyInput):
		fmt.Fprintf(r.Output, "invalid input: %v\n", err)
		return nil
	case errors.As(err, &nodeErr), errors.As(err, &cte):
		fmt.Fprintf(r.Output, "error: %v\n", err)
		return nil
	}

	delivered := errors.As(err, &perr) && perr.Delivered
	if delivered {
		fmt.Fprintf(r.Output, "warning: reply was not saved: %v\n", perr.Err)
	}
	if errors.Is(err, ErrArchive) {
		fmt.Fprintf(r.Output, "warning: %v\n", archiveCause(err))
		delivered = true
	}
	if delivered {
		return nil
	}
	return fmt.Errorf("turn error: %w", err)
}

// archiveCause picks the archive failure out of a joined turn error.
func archiveCause(err error) error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if errors.Is(e, ErrArchive) {
				return e
			}
		}
	}
	return err
}

// terminalSink prints tokens as they arrive, or the rendered reply once
// complete when a renderer is set.
type terminalSink struct {
	w       io.Writer
	render  ContentRenderer
	pending bool
}

func (s *terminalSink) StreamToken(_ context.Context, token string) error {
	if s.render != nil || token == "" {
		return nil
	}
	s.pending = true
	_, err := io.WriteString(s.w, token)
	return err
}

func (s *terminalSink) Send(_ context.Context, content string) error {
	if s.render == nil {
		s.endLine()
		return nil
	}
	if content == "" {
		return nil
	}
	output := content
	if rendered, err := s.render(content); err == nil {
		output = rendered
	}
	_, err := fmt.Fprintln(s.w, strings.TrimSpace(output))
	return err
}

// endLine terminates a partially streamed reply.
func (s *terminalSink) endLine() {
	if s.pending {
		fmt.Fprintln(s.w)
		s.pending = false
	}
}
