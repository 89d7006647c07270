package tui

import (
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

const defaultWrap = 100

// NewRenderer returns a function that renders markdown using glamour.
// The style follows the terminal background; wrap <= 0 uses the default width.
func NewRenderer(wrap int) (func(string) (string, error), error) {
	if wrap <= 0 {
		wrap = defaultWrap
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		return nil, err
	}

	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}, nil
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Width returns the terminal width of w, or fallback when unknown.
func Width(w io.Writer, fallback int) int {
	f, ok := w.(*os.File)
	if !ok {
		return fallback
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return fallback
	}
	return width
}
