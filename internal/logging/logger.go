package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Output formats accepted by NewWithFormat.
const (
	FormatText   = "text"
	FormatJSON   = "json"
	FormatPretty = "pretty"
)

// New creates a configured application logger.
// It writes to Stderr (to separate from Stdout chat/JSON-RPC flow).
// It standardizes common keys (e.g., "error" -> "err").
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: standardize,
	}))
}

// NewWithFormat builds a logger writing to w in the given format.
// The pretty format colours output only when w is a terminal.
func NewWithFormat(w io.Writer, level slog.Level, format string) (*slog.Logger, error) {
	switch strings.ToLower(format) {
	case "", FormatText:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: standardize,
		})), nil
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: standardize,
		})), nil
	case FormatPretty:
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05.000",
			NoColor:    !isTerminal(w),
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				a = standardize(groups, a)
				if a.Value.Kind() == slog.KindAny {
					if _, ok := a.Value.Any().(error); ok {
						return tint.Attr(9, a)
					}
				}
				return a
			},
		})), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (want text, json or pretty)", format)
	}
}

// ParseLevel accepts debug, info, warn and error.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// NewNop returns a no-op logger.
func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func standardize(_ []string, a slog.Attr) slog.Attr {
	if a.Key == "error" {
		a.Key = "err"
	}
	return a
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
