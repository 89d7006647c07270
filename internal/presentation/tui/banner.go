package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the threadgraph banner, coloured when w supports it.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	p := out.ColorProfile()

	lines := []struct {
		text  string
		color string
	}{
		{"  _   _                        _                        _     ", "#818cf8"},
		{" | |_| |__  _ __ ___  __ _  __| | __ _ _ __ __ _ _ __ | |__  ", "#a78bfa"},
		{" | __| '_ \\| '__/ _ \\/ _` |/ _` |/ _` | '__/ _` | '_ \\| '_ \\ ", "#c084fc"},
		{" | |_| | | | | |  __/ (_| | (_| | (_| | | | (_| | |_) | | | |", "#e879f9"},
		{"  \\__|_| |_|_|  \\___|\\__,_|\\__,_|\\__, |_|  \\__,_| .__/|_| |_|", "#f472b6"},
		{"                                 |___/          |_|          ", "#fb7185"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(p.Color(l.color)))
	}
	if version != "" {
		fmt.Fprintln(w, out.String("  v"+version).Faint())
	}
	fmt.Fprintln(w)
}
