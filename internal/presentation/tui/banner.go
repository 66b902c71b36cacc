package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the relay banner and version to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	// Teal to green, one shade per line.
	lines := []struct {
		text  string
		color string
	}{
		{`             _`, "#22d3ee"},
		{` _ __ ___| | __ _ _   _`, "#2dd4bf"},
		{`| '__/ _ \ |/ _' | | | |`, "#34d399"},
		{`| | |  __/ | (_| | |_| |`, "#4ade80"},
		{`|_|  \___|_|\__,_|\__, |`, "#a3e635"},
		{`                  |___/`, "#facc15"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  value-custody relay "+version).Faint())
	fmt.Fprintln(w)
}

// Status colours a step status for terminal output.
func Status(w io.Writer, status string) string {
	out := termenv.NewOutput(w)
	switch status {
	case "passed":
		return out.String(status).Foreground(out.Color("#4ade80")).String()
	case "failed":
		return out.String(status).Foreground(out.Color("#f87171")).Bold().String()
	default:
		return out.String(status).Foreground(out.Color("#facc15")).String()
	}
}
