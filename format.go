package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(format string, args ...any) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// formatTime returns a compact timestamp for display.
func formatTime(t time.Time) string {
	now := time.Now()

	// Same calendar year: show "Jan  2 15:04"
	if t.Year() == now.Year() {
		return t.Local().Format("Jan _2 15:04")
	}

	return t.Local().Format("Jan _2  2006")
}

// newTable returns a tabwriter on stdout for aligned column output.
func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
}

// stderrIsTerminal reports whether stderr is an interactive terminal.
// Progress rendering is suppressed when output is piped or redirected.
func stderrIsTerminal() bool {
	fd := os.Stderr.Fd()

	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// progressPrinter renders an in-place transfer percentage on stderr.
// Quiet mode and non-terminal output disable it entirely.
type progressPrinter struct {
	label   string
	enabled bool
	started bool
}

func newProgressPrinter(label string) *progressPrinter {
	return &progressPrinter{
		label:   label,
		enabled: !flagQuiet && stderrIsTerminal(),
	}
}

// Update redraws the progress line. Safe to call from the transfer
// goroutine; writes are line-atomic.
func (p *progressPrinter) Update(pct int) {
	if !p.enabled {
		return
	}

	p.started = true
	fmt.Fprintf(os.Stderr, "\r%s: %3d%%", p.label, pct)
}

// Done terminates the progress line.
func (p *progressPrinter) Done() {
	if p.enabled && p.started {
		fmt.Fprint(os.Stderr, "\n")
	}
}
