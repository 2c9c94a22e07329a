// Package output provides consistent CLI output formatting with progress
// indicators for interactive runs.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-isatty"
)

// Writer formats CLI output. In-place progress updates are only emitted
// when the destination is a terminal.
type Writer struct {
	out         io.Writer
	interactive bool
}

// New creates a Writer. Interactivity is detected from out when it is a
// file descriptor.
func New(out io.Writer) *Writer {
	w := &Writer{out: out}
	if f, ok := out.(interface{ Fd() uintptr }); ok {
		w.interactive = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return w
}

// Interactive overrides terminal detection, mainly for tests.
func (w *Writer) Interactive(on bool) *Writer {
	w.interactive = on
	return w
}

// Status prints a message with an optional icon. Write errors are
// ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	w.Status("✓", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("!", msg)
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("✗", msg)
}

// Code prints an indented code block.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Progress prints an in-place progress bar on a terminal and nothing
// otherwise.
func (w *Writer) Progress(current, total int, msg string) {
	if !w.interactive || total <= 0 {
		return
	}

	pct := float64(current) / float64(total) * 100
	bar := renderBar(current, total, 30)
	_, _ = fmt.Fprintf(w.out, "\r[%s] %3.0f%% %s", bar, pct, msg)
	if current >= total {
		_, _ = fmt.Fprintln(w.out)
	}
}

func renderBar(current, total, width int) string {
	filled := int(float64(current) / float64(total) * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
