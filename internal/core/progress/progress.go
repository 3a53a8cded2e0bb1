// Package progress renders single-line terminal progress bars.
package progress

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// clearLine erases from the cursor to the end of the line.
const clearLine = "\033[K"

// Bar renders a progress bar like "|████------| 40.0%" at the given width.
// Totals of zero render as a full bar to avoid division by zero on empty sets.
func Bar(current, total float64, width int) string {
	if width <= 0 {
		width = 20
	}
	ratio := 1.0
	if total > 0 {
		ratio = current / total
	}
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	filled := int(float64(width) * ratio)
	bar := strings.Repeat("█", filled) + strings.Repeat("-", width-filled)
	return fmt.Sprintf("|%s| %.1f%%", bar, ratio*100)
}

// ETA estimates remaining time from items done, items total, and elapsed time.
func ETA(done, total int, elapsed time.Duration) time.Duration {
	if done <= 0 || elapsed <= 0 || done >= total {
		return 0
	}
	rate := float64(done) / elapsed.Seconds()
	remaining := float64(total-done) / rate
	return time.Duration(remaining * float64(time.Second))
}

// Printer writes in-place progress updates to a terminal-like writer.
type Printer struct {
	w     io.Writer
	width int
}

// NewPrinter creates a printer with the given bar width.
func NewPrinter(w io.Writer, width int) *Printer {
	if width <= 0 {
		width = 20
	}
	return &Printer{w: w, width: width}
}

// Update rewrites the current line with a prefixed progress bar.
func (p *Printer) Update(prefix string, current, total float64) {
	fmt.Fprintf(p.w, "\r%s%s %s", clearLine, prefix, Bar(current, total, p.width))
}

// Line rewrites the current line with arbitrary text.
func (p *Printer) Line(text string) {
	fmt.Fprintf(p.w, "\r%s%s", clearLine, text)
}

// Finish replaces the progress line with a final message and a newline.
func (p *Printer) Finish(text string) {
	fmt.Fprintf(p.w, "\r%s%s\n", clearLine, text)
}
