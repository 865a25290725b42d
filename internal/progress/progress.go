// Package progress renders download progress and build spinners on
// interactive terminals. On a CI runner stdout is not a terminal, so
// callers check Enabled and skip the display entirely.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// IsTerminalFunc reports whether fd is a terminal. Tests override it.
var IsTerminalFunc = term.IsTerminal

// Enabled reports whether stdout is interactive.
func Enabled() bool {
	return IsTerminalFunc(int(os.Stdout.Fd()))
}

const (
	lineWidth     = 80
	barWidth      = 30
	printInterval = 100 * time.Millisecond
)

// Writer passes bytes through to an underlying writer and redraws a
// progress line on output at most ten times per second.
type Writer struct {
	mu        sync.Mutex
	dst       io.Writer
	output    io.Writer
	total     int64
	written   int64
	started   time.Time
	lastPrint time.Time
	now       func() time.Time
}

// NewWriter wraps dst. total <= 0 means the size is unknown and only the
// byte count and rate are shown.
func NewWriter(dst io.Writer, total int64, output io.Writer) *Writer {
	return &Writer{
		dst:     dst,
		output:  output,
		total:   total,
		started: time.Now(),
		now:     time.Now,
	}
}

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	if n > 0 {
		w.mu.Lock()
		w.written += int64(n)
		w.redraw()
		w.mu.Unlock()
	}
	return n, err
}

// Written returns the number of bytes copied so far.
func (w *Writer) Written() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Finish clears the progress line.
func (w *Writer) Finish() {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.output, "\r%s\r", strings.Repeat(" ", lineWidth))
}

func (w *Writer) redraw() {
	now := w.now()
	if now.Sub(w.lastPrint) < printInterval {
		return
	}
	elapsed := now.Sub(w.started).Seconds()
	if elapsed < printInterval.Seconds() {
		return
	}
	w.lastPrint = now

	_, _ = fmt.Fprint(w.output, pad(w.line(float64(w.written)/elapsed)))
}

func (w *Writer) line(speed float64) string {
	if w.total <= 0 {
		return fmt.Sprintf("\r   Downloaded: %s (%s/s)", FormatBytes(w.written), FormatBytes(int64(speed)))
	}

	frac := float64(w.written) / float64(w.total)
	if frac > 1 {
		frac = 1
	}
	eta := "--:--"
	if speed > 0 {
		eta = formatETA(float64(w.total-w.written) / speed)
	}

	filled := int(frac * barWidth)
	bar := strings.Repeat("=", filled)
	if filled < barWidth {
		bar += ">" + strings.Repeat(" ", barWidth-filled-1)
	}
	return fmt.Sprintf("\r   [%s] %3.0f%% (%s/%s) %s/s ETA: %s",
		bar, frac*100, FormatBytes(w.written), FormatBytes(w.total), FormatBytes(int64(speed)), eta)
}

func pad(line string) string {
	if len(line) < lineWidth {
		line += strings.Repeat(" ", lineWidth-len(line))
	}
	return line
}

// FormatBytes renders a byte count as B, KB, MB or GB.
func FormatBytes(b int64) string {
	const unit = 1024
	switch {
	case b >= unit*unit*unit:
		return fmt.Sprintf("%.1fGB", float64(b)/(unit*unit*unit))
	case b >= unit*unit:
		return fmt.Sprintf("%.1fMB", float64(b)/(unit*unit))
	case b >= unit:
		return fmt.Sprintf("%.1fKB", float64(b)/unit)
	default:
		return fmt.Sprintf("%dB", b)
	}
}

func formatETA(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	s := int(seconds)
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, (s%3600)/60, s%60)
	}
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
