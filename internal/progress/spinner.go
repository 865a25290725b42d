package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

var spinnerFrames = []string{"|", "/", "-", "\\"}

const spinnerInterval = 100 * time.Millisecond

// Spinner animates a status message while a long step (clone, build) runs.
// Without a terminal it prints the message once.
type Spinner struct {
	mu      sync.Mutex
	output  io.Writer
	message string
	tty     bool
	running bool
	done    chan struct{}
	exited  chan struct{}
}

// NewSpinner writes to output, or os.Stderr when output is nil.
func NewSpinner(output io.Writer) *Spinner {
	if output == nil {
		output = os.Stderr
	}
	return &Spinner{output: output, tty: Enabled()}
}

// Start shows message. Calling Start on a running spinner only updates
// the message.
func (s *Spinner) Start(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.message = message
	if s.running {
		return
	}
	if !s.tty {
		fmt.Fprintf(s.output, "%s\n", message)
		return
	}
	s.running = true
	s.done = make(chan struct{})
	s.exited = make(chan struct{})
	go s.animate(s.done, s.exited)
}

// SetMessage changes the text shown next to the spinner.
func (s *Spinner) SetMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// Stop halts the animation and clears the line. It is safe to call more
// than once.
func (s *Spinner) Stop() { s.stop("") }

// StopWithMessage halts the animation and prints a final line.
func (s *Spinner) StopWithMessage(message string) { s.stop(message) }

func (s *Spinner) stop(final string) {
	s.mu.Lock()
	running := s.running
	s.running = false
	done, exited := s.done, s.exited
	s.mu.Unlock()

	if running {
		close(done)
		<-exited
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if running {
		fmt.Fprintf(s.output, "\r%s\r", strings.Repeat(" ", lineWidth))
	}
	if final != "" {
		fmt.Fprintf(s.output, "%s\n", final)
	}
}

func (s *Spinner) animate(done <-chan struct{}, exited chan<- struct{}) {
	defer close(exited)

	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			fmt.Fprint(s.output, pad(fmt.Sprintf("\r%s %s", spinnerFrames[frame%len(spinnerFrames)], s.message)))
			s.mu.Unlock()
		}
	}
}
