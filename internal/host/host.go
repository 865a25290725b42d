// Package host adapts the CI runner's facilities: input parameters, PATH
// registration, step outputs and annotations.
//
// Inside GitHub Actions (GITHUB_ACTIONS=true) everything goes through
// workflow commands and the GITHUB_PATH/GITHUB_OUTPUT files. Outside a
// runner the same calls degrade to plain terminal output so the CLI stays
// usable on a workstation.
package host

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	githubactions "github.com/sethvargo/go-githubactions"
)

// Host is the runner facility for one process.
type Host struct {
	action    *githubactions.Action
	getenv    func(string) string
	out       io.Writer
	inActions bool
}

// Option configures a Host.
type Option func(*Host)

// WithGetenv replaces os.Getenv for inputs and file-command locations.
func WithGetenv(fn func(string) string) Option {
	return func(h *Host) {
		h.getenv = fn
	}
}

// WithWriter sets where workflow commands and messages are written
// (default os.Stdout).
func WithWriter(w io.Writer) Option {
	return func(h *Host) {
		h.out = w
	}
}

// New returns the host facility for the current environment.
func New(opts ...Option) *Host {
	h := &Host{getenv: os.Getenv, out: os.Stdout}
	for _, opt := range opts {
		opt(h)
	}
	h.inActions = h.getenv("GITHUB_ACTIONS") == "true"
	h.action = githubactions.New(
		githubactions.WithGetenv(h.getenv),
		githubactions.WithWriter(h.out),
	)
	return h
}

// InActions reports whether the process runs inside a GitHub Actions job.
func (h *Host) InActions() bool {
	return h.inActions
}

// Lookup reads the action input named key. It implements config.Source;
// empty inputs count as unset.
func (h *Host) Lookup(key string) (string, bool) {
	v := strings.TrimSpace(h.action.GetInput(key))
	return v, v != ""
}

// AddPath registers dir for later steps. dir must be an existing directory.
func (h *Host) AddPath(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot add %s to PATH: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("cannot add %s to PATH: %w", dir, errors.New("not a directory"))
	}
	if !h.inActions {
		fmt.Fprintf(h.out, "Add %s to your PATH to use the installed tool\n", dir)
		return nil
	}
	h.action.AddPath(dir)
	return nil
}

// SetOutput sets a step output. Outside Actions it does nothing.
func (h *Host) SetOutput(name, value string) {
	if h.inActions {
		h.action.SetOutput(name, value)
	}
}

// Mask hides secret in later log output.
func (h *Host) Mask(secret string) {
	if h.inActions && secret != "" {
		h.action.AddMask(secret)
	}
}

// Info prints a progress line for the user.
func (h *Host) Info(msg string) {
	h.action.Infof("%s", msg)
}

// Warning reports a non-fatal problem. In Actions it becomes an
// annotation on the job.
func (h *Host) Warning(msg string) {
	h.Warningf("%s", msg)
}

// Fail reports the fatal error for the run.
func (h *Host) Fail(msg string) {
	h.Errorf("%s", msg)
}

// Debugf writes a debug line. Outside Actions debug lines are dropped;
// the CLI logger handles them there.
func (h *Host) Debugf(msg string, args ...any) {
	if h.inActions {
		h.action.Debugf(msg, args...)
	}
}

// Infof writes a plain line.
func (h *Host) Infof(msg string, args ...any) {
	h.action.Infof(msg, args...)
}

// Warningf writes a warning annotation.
func (h *Host) Warningf(msg string, args ...any) {
	if !h.inActions {
		fmt.Fprintf(h.out, "Warning: "+msg+"\n", args...)
		return
	}
	h.action.Warningf(msg, args...)
}

// Errorf writes an error annotation.
func (h *Host) Errorf(msg string, args ...any) {
	if !h.inActions {
		fmt.Fprintf(h.out, "Error: "+msg+"\n", args...)
		return
	}
	h.action.Errorf(msg, args...)
}
