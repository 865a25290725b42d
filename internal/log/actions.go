package log

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Annotator is the subset of the workflow-command API the ActionsHandler
// writes to. *githubactions.Action satisfies it.
type Annotator interface {
	Debugf(msg string, args ...any)
	Infof(msg string, args ...any)
	Warningf(msg string, args ...any)
	Errorf(msg string, args ...any)
}

// ActionsHandler is a slog.Handler that turns records into workflow
// commands: DEBUG becomes ::debug::, WARN becomes ::warning:: and ERROR
// becomes ::error::, so they show up as annotations on the job summary.
type ActionsHandler struct {
	out    Annotator
	level  slog.Leveler
	attrs  []slog.Attr
	prefix string
}

// NewActionsHandler returns a handler writing to out at or above level.
func NewActionsHandler(out Annotator, level slog.Leveler) *ActionsHandler {
	return &ActionsHandler{out: out, level: level}
}

// Enabled reports whether records at level are written.
func (h *ActionsHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle renders the record as "msg key=value ..." and dispatches it by level.
func (h *ActionsHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Message)
	for _, a := range h.attrs {
		writeAttr(&sb, h.prefix, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&sb, h.prefix, a)
		return true
	})
	line := sb.String()

	switch {
	case r.Level >= slog.LevelError:
		h.out.Errorf("%s", line)
	case r.Level >= slog.LevelWarn:
		h.out.Warningf("%s", line)
	case r.Level >= slog.LevelInfo:
		h.out.Infof("%s", line)
	default:
		h.out.Debugf("%s", line)
	}
	return nil
}

// WithAttrs returns a handler that includes attrs on every record.
func (h *ActionsHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

// WithGroup returns a handler that qualifies later attribute keys with name.
func (h *ActionsHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func writeAttr(sb *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(sb, prefix+a.Key+".", ga)
		}
		return
	}
	fmt.Fprintf(sb, " %s%s=%v", prefix, a.Key, a.Value.Any())
}
