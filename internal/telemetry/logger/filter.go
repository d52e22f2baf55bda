package logger

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
)

const componentKey = "component"

// componentSet is nil when every component is enabled.
type componentSet map[string]struct{}

var enabledComponents atomic.Pointer[componentSet]

// SetComponents restricts non-error output to a comma-separated list of
// components, e.g. "core,persistence". Empty or "*" enables all.
func SetComponents(list string) {
	set := componentSet{}
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "*" {
			enabledComponents.Store(nil)
			return
		}
		if name != "" {
			set[name] = struct{}{}
		}
	}
	if len(set) == 0 {
		enabledComponents.Store(nil)
		return
	}
	enabledComponents.Store(&set)
}

// Components returns the enabled components, or "*".
func Components() string {
	set := enabledComponents.Load()
	if set == nil {
		return "*"
	}
	names := make([]string, 0, len(*set))
	for name := range *set {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func componentEnabled(name string) bool {
	set := enabledComponents.Load()
	if set == nil || name == "" {
		return true
	}
	_, ok := (*set)[name]
	return ok
}

// componentHandler drops records below error level whose component is
// filtered out. The component comes from With, so the check is a map
// lookup per record.
type componentHandler struct {
	next      slog.Handler
	component string
}

func (h *componentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level < slog.LevelError && !componentEnabled(h.component) {
		return false
	}
	return h.next.Enabled(ctx, level)
}

func (h *componentHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.next.Handle(ctx, r)
}

func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	component := h.component
	for _, a := range attrs {
		if a.Key == componentKey {
			component = a.Value.String()
		}
	}
	return &componentHandler{next: h.next.WithAttrs(attrs), component: component}
}

func (h *componentHandler) WithGroup(name string) slog.Handler {
	return &componentHandler{next: h.next.WithGroup(name), component: h.component}
}
