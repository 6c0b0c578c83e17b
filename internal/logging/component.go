package logging

import (
	"context"
	"log/slog"
)

// ComponentKey names the subsystem a logger belongs to. Only a value
// bound with Logger.With selects a component level.
const ComponentKey = "component"

// ComponentFilter gates records by the level configured for the
// logger's component, falling back to base. The wrapped handler must
// accept every level the filter may let through.
type ComponentFilter struct {
	next   slog.Handler
	base   slog.Level
	levels map[string]slog.Level
	min    slog.Level
}

// NewComponentFilter wraps next.
func NewComponentFilter(next slog.Handler, base slog.Level, levels map[string]slog.Level) *ComponentFilter {
	return &ComponentFilter{next: next, base: base, levels: levels, min: base}
}

func (h *ComponentFilter) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.min && h.next.Enabled(ctx, level)
}

func (h *ComponentFilter) Handle(ctx context.Context, r slog.Record) error {
	return h.next.Handle(ctx, r)
}

func (h *ComponentFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	min := h.min
	for _, a := range attrs {
		if a.Key != ComponentKey {
			continue
		}
		if l, ok := h.levels[a.Value.String()]; ok {
			min = l
		} else {
			min = h.base
		}
	}
	return &ComponentFilter{next: h.next.WithAttrs(attrs), base: h.base, levels: h.levels, min: min}
}

func (h *ComponentFilter) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ComponentFilter{next: h.next.WithGroup(name), base: h.base, levels: h.levels, min: h.min}
}
