package logging

import (
	"context"
	"errors"
	"log/slog"
)

// Route sends records to Handler. A non-nil Min drops records below it
// before Handler is consulted.
type Route struct {
	Handler slog.Handler
	Min     slog.Leveler
}

func (r Route) enabled(ctx context.Context, level slog.Level) bool {
	if r.Min != nil && level < r.Min.Level() {
		return false
	}
	return r.Handler.Enabled(ctx, level)
}

// Fanout delivers each record to every route accepting its level. A
// failing route does not stop the others; their errors are joined.
type Fanout struct {
	routes []Route
}

// NewFanout creates a handler over routes. With no routes every record
// is discarded.
func NewFanout(routes ...Route) *Fanout {
	return &Fanout{routes: routes}
}

// Enabled reports whether any route accepts level.
func (f *Fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, r := range f.routes {
		if r.enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle passes a clone of the record to each accepting route.
func (f *Fanout) Handle(ctx context.Context, rec slog.Record) error {
	var errs []error
	for _, r := range f.routes {
		if !r.enabled(ctx, rec.Level) {
			continue
		}
		if err := r.Handler.Handle(ctx, rec.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f *Fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f *Fanout) derive(fn func(slog.Handler) slog.Handler) *Fanout {
	routes := make([]Route, len(f.routes))
	for i, r := range f.routes {
		routes[i] = Route{Handler: fn(r.Handler), Min: r.Min}
	}
	return &Fanout{routes: routes}
}
