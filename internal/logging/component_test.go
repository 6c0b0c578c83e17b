package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComponentFilter(t *testing.T) {
	var buf bytes.Buffer
	levels := map[string]slog.Level{"conn": slog.LevelDebug, "natsio": slog.LevelError}
	h := NewComponentFilter(NewTextHandler(&buf, slog.LevelDebug), slog.LevelInfo, levels)
	ctx := context.Background()

	assert.False(t, h.Enabled(ctx, slog.LevelDebug))
	assert.True(t, h.Enabled(ctx, slog.LevelInfo))

	conn := h.WithAttrs([]slog.Attr{slog.String(ComponentKey, "conn")})
	assert.True(t, conn.Enabled(ctx, slog.LevelDebug))

	// A later component attribute replaces the earlier one
	nats := conn.WithAttrs([]slog.Attr{slog.String(ComponentKey, "natsio")})
	assert.False(t, nats.Enabled(ctx, slog.LevelWarn))
	assert.True(t, nats.Enabled(ctx, slog.LevelError))

	other := nats.WithAttrs([]slog.Attr{slog.String(ComponentKey, "cli")})
	assert.False(t, other.Enabled(ctx, slog.LevelDebug))
	assert.True(t, other.Enabled(ctx, slog.LevelInfo))

	grouped := conn.WithGroup("req")
	assert.True(t, grouped.Enabled(ctx, slog.LevelDebug))
	assert.Same(t, conn, conn.WithGroup(""))
}

func TestComponentFilter_InnerLevelStillApplies(t *testing.T) {
	levels := map[string]slog.Level{"conn": slog.LevelDebug}
	h := NewComponentFilter(NewTextHandler(&bytes.Buffer{}, slog.LevelWarn), slog.LevelInfo, levels)
	conn := h.WithAttrs([]slog.Attr{slog.String(ComponentKey, "conn")})

	assert.False(t, conn.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, conn.Enabled(context.Background(), slog.LevelWarn))
}
