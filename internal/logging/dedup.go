package logging

import (
	"context"
	"encoding/binary"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DefaultDedupWindow is how long repeats of a record are folded together.
const DefaultDedupWindow = 5 * time.Second

// maxDedupEntries bounds the seen table. Expired windows are swept when
// it fills; past that, new records pass through untracked.
const maxDedupEntries = 1024

// DedupHandler forwards the first occurrence of a record and folds
// identical records inside the same window into one summary carrying a
// repeated_count attribute. Level, message and attributes identify a
// record; the timestamp does not. A burst of slow consumer warnings
// thus costs two lines instead of thousands.
//
// Summaries are written when the record recurs after its window, when
// the table is swept, or on Close.
type DedupHandler struct {
	next  slog.Handler
	scope uint64
	state *dedupState
}

type dedupState struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	seen   map[uint64]*dedupEntry
}

type dedupEntry struct {
	start      time.Time
	suppressed int
	last       slog.Record
	next       slog.Handler
}

// NewDedupHandler wraps next. A non-positive window uses DefaultDedupWindow.
func NewDedupHandler(next slog.Handler, window time.Duration) *DedupHandler {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &DedupHandler{
		next: next,
		state: &dedupState{
			window: window,
			now:    time.Now,
			seen:   make(map[uint64]*dedupEntry),
		},
	}
}

func (h *DedupHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *DedupHandler) Handle(ctx context.Context, r slog.Record) error {
	key := h.hash(r)
	s := h.state
	now := s.now()

	s.mu.Lock()
	e, ok := s.seen[key]
	if ok && now.Sub(e.start) < s.window {
		e.suppressed++
		e.last = r.Clone()
		s.mu.Unlock()
		return nil
	}
	var expired []*dedupEntry
	if ok {
		expired = append(expired, e)
		delete(s.seen, key)
	} else if len(s.seen) >= maxDedupEntries {
		expired = s.sweepLocked(now)
	}
	if len(s.seen) < maxDedupEntries {
		s.seen[key] = &dedupEntry{start: now, next: h.next}
	}
	s.mu.Unlock()

	emitSummaries(ctx, expired)
	return h.next.Handle(ctx, r)
}

func (h *DedupHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	d := h.digest()
	for _, a := range attrs {
		writeAttr(d, a)
	}
	return &DedupHandler{next: h.next.WithAttrs(attrs), scope: d.Sum64(), state: h.state}
}

func (h *DedupHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	d := h.digest()
	_, _ = d.WriteString("group:")
	_, _ = d.WriteString(name)
	return &DedupHandler{next: h.next.WithGroup(name), scope: d.Sum64(), state: h.state}
}

// Flush writes the summaries of every open window and forgets them.
func (h *DedupHandler) Flush() {
	s := h.state
	s.mu.Lock()
	entries := make([]*dedupEntry, 0, len(s.seen))
	for _, e := range s.seen {
		entries = append(entries, e)
	}
	s.seen = make(map[uint64]*dedupEntry)
	s.mu.Unlock()

	emitSummaries(context.Background(), entries)
}

// Close flushes pending summaries. The handler stays usable.
func (h *DedupHandler) Close() error {
	h.Flush()
	return nil
}

func (s *dedupState) sweepLocked(now time.Time) []*dedupEntry {
	var out []*dedupEntry
	for k, e := range s.seen {
		if now.Sub(e.start) >= s.window {
			out = append(out, e)
			delete(s.seen, k)
		}
	}
	return out
}

func emitSummaries(ctx context.Context, entries []*dedupEntry) {
	for _, e := range entries {
		if e.suppressed == 0 {
			continue
		}
		r := e.last
		r.AddAttrs(slog.Int("repeated_count", e.suppressed))
		_ = e.next.Handle(ctx, r)
	}
}

func (h *DedupHandler) digest() *xxhash.Digest {
	d := xxhash.New()
	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], h.scope)
	_, _ = d.Write(seed[:])
	return d
}

func (h *DedupHandler) hash(r slog.Record) uint64 {
	d := h.digest()
	_, _ = d.WriteString(r.Level.String())
	_, _ = d.WriteString("|")
	_, _ = d.WriteString(r.Message)
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(d, a)
		return true
	})
	return d.Sum64()
}

func writeAttr(d *xxhash.Digest, a slog.Attr) {
	_, _ = d.WriteString("|")
	_, _ = d.WriteString(a.Key)
	_, _ = d.WriteString("=")
	_, _ = d.WriteString(a.Value.Resolve().String())
}
