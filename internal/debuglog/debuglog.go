// Package debuglog keeps the most recent log records in memory for the
// debug console.
package debuglog

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultCapacity is the number of entries kept by New(0).
const DefaultCapacity = 100

// Entry is one captured log record.
type Entry struct {
	Time    time.Time      `json:"timestamp"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"data,omitempty"`
}

// Buffer is a fixed-size ring of log entries. It is safe for concurrent use.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

// New returns a buffer holding at most capacity entries.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{entries: make([]Entry, capacity)}
}

// Add stores e, evicting the oldest entry when the buffer is full.
func (b *Buffer) Add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.next] = e
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
}

// Entries returns the stored entries, newest first.
func (b *Buffer) Entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.next
	if b.full {
		n = len(b.entries)
	}
	out := make([]Entry, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, b.entries[(b.next-i+len(b.entries))%len(b.entries)])
	}
	return out
}

// Clear drops every entry.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.entries)
	b.next = 0
	b.full = false
}

// Handler is a slog.Handler that records into a Buffer and forwards every
// record to an optional next handler.
type Handler struct {
	buf   *Buffer
	next  slog.Handler
	level slog.Leveler
	attrs []slog.Attr
	group string
}

// NewHandler returns a handler capturing records at or above level into buf.
// next may be nil.
func NewHandler(buf *Buffer, next slog.Handler, level slog.Leveler) *Handler {
	if level == nil {
		level = slog.LevelDebug
	}
	return &Handler{buf: buf, next: next, level: level}
}

func (h *Handler) Enabled(ctx context.Context, l slog.Level) bool {
	if l >= h.level.Level() {
		return true
	}
	return h.next != nil && h.next.Enabled(ctx, l)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.level.Level() {
		e := Entry{Time: r.Time, Level: r.Level.String(), Message: r.Message}
		if n := len(h.attrs) + r.NumAttrs(); n > 0 {
			e.Attrs = make(map[string]any, n)
			for _, a := range h.attrs {
				put(e.Attrs, "", a)
			}
			r.Attrs(func(a slog.Attr) bool {
				put(e.Attrs, h.group, a)
				return true
			})
		}
		h.buf.Add(e)
	}
	if h.next != nil && h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

func put(m map[string]any, group string, a slog.Attr) {
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	v := a.Value.Resolve()
	if err, ok := v.Any().(error); ok {
		m[key] = err.Error()
		return
	}
	m[key] = v.Any()
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	h2.attrs = append([]slog.Attr{}, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		h2.attrs = append(h2.attrs, a)
	}
	if h.next != nil {
		h2.next = h.next.WithAttrs(attrs)
	}
	return &h2
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.group = name
	if h.group != "" {
		h2.group = h.group + "." + name
	}
	if h.next != nil {
		h2.next = h.next.WithGroup(name)
	}
	return &h2
}
