package panel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spinpanel/spinpanel/pkg/relay"
)

// DefaultLogCapacity bounds the event log ring.
const DefaultLogCapacity = 500

// Entry is one line of the panel's event log.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
}

// Log is the bounded event log backing the log panel. It is owned by the UI
// goroutine: Append and Entries must only be called there.
type Log struct {
	max     int
	entries []Entry
}

func NewLog(max int) *Log {
	if max <= 0 {
		max = DefaultLogCapacity
	}
	return &Log{max: max}
}

// Append adds a timestamped entry, dropping the oldest when full.
func (l *Log) Append(level slog.Level, message string) {
	l.AppendEntry(Entry{Time: time.Now(), Level: level, Message: message})
}

// AppendEntry adds a prebuilt entry, dropping the oldest when full.
func (l *Log) AppendEntry(e Entry) {
	l.entries = append(l.entries, e)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
}

// Entries returns a copy of the current entries, oldest first.
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of retained entries.
func (l *Log) Len() int { return len(l.entries) }

// Clear drops all entries.
func (l *Log) Clear() { l.entries = nil }

// LogHandler is a slog.Handler that forwards records into the panel's event
// log. Records may originate on any goroutine; the handler hops them onto
// the UI loop through the relay, where the sink appends to the Log. An
// optional next handler receives every record as well, typically a JSON
// handler writing the debug file.
type LogHandler struct {
	relay *relay.Relay
	sink  func(Entry)
	level slog.Leveler
	next  slog.Handler
	attrs []slog.Attr
}

// NewLogHandler builds the handler. sink runs on the UI goroutine. next may
// be nil.
func NewLogHandler(r *relay.Relay, sink func(Entry), level slog.Leveler, next slog.Handler) *LogHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &LogHandler{relay: r, sink: sink, level: level, next: next}
}

// Enabled implements slog.Handler.
func (h *LogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.next != nil && h.next.Enabled(ctx, level) {
		return true
	}
	return level >= h.level.Level()
}

// Handle implements slog.Handler. The record is summarized into a single
// line for the event log.
func (h *LogHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.next != nil && h.next.Enabled(ctx, record.Level) {
		if err := h.next.Handle(ctx, record.Clone()); err != nil {
			return err
		}
	}
	if record.Level < h.level.Level() {
		return nil
	}

	entry := Entry{
		Time:    record.Time,
		Level:   record.Level,
		Message: summarize(record, h.attrs),
	}
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}
	h.relay.Invoke(func() { h.sink(entry) })
	return nil
}

// WithAttrs implements slog.Handler.
func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	if h.next != nil {
		clone.next = h.next.WithAttrs(attrs)
	}
	return &clone
}

// WithGroup implements slog.Handler. Groups are flattened away in the
// one-line summary, so only the next handler needs the real grouping.
func (h *LogHandler) WithGroup(name string) slog.Handler {
	if h.next == nil {
		return h
	}
	clone := *h
	clone.next = h.next.WithGroup(name)
	return &clone
}

// summarize renders "message (k=v, k=v)" the way the log panel displays
// records.
func summarize(record slog.Record, bound []slog.Attr) string {
	var parts []string
	for _, attr := range bound {
		parts = append(parts, attr.String())
	}
	record.Attrs(func(attr slog.Attr) bool {
		parts = append(parts, attr.String())
		return true
	})
	if len(parts) == 0 {
		return record.Message
	}
	return fmt.Sprintf("%s (%s)", record.Message, strings.Join(parts, ", "))
}
