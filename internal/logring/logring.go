// Package logring keeps a bounded in-memory window of recent log entries so
// the daemon can serve its own logs over the API without touching disk.
package logring

import (
	"log/slog"
	"sync"
	"time"
)

// Entry is one captured log record.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Ring holds the most recent entries, dropping the oldest past capacity.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	cap     int
}

// New creates a ring holding up to capacity entries.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Ring{cap: capacity}
}

// Append records an entry, evicting the oldest when full.
func (r *Ring) Append(e Entry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	if len(r.entries) > r.cap {
		// Trim in one move; keeps append amortized cheap.
		r.entries = r.entries[len(r.entries)-r.cap:]
	}
	r.mu.Unlock()
}

// Entries returns captured entries oldest first, filtered by time and level.
// A zero since means no time filter; limit <= 0 means no cap. With a limit,
// the newest matching entries win.
func (r *Ring) Entries(since time.Time, minLevel slog.Level, limit int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Entry
	for _, e := range r.entries {
		if !since.IsZero() && e.Time.Before(since) {
			continue
		}
		if levelOf(e.Level) < minLevel {
			continue
		}
		out = append(out, e)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Len returns the number of held entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func levelOf(s string) slog.Level {
	switch s {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
