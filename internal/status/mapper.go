// Package status translates the domain status vocabulary spoken in standups
// into tracker-native state transitions, with a short-lived cache of the
// tracker's status set.
package status

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/scrumpilot-io/scrumpilot/internal/gitlab"
	"github.com/scrumpilot-io/scrumpilot/pkg/protocol"
)

// DefaultTTL is how long a fetched status set stays fresh.
const DefaultTTL = 5 * time.Minute

// Source is what the mapper needs from the tracker: a status fetch and a
// stable identity for cache keying.
type Source interface {
	FetchStatuses(ctx context.Context) ([]protocol.StatusDescriptor, error)
	Identity() string
}

// Mapper caches tracker status vocabulary and resolves domain tokens to
// state transitions. Safe for concurrent use; a refresh race means two
// fetches happen and the last writer wins, which is fine at this TTL.
type Mapper struct {
	src    Source
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	statuses []protocol.StatusDescriptor
	fetched  time.Time
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithTTL overrides the cache TTL.
func WithTTL(ttl time.Duration) Option {
	return func(m *Mapper) { m.ttl = ttl }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Mapper) { m.now = now }
}

// NewMapper creates a status mapper over the given tracker source.
func NewMapper(src Source, logger *slog.Logger, opts ...Option) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Mapper{
		src:    src,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: logger,
		cache:  make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Statuses returns the tracker's status set. It never fails and never
// returns an empty set: a fresh cache entry wins, then a live fetch, then
// the last good entry, then the hardcoded defaults.
func (m *Mapper) Statuses(ctx context.Context) []protocol.StatusDescriptor {
	key := m.src.Identity()

	m.mu.RLock()
	entry, ok := m.cache[key]
	m.mu.RUnlock()

	if ok && m.now().Sub(entry.fetched) < m.ttl {
		return entry.statuses
	}

	statuses, err := m.src.FetchStatuses(ctx)
	if err != nil || len(statuses) == 0 {
		if err != nil {
			m.logger.Warn("status fetch failed", "tracker", key, "error", err)
		}
		if ok {
			// Stale beats broken.
			return entry.statuses
		}
		return gitlab.DefaultStatuses()
	}

	m.mu.Lock()
	m.cache[key] = cacheEntry{statuses: statuses, fetched: m.now()}
	m.mu.Unlock()
	return statuses
}

// Invalidate drops all cached entries.
func (m *Mapper) Invalidate() {
	m.mu.Lock()
	m.cache = make(map[string]cacheEntry)
	m.mu.Unlock()
}

// Resolve maps a status token (domain vocabulary or tracker-native state)
// to a state transition. "blocked" keeps the issue open but adds a blocked
// label so it stays distinguishable from active work. Unrecognized tokens
// resolve to reopen: never close an issue on a token the system doesn't
// confidently recognize as done.
func (m *Mapper) Resolve(token string) protocol.StateTransition {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case protocol.StatusCompleted, "done", "finished", "closed", "close":
		return protocol.StateTransition{Event: "close"}
	case protocol.StatusBlocked, "stuck":
		return protocol.StateTransition{Event: "reopen", AddLabels: []string{"blocked"}}
	default:
		// in-progress, opened, and anything else
		return protocol.StateTransition{Event: "reopen"}
	}
}
