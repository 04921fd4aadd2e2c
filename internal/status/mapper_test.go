package status

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/scrumpilot-io/scrumpilot/pkg/protocol"
)

// fakeSource counts fetches and can be told to fail.
type fakeSource struct {
	identity string
	statuses []protocol.StatusDescriptor
	err      error
	fetches  int
}

func (f *fakeSource) FetchStatuses(_ context.Context) ([]protocol.StatusDescriptor, error) {
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	return f.statuses, nil
}

func (f *fakeSource) Identity() string { return f.identity }

func liveStatuses() []protocol.StatusDescriptor {
	return []protocol.StatusDescriptor{
		{ID: "opened", Name: "In Progress", NativeState: "opened", Color: "blue"},
		{ID: "closed", Name: "Done", NativeState: "closed", Color: "green"},
	}
}

func TestStatuses_CachesWithinTTL(t *testing.T) {
	src := &fakeSource{identity: "https://gitlab.com#42", statuses: liveStatuses()}
	clock := time.Now()
	m := NewMapper(src, nil, WithClock(func() time.Time { return clock }))

	m.Statuses(context.Background())
	m.Statuses(context.Background())
	if src.fetches != 1 {
		t.Errorf("fetches = %d, want 1 (second call should hit cache)", src.fetches)
	}
}

func TestStatuses_RefreshesAfterTTL(t *testing.T) {
	src := &fakeSource{identity: "id", statuses: liveStatuses()}
	clock := time.Now()
	m := NewMapper(src, nil, WithClock(func() time.Time { return clock }))

	m.Statuses(context.Background())
	clock = clock.Add(DefaultTTL + time.Second)
	m.Statuses(context.Background())
	if src.fetches != 2 {
		t.Errorf("fetches = %d, want 2 after TTL expiry", src.fetches)
	}
}

func TestStatuses_FallsBackToLastGood(t *testing.T) {
	src := &fakeSource{identity: "id", statuses: liveStatuses()}
	clock := time.Now()
	m := NewMapper(src, nil, WithClock(func() time.Time { return clock }))

	first := m.Statuses(context.Background())
	clock = clock.Add(DefaultTTL + time.Second)
	src.err = fmt.Errorf("tracker unreachable")

	got := m.Statuses(context.Background())
	if len(got) != len(first) {
		t.Fatalf("expected last good entry, got %d statuses", len(got))
	}
}

func TestStatuses_DefaultsWhenNeverFetched(t *testing.T) {
	src := &fakeSource{identity: "id", err: fmt.Errorf("unreachable")}
	m := NewMapper(src, nil)

	got := m.Statuses(context.Background())
	if len(got) != 2 {
		t.Fatalf("expected 2 default statuses, got %d", len(got))
	}
	if got[0].NativeState != "opened" || got[1].NativeState != "closed" {
		t.Errorf("defaults = %+v", got)
	}
}

func TestInvalidate(t *testing.T) {
	src := &fakeSource{identity: "id", statuses: liveStatuses()}
	m := NewMapper(src, nil)

	m.Statuses(context.Background())
	m.Invalidate()
	m.Statuses(context.Background())
	if src.fetches != 2 {
		t.Errorf("fetches = %d, want 2 after invalidation", src.fetches)
	}
}

func TestResolve(t *testing.T) {
	m := NewMapper(&fakeSource{identity: "id"}, nil)

	cases := []struct {
		token      string
		wantEvent  string
		wantLabels int
	}{
		{"completed", "close", 0},
		{"done", "close", 0},
		{"closed", "close", 0},
		{"in-progress", "reopen", 0},
		{"opened", "reopen", 0},
		{"blocked", "reopen", 1},
		{"Blocked", "reopen", 1},
		{"", "reopen", 0},
		{"something-weird", "reopen", 0},
	}
	for _, tc := range cases {
		got := m.Resolve(tc.token)
		if got.Event != tc.wantEvent {
			t.Errorf("Resolve(%q).Event = %q, want %q", tc.token, got.Event, tc.wantEvent)
		}
		if len(got.AddLabels) != tc.wantLabels {
			t.Errorf("Resolve(%q).AddLabels = %v", tc.token, got.AddLabels)
		}
	}
}
