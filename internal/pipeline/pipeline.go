// Package pipeline orchestrates the meeting flow: diarize the transcript,
// extract update intents per speaker, persist the meeting, and optionally
// push the intents to the tracker.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/scrumpilot-io/scrumpilot/internal/transcript"
	"github.com/scrumpilot-io/scrumpilot/pkg/protocol"
)

// Extractor derives intents from transcript text.
type Extractor interface {
	Extract(ctx context.Context, text, speaker string, statuses []protocol.StatusDescriptor) ([]protocol.UpdateIntent, error)
}

// Syncer applies one intent to the tracker.
type Syncer interface {
	Apply(ctx context.Context, intent protocol.UpdateIntent) (protocol.SyncResult, error)
}

// StatusProvider supplies the tracker's status vocabulary.
type StatusProvider interface {
	Statuses(ctx context.Context) []protocol.StatusDescriptor
}

// Store is the slice of persistence the pipeline needs.
type Store interface {
	CreateMeeting(m *protocol.Meeting) error
	CreateUpdate(u *protocol.UpdateRecord) error
	MarkSynced(updateID string) error
}

// Pipeline wires extraction, persistence and sync together.
type Pipeline struct {
	extractor Extractor
	syncer    Syncer
	statuses  StatusProvider
	store     Store
	logger    *slog.Logger
}

// New creates a pipeline. syncer may be nil when no tracker is configured;
// processing then stops after persistence.
func New(extractor Extractor, syncer Syncer, statuses StatusProvider, store Store, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		extractor: extractor,
		syncer:    syncer,
		statuses:  statuses,
		store:     store,
		logger:    logger,
	}
}

// ProcessResult is the outcome of one transcript run.
type ProcessResult struct {
	Meeting protocol.Meeting        `json:"meeting"`
	Intents []protocol.UpdateIntent `json:"updates"`
	Synced  []protocol.SyncResult   `json:"syncResults,omitempty"`
}

// ProcessTranscript runs the full flow for one transcript. Diarized speaker
// segments are extracted separately so attribution survives; an undiarized
// transcript goes through as a single anonymous block. With autoSync set,
// intents are pushed to the tracker concurrently after persistence.
func (p *Pipeline) ProcessTranscript(ctx context.Context, projectID, text string, autoSync bool) (*ProcessResult, error) {
	statuses := p.statuses.Statuses(ctx)
	segments := transcript.Diarize(text)

	var intents []protocol.UpdateIntent
	if len(segments) == 0 {
		extracted, err := p.extractor.Extract(ctx, text, "", statuses)
		if err != nil {
			return nil, fmt.Errorf("pipeline: extract: %w", err)
		}
		intents = extracted
	} else {
		for _, seg := range segments {
			extracted, err := p.extractor.Extract(ctx, seg.Text(), seg.Speaker, statuses)
			if err != nil {
				return nil, fmt.Errorf("pipeline: extract for %s: %w", seg.Speaker, err)
			}
			intents = append(intents, extracted...)
		}
	}

	meeting := protocol.Meeting{
		ProjectID:     projectID,
		AttendeeCount: transcript.AttendeeCount(text),
		Transcript:    text,
		Summary:       transcript.Summary(text),
	}
	if err := p.store.CreateMeeting(&meeting); err != nil {
		return nil, fmt.Errorf("pipeline: persist meeting: %w", err)
	}

	records := make(map[string]string, len(intents)) // intent id -> record id
	for _, in := range intents {
		record := protocol.UpdateRecord{
			MeetingID: meeting.ID,
			Speaker:   in.Speaker,
			IssueID:   in.IssueID,
		}
		// Persist only what the intent actually requested, so a sweeper
		// retry cannot issue a sub-operation nobody asked for.
		if in.ShouldChangeStatus {
			record.Status = in.TargetStatus
		}
		if in.ShouldAddComment {
			record.Comment = in.Action
		}
		if err := p.store.CreateUpdate(&record); err != nil {
			return nil, fmt.Errorf("pipeline: persist update: %w", err)
		}
		records[in.ID] = record.ID
	}

	result := &ProcessResult{Meeting: meeting, Intents: intents}
	if autoSync && p.syncer != nil {
		// syncBatch returns one result per actionable intent, in order, so
		// results pair with intents by position. Two intents for the same
		// issue stay distinct: only the one that succeeded is marked.
		act := actionable(intents)
		result.Synced = p.syncBatch(ctx, act)
		for i, sr := range result.Synced {
			if !sr.Success {
				continue
			}
			if id, ok := records[act[i].ID]; ok {
				if err := p.store.MarkSynced(id); err != nil {
					p.logger.Warn("mark synced failed", "update", id, "error", err)
				}
			}
		}
	}

	p.logger.Info("transcript processed", "meeting", meeting.ID,
		"intents", len(intents), "synced", len(result.Synced))
	return result, nil
}

// SyncIntents pushes actionable intents to the tracker concurrently, one
// goroutine per intent, and returns results in intent order.
func (p *Pipeline) SyncIntents(ctx context.Context, intents []protocol.UpdateIntent) []protocol.SyncResult {
	return p.syncBatch(ctx, actionable(intents))
}

func actionable(intents []protocol.UpdateIntent) []protocol.UpdateIntent {
	out := make([]protocol.UpdateIntent, 0, len(intents))
	for _, in := range intents {
		if in.Actionable() {
			out = append(out, in)
		}
	}
	return out
}

// syncBatch applies the given intents concurrently, one goroutine each.
// results[i] is the outcome of intents[i].
func (p *Pipeline) syncBatch(ctx context.Context, intents []protocol.UpdateIntent) []protocol.SyncResult {
	results := make([]protocol.SyncResult, len(intents))
	var wg sync.WaitGroup
	for i, in := range intents {
		wg.Add(1)
		go func(i int, in protocol.UpdateIntent) {
			defer wg.Done()
			result, err := p.syncer.Apply(ctx, in)
			if err != nil {
				result.IssueID = in.IssueID
				result.ErrorDetail = err.Error()
			}
			results[i] = result
		}(i, in)
	}
	wg.Wait()
	return results
}
