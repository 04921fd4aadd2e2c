// Package syncer applies extracted standup updates to the tracker. Each
// intent is handled independently: one issue failing never blocks the rest.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/scrumpilot-io/scrumpilot/internal/gitlab"
	"github.com/scrumpilot-io/scrumpilot/pkg/protocol"
)

// ErrNotConfigured means the tracker client is missing a token or project
// and no sync can be attempted.
var ErrNotConfigured = errors.New("syncer: tracker not configured")

// Tracker is the slice of the tracker client the engine needs.
type Tracker interface {
	Configured() bool
	CreateIssueNote(ctx context.Context, issueIID, body string) (*gitlab.Note, error)
	UpdateIssueState(ctx context.Context, issueIID string, transition protocol.StateTransition) error
}

// StatusResolver maps a status token to a tracker state transition.
type StatusResolver interface {
	Resolve(token string) protocol.StateTransition
}

// Engine pushes update intents to the tracker.
type Engine struct {
	tracker  Tracker
	resolver StatusResolver
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine creates a sync engine.
func NewEngine(tracker Tracker, resolver StatusResolver, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{tracker: tracker, resolver: resolver, logger: logger, now: time.Now}
}

// NoteBody formats the tracker comment for an update. The attribution line
// survives in the issue history long after the meeting, so it names both the
// speaker and the system that relayed it.
func NoteBody(speaker, description string) string {
	return fmt.Sprintf("**Update from %s (via ScrumPilot):**\n\n%s", speaker, description)
}

// Apply pushes one intent to the tracker. The comment is posted before the
// state change so the explanation lands before the transition it explains;
// the two sub-operations fail independently. The returned error is non-nil
// only when no sync was attempted at all.
func (e *Engine) Apply(ctx context.Context, intent protocol.UpdateIntent) (protocol.SyncResult, error) {
	result := protocol.SyncResult{IssueID: intent.IssueID, Timestamp: e.now()}

	if !e.tracker.Configured() {
		result.ErrorDetail = ErrNotConfigured.Error()
		return result, ErrNotConfigured
	}

	iid := intent.IssueNumber()
	var failures []string

	if intent.ShouldAddComment {
		body := NoteBody(intent.Speaker, intent.Action)
		if _, err := e.tracker.CreateIssueNote(ctx, iid, body); err != nil {
			e.logger.Warn("comment failed", "issue", intent.IssueID, "error", err)
			failures = append(failures, fmt.Sprintf("comment: %v", err))
		} else {
			result.CommentApplied = true
		}
	}

	if intent.ShouldChangeStatus && intent.TargetStatus != "" {
		transition := e.resolver.Resolve(intent.TargetStatus)
		if err := e.tracker.UpdateIssueState(ctx, iid, transition); err != nil {
			e.logger.Warn("state change failed", "issue", intent.IssueID, "status", intent.TargetStatus, "error", err)
			failures = append(failures, fmt.Sprintf("status: %v", err))
		} else {
			result.StatusApplied = true
		}
	}

	result.Success = len(failures) == 0
	result.Synced = result.Success
	result.ErrorDetail = strings.Join(failures, "; ")
	if result.Success {
		e.logger.Info("intent synced", "issue", intent.IssueID,
			"comment", result.CommentApplied, "status", result.StatusApplied)
	}
	return result, nil
}
