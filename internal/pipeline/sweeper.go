package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/scrumpilot-io/scrumpilot/pkg/protocol"
)

// SweeperStore is the persistence slice the sweeper needs.
type SweeperStore interface {
	ListUnsynced() ([]*protocol.UpdateRecord, error)
	MarkSynced(updateID string) error
}

// Sweeper periodically retries updates that were persisted but never made it
// to the tracker, on a cron schedule.
type Sweeper struct {
	store  SweeperStore
	syncer Syncer
	cron   *cron.Cron
	logger *slog.Logger
}

// NewSweeper creates a sweeper over the given store and syncer.
func NewSweeper(store SweeperStore, syncer Syncer, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: store, syncer: syncer, cron: cron.New(), logger: logger}
}

// Start registers the schedule and begins sweeping. Blocks until the context
// is cancelled. The schedule is a standard cron expression (5 fields) or a
// predefined schedule like @every 15m.
func (s *Sweeper) Start(ctx context.Context, schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.Sweep(ctx); err != nil {
			s.logger.Warn("sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("sweeper: invalid schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	s.logger.Info("sweeper started", "schedule", schedule)

	<-ctx.Done()
	s.cron.Stop()
	s.logger.Info("sweeper stopped")
	return ctx.Err()
}

// Sweep retries every unsynced update once. A record is marked synced only
// when its retry fully succeeded; partial failures stay queued for the next
// sweep.
func (s *Sweeper) Sweep(ctx context.Context) error {
	pending, err := s.store.ListUnsynced()
	if err != nil {
		return fmt.Errorf("sweeper: list unsynced: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	s.logger.Info("sweeping unsynced updates", "count", len(pending))
	for _, u := range pending {
		intent := protocol.UpdateIntent{
			ID:               u.ID,
			Speaker:          u.Speaker,
			IssueID:          u.IssueID,
			Action:           u.Comment,
			TargetStatus:     u.Status,
			ShouldAddComment: u.Comment != "",
		}
		intent.ShouldChangeStatus = u.Status != ""

		result, err := s.syncer.Apply(ctx, intent)
		if err != nil {
			// Tracker unconfigured; nothing else will succeed either.
			return fmt.Errorf("sweeper: apply: %w", err)
		}
		if !result.Success {
			s.logger.Warn("retry failed", "update", u.ID, "issue", u.IssueID, "detail", result.ErrorDetail)
			continue
		}
		if err := s.store.MarkSynced(u.ID); err != nil {
			s.logger.Warn("mark synced failed", "update", u.ID, "error", err)
		}
	}
	return nil
}
