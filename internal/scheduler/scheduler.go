// Package scheduler implements the reminder-series engine: cadence
// computation, schedule lifecycle, and the due-message sweep that delivers
// reminders through the chat layer.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"sagechat/internal/types"
)

// ScheduleStore abstracts the scheduled_messages persistence the scheduler
// needs. Implemented by db.ScheduleRepository; using an interface allows
// clean testing without database dependencies.
type ScheduleStore interface {
	GetActiveByUser(ctx context.Context, userID string) (*types.ScheduledMessage, error)
	Create(ctx context.Context, m *types.ScheduledMessage) error
	// Advance records a successful delivery. The expectedCount parameter is
	// an optimistic version check: false means a concurrent sweep already
	// advanced the row.
	Advance(ctx context.Context, id string, expectedCount int, sentAt, nextAt time.Time) (bool, error)
	Deactivate(ctx context.Context, userID string) error
	UpdateContent(ctx context.Context, userID string, content string) (bool, error)
	ListDue(ctx context.Context, now time.Time) ([]types.ScheduledMessage, error)
	ListActive(ctx context.Context) ([]types.ScheduledMessage, error)
	CountAll(ctx context.Context) (int, error)
	CountActive(ctx context.Context) (int, error)
	CountSentBetween(ctx context.Context, start, end time.Time) (int, error)
	CountUpcomingBetween(ctx context.Context, start, end time.Time) (int, error)
}

// Deliverer abstracts the chat delivery boundary.
type Deliverer interface {
	Deliver(ctx context.Context, senderID, recipientID, content string, messageType types.MessageType) error
}

// Scheduler owns the reminder-series lifecycle and the due-message sweep.
type Scheduler struct {
	store     ScheduleStore
	deliverer Deliverer
	logger    *slog.Logger
	now       func() time.Time
}

// Config holds the dependencies for creating a Scheduler.
type Config struct {
	Store     ScheduleStore
	Deliverer Deliverer
	Logger    *slog.Logger

	// Now overrides the clock; nil means time.Now. Used by tests.
	Now func() time.Time
}

// New creates a Scheduler with the given configuration.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Scheduler{
		store:     cfg.Store,
		deliverer: cfg.Deliverer,
		logger:    logger,
		now:       now,
	}
}

// CreateSchedule starts a reminder series for a user and immediately
// attempts the first delivery.
//
// Creation fails with a conflict error when the user already has an active
// series. The row is inserted due-now (next_scheduled_at = now) before the
// first send, so a failed first delivery leaves it eligible for the next
// sweep; delivery failure here is logged and swallowed, never returned.
// Returns the new row's ID regardless of first-delivery outcome.
func (s *Scheduler) CreateSchedule(ctx context.Context, userID, adminID, customMessage string) (string, error) {
	existing, err := s.store.GetActiveByUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", types.NewAppError(
			types.ErrCodeConflictScheduleActive,
			"user already has an active scheduled message series",
			nil,
		)
	}

	start := s.now()
	content := customMessage
	if content == "" {
		content = types.DefaultReminderMessage
	}

	m := &types.ScheduledMessage{
		UserID:            userID,
		AdminID:           adminID,
		MessageContent:    content,
		ScheduleStartDate: start,
		MessageCount:      0,
		NextScheduledAt:   start,
		IsActive:          true,
	}
	if err := s.store.Create(ctx, m); err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "schedule created",
		"schedule_id", m.ID,
		"user_id", userID,
		"admin_id", adminID,
	)

	if err := s.deliverer.Deliver(ctx, adminID, userID, content, types.MessageTypeScheduledReminder); err != nil {
		// Row stays due-now; the next sweep retries the first send.
		s.logger.ErrorContext(ctx, "first delivery failed, schedule remains due",
			"schedule_id", m.ID,
			"user_id", userID,
			"error", err,
		)
		return m.ID, nil
	}

	sentAt := s.now()
	if _, err := s.store.Advance(ctx, m.ID, 0, sentAt, NextMessageDate(start, 1)); err != nil {
		// The first message went out but the row did not move. The next
		// sweep will re-send; see the duplicate-send note on Sweep.
		s.logger.ErrorContext(ctx, "failed to advance schedule after first delivery",
			"schedule_id", m.ID,
			"user_id", userID,
			"error", err,
		)
	}

	return m.ID, nil
}

// Deactivate turns off the user's active series. Terminal: restarting
// requires creating a new series. A user without an active series is a no-op.
func (s *Scheduler) Deactivate(ctx context.Context, userID string) error {
	if err := s.store.Deactivate(ctx, userID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "schedule deactivated", "user_id", userID)
	return nil
}

// UpdateContent changes the message body of the user's active series
// without affecting its timing. Returns a not-found error when the user has
// no active series.
func (s *Scheduler) UpdateContent(ctx context.Context, userID, content string) error {
	updated, err := s.store.UpdateContent(ctx, userID, content)
	if err != nil {
		return err
	}
	if !updated {
		return types.NewAppError(
			types.ErrCodeNotFoundSchedule,
			"user has no active scheduled message series",
			nil,
		)
	}
	return nil
}

// ActiveScheduleFor returns the user's active series, or nil when none
// exists.
func (s *Scheduler) ActiveScheduleFor(ctx context.Context, userID string) (*types.ScheduledMessage, error) {
	return s.store.GetActiveByUser(ctx, userID)
}

// ListActiveSchedules returns all active series ordered by next due time.
func (s *Scheduler) ListActiveSchedules(ctx context.Context) ([]types.ScheduledMessage, error) {
	return s.store.ListActive(ctx)
}

// Stats aggregates dashboard counters. The "today" windows span local
// midnight to midnight; the four counts run concurrently.
func (s *Scheduler) Stats(ctx context.Context) (types.ScheduleStats, error) {
	now := s.now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	endOfDay := startOfDay.Add(day - time.Nanosecond)

	var stats types.ScheduleStats
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := s.store.CountAll(gctx)
		stats.Total = n
		return err
	})
	g.Go(func() error {
		n, err := s.store.CountActive(gctx)
		stats.Active = n
		return err
	})
	g.Go(func() error {
		n, err := s.store.CountSentBetween(gctx, startOfDay, endOfDay)
		stats.MessagesSentToday = n
		return err
	})
	g.Go(func() error {
		n, err := s.store.CountUpcomingBetween(gctx, startOfDay, endOfDay)
		stats.UpcomingToday = n
		return err
	})

	if err := g.Wait(); err != nil {
		return types.ScheduleStats{}, err
	}
	return stats, nil
}
