package milestone

import (
	"context"
	"log/slog"
	"time"

	"sagechat/internal/types"
)

// markDayFormat is the calendar-day layout stored in the mark store and
// compared against the current day.
const markDayFormat = "2006-01-02"

// AdminResolver resolves the identity milestone messages are sent on behalf
// of. Implemented by db.UserRepository.
type AdminResolver interface {
	FirstAdminID(ctx context.Context) (string, error)
}

// Deliverer abstracts the chat delivery boundary, shared with the scheduler.
type Deliverer interface {
	Deliver(ctx context.Context, senderID, recipientID, content string, messageType types.MessageType) error
}

// Notifier checks activation milestones on session establishment and sends
// follow-up messages. Every operation is best-effort: the notifier runs
// inline during login and must never block app usage, so failures are logged
// and absorbed.
type Notifier struct {
	admins    AdminResolver
	deliverer Deliverer
	marks     MarkStore
	logger    *slog.Logger
	now       func() time.Time
}

// NotifierConfig holds the dependencies for creating a Notifier.
type NotifierConfig struct {
	Admins    AdminResolver
	Deliverer Deliverer
	Marks     MarkStore
	Logger    *slog.Logger

	// Now overrides the clock; nil means time.Now. Used by tests.
	Now func() time.Time
}

// NewNotifier creates a Notifier with the given configuration.
func NewNotifier(cfg NotifierConfig) *Notifier {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Notifier{
		admins:    cfg.Admins,
		deliverer: cfg.Deliverer,
		marks:     cfg.Marks,
		logger:    logger,
		now:       now,
	}
}

// CheckAndSend sends the user's milestone follow-up if one is due and none
// has gone out today. It never returns an error and never panics outward;
// any failure along the way is logged and swallowed.
func (n *Notifier) CheckAndSend(ctx context.Context, userID string, activation *time.Time) {
	now := n.now()

	if !ShouldSend(activation, now) {
		return
	}

	today := now.Format(markDayFormat)

	lastSent, err := n.marks.LastSent(ctx, userID, *activation)
	if err != nil {
		// Treat an unreadable mark as absent: a duplicate send beats a
		// missed milestone.
		n.logger.ErrorContext(ctx, "failed to read milestone mark",
			"user_id", userID,
			"error", err,
		)
	}
	if lastSent == today {
		return
	}

	adminID, err := n.admins.FirstAdminID(ctx)
	if err != nil {
		n.logger.ErrorContext(ctx, "no admin available for milestone message",
			"user_id", userID,
			"error", err,
		)
		return
	}

	msg := MessageFor(*activation, now)
	if err := n.deliverer.Deliver(ctx, adminID, userID, msg, types.MessageTypeActivationFollowUp); err != nil {
		n.logger.ErrorContext(ctx, "milestone delivery failed",
			"user_id", userID,
			"error", err,
		)
		return
	}

	if err := n.marks.SetLastSent(ctx, userID, *activation, today); err != nil {
		n.logger.ErrorContext(ctx, "failed to record milestone mark",
			"user_id", userID,
			"error", err,
		)
		return
	}

	n.logger.InfoContext(ctx, "milestone message sent",
		"user_id", userID,
		"days_since_activation", DaysSince(*activation, now),
	)
}
