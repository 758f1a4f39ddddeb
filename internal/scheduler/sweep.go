package scheduler

import (
	"context"
	"fmt"

	"sagechat/internal/types"
)

// ProcessDueMessages delivers every active schedule whose next_scheduled_at
// is at or before now, advancing each row on success.
//
// Rows are processed independently in ascending due order: one row's failure
// is recorded in the result's Errors and never aborts the sweep. Processed
// counts only rows that were delivered and advanced by this invocation.
//
// A failure of the initial due query aborts the whole sweep and is returned
// as an error alongside a Success=false result.
//
// Idempotency: a row advanced by a prior sweep no longer matches the due
// predicate, so back-to-back sweeps with no time elapsed process it once.
// Two sweeps racing on the same still-due row are serialized by the
// optimistic version check in Advance: the loser's delivery may still have
// gone out (delivered-then-advance is not atomic), but its advancement is
// skipped rather than double-counting the row.
func (s *Scheduler) ProcessDueMessages(ctx context.Context) (types.SweepResult, error) {
	now := s.now()

	due, err := s.store.ListDue(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "due query failed, aborting sweep", "error", err)
		return types.SweepResult{Success: false}, err
	}

	if len(due) == 0 {
		return types.SweepResult{Success: true, Processed: 0, Total: 0}, nil
	}

	s.logger.InfoContext(ctx, "processing due messages",
		"due_count", len(due),
		"sweep_time", now,
	)

	result := types.SweepResult{Success: true, Total: len(due)}

	for i := range due {
		row := &due[i]

		advanced, err := s.processDueRow(ctx, row)
		if err != nil {
			msg := fmt.Sprintf("failed to process message for user %s: %v", row.UserID, err)
			s.logger.ErrorContext(ctx, "due row failed",
				"schedule_id", row.ID,
				"user_id", row.UserID,
				"error", err,
			)
			result.Errors = append(result.Errors, msg)
			continue
		}
		if !advanced {
			// A concurrent sweep handled this row; neither a success nor a
			// failure of this invocation.
			continue
		}

		result.Processed++
	}

	s.logger.InfoContext(ctx, "sweep complete",
		"processed", result.Processed,
		"total", result.Total,
		"error_count", len(result.Errors),
	)

	return result, nil
}

// processDueRow delivers one due row and advances it. Delivery and
// advancement are strictly sequential: a crash between the two leaves the
// row under-advanced and still due, which the next sweep repairs at the cost
// of a possible duplicate send.
//
// Returns (false, nil) when a concurrent sweep advanced the row first.
func (s *Scheduler) processDueRow(ctx context.Context, row *types.ScheduledMessage) (bool, error) {
	if err := s.deliverer.Deliver(ctx, row.AdminID, row.UserID, row.MessageContent, types.MessageTypeScheduledReminder); err != nil {
		return false, err
	}

	sentAt := s.now()
	newCount := row.MessageCount + 1
	nextAt := NextMessageDate(row.ScheduleStartDate, newCount)

	advanced, err := s.store.Advance(ctx, row.ID, row.MessageCount, sentAt, nextAt)
	if err != nil {
		return false, err
	}
	if !advanced {
		// A concurrent sweep won the race after our delivery; the recipient
		// may see a duplicate, but the schedule state is consistent.
		s.logger.WarnContext(ctx, "row already advanced by concurrent sweep",
			"schedule_id", row.ID,
			"user_id", row.UserID,
		)
		return false, nil
	}

	s.logger.InfoContext(ctx, "scheduled message sent",
		"schedule_id", row.ID,
		"user_id", row.UserID,
		"message_count", newCount,
		"next_scheduled_at", nextAt,
	)

	return true, nil
}
