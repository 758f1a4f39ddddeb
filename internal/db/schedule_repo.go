package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"sagechat/internal/types"
)

// scheduleColumns is the column list shared by all scheduled_messages reads.
const scheduleColumns = `id, user_id, admin_id, message_content, schedule_start_date,
	 message_count, last_sent_at, next_scheduled_at, is_active, created_at, updated_at`

// ScheduleRepository provides data access for the scheduled_messages table.
// Rows are never hard-deleted; deactivation flips is_active and is terminal.
type ScheduleRepository struct {
	db DBTX
}

// NewScheduleRepository creates a new ScheduleRepository backed by the given
// database connection (pool or transaction).
func NewScheduleRepository(db DBTX) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// GetActiveByUser returns the user's active schedule row, or nil when the
// user has none. The at-most-one-active invariant is enforced at create time,
// so a single-row scan is sufficient.
func (r *ScheduleRepository) GetActiveByUser(ctx context.Context, userID string) (*types.ScheduledMessage, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+scheduleColumns+`
		 FROM scheduled_messages
		 WHERE user_id = $1 AND is_active = TRUE`,
		userID,
	)

	m, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query active schedule", err)
	}
	return m, nil
}

// Create inserts a new schedule row and populates the generated ID and
// bookkeeping timestamps on the passed struct.
func (r *ScheduleRepository) Create(ctx context.Context, m *types.ScheduledMessage) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	err := r.db.QueryRow(ctx,
		`INSERT INTO scheduled_messages
		 (id, user_id, admin_id, message_content, schedule_start_date,
		  message_count, next_scheduled_at, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		 RETURNING created_at, updated_at`,
		m.ID,
		m.UserID,
		m.AdminID,
		m.MessageContent,
		m.ScheduleStartDate,
		m.MessageCount,
		m.NextScheduledAt,
		m.IsActive,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create schedule", err)
	}
	return nil
}

// Advance records a successful delivery: increments message_count, stamps
// last_sent_at, and moves next_scheduled_at forward.
//
// The WHERE clause includes the expected message_count as an optimistic
// version check. A concurrent sweep that already advanced the row leaves
// message_count ahead of expectedCount, so zero rows match and the caller
// knows the row was claimed elsewhere. Returns true when this call advanced
// the row.
func (r *ScheduleRepository) Advance(ctx context.Context, id string, expectedCount int, sentAt, nextAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE scheduled_messages
		 SET message_count = $2 + 1,
		     last_sent_at = $3,
		     next_scheduled_at = $4,
		     updated_at = NOW()
		 WHERE id = $1 AND message_count = $2 AND is_active = TRUE`,
		id,
		expectedCount,
		sentAt,
		nextAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to advance schedule", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Deactivate soft-deletes the user's active schedule row(s). A user with no
// active schedule is a no-op, not an error.
func (r *ScheduleRepository) Deactivate(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE scheduled_messages
		 SET is_active = FALSE, updated_at = NOW()
		 WHERE user_id = $1 AND is_active = TRUE`,
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to deactivate schedule", err)
	}
	return nil
}

// UpdateContent changes the message body on the user's active schedule.
// Timing fields are untouched. Returns false when no active row exists.
func (r *ScheduleRepository) UpdateContent(ctx context.Context, userID string, content string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE scheduled_messages
		 SET message_content = $2, updated_at = NOW()
		 WHERE user_id = $1 AND is_active = TRUE`,
		userID,
		content,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to update message content", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListDue returns active rows whose next_scheduled_at is at or before now,
// in ascending due order. This is the sweep's work queue.
func (r *ScheduleRepository) ListDue(ctx context.Context, now time.Time) ([]types.ScheduledMessage, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+scheduleColumns+`
		 FROM scheduled_messages
		 WHERE is_active = TRUE AND next_scheduled_at <= $1
		 ORDER BY next_scheduled_at ASC`,
		now,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query due schedules", err)
	}
	defer rows.Close()

	return collectSchedules(rows)
}

// ListActive returns all active schedules ordered by next due time, for the
// admin dashboard.
func (r *ScheduleRepository) ListActive(ctx context.Context) ([]types.ScheduledMessage, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+scheduleColumns+`
		 FROM scheduled_messages
		 WHERE is_active = TRUE
		 ORDER BY next_scheduled_at ASC`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query active schedules", err)
	}
	defer rows.Close()

	return collectSchedules(rows)
}

// CountAll returns the total number of schedule rows ever created.
func (r *ScheduleRepository) CountAll(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM scheduled_messages`)
}

// CountActive returns the number of currently active schedule rows.
func (r *ScheduleRepository) CountActive(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM scheduled_messages WHERE is_active = TRUE`)
}

// CountSentBetween returns the number of rows whose last delivery falls
// within [start, end].
func (r *ScheduleRepository) CountSentBetween(ctx context.Context, start, end time.Time) (int, error) {
	return r.count(ctx,
		`SELECT COUNT(*) FROM scheduled_messages
		 WHERE last_sent_at >= $1 AND last_sent_at <= $2`,
		start, end,
	)
}

// CountUpcomingBetween returns the number of active rows due within
// [start, end].
func (r *ScheduleRepository) CountUpcomingBetween(ctx context.Context, start, end time.Time) (int, error) {
	return r.count(ctx,
		`SELECT COUNT(*) FROM scheduled_messages
		 WHERE is_active = TRUE AND next_scheduled_at >= $1 AND next_scheduled_at <= $2`,
		start, end,
	)
}

func (r *ScheduleRepository) count(ctx context.Context, sql string, args ...any) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count schedules", err)
	}
	return n, nil
}

// scanSchedule scans a single scheduled_messages row.
func scanSchedule(row pgx.Row) (*types.ScheduledMessage, error) {
	var m types.ScheduledMessage
	err := row.Scan(
		&m.ID,
		&m.UserID,
		&m.AdminID,
		&m.MessageContent,
		&m.ScheduleStartDate,
		&m.MessageCount,
		&m.LastSentAt,
		&m.NextScheduledAt,
		&m.IsActive,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// collectSchedules drains rows into a slice.
func collectSchedules(rows pgx.Rows) ([]types.ScheduledMessage, error) {
	var result []types.ScheduledMessage
	for rows.Next() {
		m, err := scanSchedule(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan schedule row", err)
		}
		result = append(result, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating schedule rows", err)
	}
	return result, nil
}
