package db

import (
	"context"
	"time"

	"sagechat/internal/types"
)

// JobLockRepository provides distributed locking via the job_locks table,
// used to keep a manual admin-triggered sweep and the autonomous sweeper
// Lambda from running the same sweep concurrently. The locking mechanism
// uses INSERT ... ON CONFLICT DO UPDATE to atomically acquire a lock.
type JobLockRepository struct {
	db DBTX
}

// NewJobLockRepository creates a new JobLockRepository backed by the given
// database connection (pool or transaction).
func NewJobLockRepository(db DBTX) *JobLockRepository {
	return &JobLockRepository{db: db}
}

// Acquire attempts to insert a lock row. Returns true if acquired, false if
// the lock already exists and has not expired.
//
// If the existing row has expired (expires_at < current time), the ON
// CONFLICT UPDATE succeeds and the caller reclaims the lock. If the row is
// still active, the WHERE clause prevents the update and zero rows are
// affected.
//
// expires_at is computed as a concrete timestamp in Go rather than with SQL
// interval arithmetic, which does not accept Go duration strings.
func (r *JobLockRepository) Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	tag, err := r.db.Exec(ctx,
		`INSERT INTO job_locks (id, worker_id, locked_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		   SET worker_id = EXCLUDED.worker_id,
		       locked_at = EXCLUDED.locked_at,
		       expires_at = EXCLUDED.expires_at
		   WHERE job_locks.expires_at < $3`,
		lockID,
		workerID,
		now,
		expiresAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire job lock", err)
	}

	// RowsAffected is 1 if the INSERT succeeded or an expired lock was
	// reclaimed, 0 if another worker holds an unexpired lock.
	return tag.RowsAffected() > 0, nil
}

// Release drops the lock row so the next sweep does not wait out the TTL.
// Releasing a lock you no longer hold is harmless.
func (r *JobLockRepository) Release(ctx context.Context, lockID string, workerID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM job_locks WHERE id = $1 AND worker_id = $2`,
		lockID,
		workerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to release job lock", err)
	}
	return nil
}
