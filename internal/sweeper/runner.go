// Package sweeper wraps the due-message sweep for batch execution. The same
// Runner backs two entry points: the POST /process-scheduled-messages batch
// endpoint on the API, and the autonomous Lambda that runs on an EventBridge
// timer with no client present.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"sagechat/internal/types"
)

// sweepLockID identifies the sweep in the job_locks table. One lock covers
// all sweep entry points, so a manual admin trigger and the timer-driven
// Lambda never process the same due set concurrently.
const sweepLockID = "process_scheduled_messages"

// SweepInvoker is the underlying sweep operation. Implemented by
// scheduler.Scheduler.
type SweepInvoker interface {
	ProcessDueMessages(ctx context.Context) (types.SweepResult, error)
}

// SweepLock serializes sweep invocations across processes. Implemented by
// db.JobLockRepository.
type SweepLock interface {
	Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, lockID string, workerID string) error
}

// MetricPublisher records sweep outcomes for operational visibility.
type MetricPublisher interface {
	PublishSweep(ctx context.Context, result types.SweepResult) error
}

// Runner executes the sweep under a distributed lock and publishes metrics.
type Runner struct {
	scheduler SweepInvoker
	lock      SweepLock
	metrics   MetricPublisher
	workerID  string
	lockTTL   time.Duration
	logger    *slog.Logger
}

// RunnerConfig holds the configuration for creating a Runner.
type RunnerConfig struct {
	Scheduler SweepInvoker
	Lock      SweepLock // nil disables locking (single-process tests)
	Metrics   MetricPublisher
	WorkerID  string
	LockTTL   time.Duration
	Logger    *slog.Logger
}

// NewRunner creates a Runner with the given configuration.
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.LockTTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &Runner{
		scheduler: cfg.Scheduler,
		lock:      cfg.Lock,
		metrics:   cfg.Metrics,
		workerID:  cfg.WorkerID,
		lockTTL:   ttl,
		logger:    logger,
	}
}

// Run executes one sweep. When another worker holds the sweep lock, Run
// returns an empty successful result: the due rows are being handled, and
// the due-time predicate makes a later re-run safe.
//
// A store failure on the due query is returned as an error alongside a
// Success=false result; per-row failures are inside the result's Errors.
func (r *Runner) Run(ctx context.Context) (types.SweepResult, error) {
	if r.lock != nil {
		acquired, err := r.lock.Acquire(ctx, sweepLockID, r.workerID, r.lockTTL)
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to acquire sweep lock", "error", err)
			return types.SweepResult{Success: false}, err
		}
		if !acquired {
			r.logger.InfoContext(ctx, "sweep lock held by another worker, skipping")
			return types.SweepResult{Success: true}, nil
		}
		defer func() {
			if err := r.lock.Release(ctx, sweepLockID, r.workerID); err != nil {
				r.logger.ErrorContext(ctx, "failed to release sweep lock", "error", err)
			}
		}()
	}

	result, err := r.scheduler.ProcessDueMessages(ctx)

	if r.metrics != nil {
		// Metrics are best-effort; a publish failure never fails the sweep.
		if merr := r.metrics.PublishSweep(ctx, result); merr != nil {
			r.logger.ErrorContext(ctx, "failed to publish sweep metrics", "error", merr)
		}
	}

	return result, err
}
