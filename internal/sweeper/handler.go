package sweeper

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sagechat/internal/types"
)

// SweepInput is the Lambda invocation payload. The timer invokes the
// function with an empty payload; manual invocations can force a sweep past
// a stuck lock during disaster recovery.
type SweepInput struct {
	Force bool `json:"force"`
}

// Handler is the Lambda entrypoint for the sweeper function. It accepts
// either an empty payload (EventBridge timer) or a SweepInput JSON object.
//
// The handler returns the SweepResult so manual invocations see the outcome
// in the invocation response. A due-query failure is returned as a hard
// error to trigger Lambda error alarms; per-row delivery failures are
// reported inside the result and do not fail the invocation.
func (r *Runner) Handler(ctx context.Context, payload json.RawMessage) (SweepReport, error) {
	var input SweepInput
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &input); err != nil {
			return SweepReport{}, fmt.Errorf("sweeper: failed to parse payload: %w", err)
		}
	}

	r.logger.InfoContext(ctx, "sweeper invoked",
		"force", input.Force,
		"worker_id", r.workerID,
	)

	runner := r
	if input.Force {
		// Bypass the lock; the operator has decided the holder is dead.
		forced := *r
		forced.lock = nil
		runner = &forced
	}

	started := time.Now().UTC()
	result, err := runner.Run(ctx)
	if err != nil {
		return SweepReport{}, fmt.Errorf("sweeper: sweep failed: %w", err)
	}

	return SweepReport{
		SweepResult: result,
		StartedAt:   started,
		DurationMs:  time.Since(started).Milliseconds(),
	}, nil
}

// SweepReport is the Lambda invocation response: the sweep result plus
// execution timing.
type SweepReport struct {
	types.SweepResult
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}
