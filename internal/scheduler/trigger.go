package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"sagechat/internal/types"
)

// SweepInvoker is the sweep entry point shared by both trigger paths.
type SweepInvoker interface {
	ProcessDueMessages(ctx context.Context) (types.SweepResult, error)
}

// LocalTrigger runs the sweep in-process. Used by admin tooling when the
// batch endpoint is unreachable or a sweep must run against the caller's own
// store connection.
type LocalTrigger struct {
	scheduler SweepInvoker
	logger    *slog.Logger
}

// NewLocalTrigger creates a LocalTrigger over the given scheduler.
func NewLocalTrigger(scheduler SweepInvoker, logger *slog.Logger) *LocalTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalTrigger{scheduler: scheduler, logger: logger}
}

// Run invokes the sweep and never returns an error: a failed sweep is folded
// into a Success=false result with the failure message in Errors.
func (t *LocalTrigger) Run(ctx context.Context) types.SweepResult {
	result, err := t.scheduler.ProcessDueMessages(ctx)
	if err != nil {
		t.logger.ErrorContext(ctx, "in-process sweep failed", "error", err)
		return types.SweepResult{
			Success:   false,
			Processed: 0,
			Errors:    []string{err.Error()},
		}
	}
	return result
}

// RemoteTriggerConfig holds the externally supplied settings for the remote
// trigger: the batch endpoint URL and the static bearer credential. Neither
// is ever embedded in source.
type RemoteTriggerConfig struct {
	EndpointURL string
	ServiceKey  types.SecretString
	HTTPTimeout time.Duration
	Logger      *slog.Logger
}

// RemoteTrigger invokes the server-side batch endpoint over HTTP. Calls are
// routed through a circuit breaker so a downed endpoint fails fast instead
// of stacking timeouts; there is no retry loop, since a missed sweep is
// retried by the next tick anyway.
type RemoteTrigger struct {
	endpointURL string
	serviceKey  types.SecretString
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[types.SweepResult]
	logger      *slog.Logger
}

// NewRemoteTrigger creates a RemoteTrigger with the given configuration.
func NewRemoteTrigger(cfg RemoteTriggerConfig) *RemoteTrigger {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.HTTPTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[types.SweepResult](gobreaker.Settings{
		Name:        "sweep-trigger",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &RemoteTrigger{
		endpointURL: cfg.EndpointURL,
		serviceKey:  cfg.ServiceKey,
		client:      &http.Client{Timeout: timeout},
		breaker:     cb,
		logger:      logger,
	}
}

// Run POSTs to the batch endpoint with an empty JSON body and returns the
// parsed sweep result. A 500 from the endpoint is surfaced as an upstream
// error carrying the endpoint's own error detail.
func (t *RemoteTrigger) Run(ctx context.Context) (types.SweepResult, error) {
	result, err := t.breaker.Execute(func() (types.SweepResult, error) {
		return t.post(ctx)
	})
	if err != nil {
		t.logger.ErrorContext(ctx, "remote sweep trigger failed", "error", err)
		return types.SweepResult{Success: false}, err
	}

	t.logger.InfoContext(ctx, "remote sweep complete",
		"processed", result.Processed,
		"total", result.Total,
		"error_count", len(result.Errors),
	)
	return result, nil
}

func (t *RemoteTrigger) post(ctx context.Context) (types.SweepResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpointURL, nil)
	if err != nil {
		return types.SweepResult{}, fmt.Errorf("building sweep request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.serviceKey.Unmask())

	resp, err := t.client.Do(req)
	if err != nil {
		return types.SweepResult{}, types.NewAppError(
			types.ErrCodeUpstreamSweep,
			"sweep endpoint unreachable",
			err,
		)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return types.SweepResult{}, types.NewAppError(
			types.ErrCodeUpstreamSweep,
			"reading sweep response",
			err,
		)
	}

	if resp.StatusCode != http.StatusOK {
		var failure struct {
			Success bool   `json:"success"`
			Error   string `json:"error"`
		}
		msg := fmt.Sprintf("sweep endpoint returned status %d", resp.StatusCode)
		if json.Unmarshal(body, &failure) == nil && failure.Error != "" {
			msg = fmt.Sprintf("%s: %s", msg, failure.Error)
		}
		return types.SweepResult{}, types.NewAppError(types.ErrCodeUpstreamSweep, msg, nil)
	}

	var result types.SweepResult
	if err := json.Unmarshal(body, &result); err != nil {
		return types.SweepResult{}, types.NewAppError(
			types.ErrCodeUpstreamSweep,
			"decoding sweep response",
			err,
		)
	}
	return result, nil
}
