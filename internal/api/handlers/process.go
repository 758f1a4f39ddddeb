package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"sagechat/internal/types"
)

// SweepRunner executes one due-message sweep. Implemented by sweeper.Runner.
type SweepRunner interface {
	Run(ctx context.Context) (types.SweepResult, error)
}

// sweepFailureResponse is the body returned when the sweep itself could not
// run. Partial delivery failures are reported inside a 200 SweepResult
// instead.
type sweepFailureResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// NewProcessHandler returns the handler for POST /process-scheduled-messages.
// The response shape predates the v1 API and is kept as-is for existing
// cron callers: the SweepResult is the body, with no envelope.
func NewProcessHandler(runner SweepRunner, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := runner.Run(r.Context())
		if err != nil {
			logger.ErrorContext(r.Context(), "scheduled message sweep failed",
				"error", err,
			)
			writeSweepJSON(w, http.StatusInternalServerError, sweepFailureResponse{
				Success: false,
				Error:   err.Error(),
			})
			return
		}

		logger.InfoContext(r.Context(), "scheduled message sweep completed",
			"processed", result.Processed,
			"total", result.Total,
			"failed", len(result.Errors),
		)
		writeSweepJSON(w, http.StatusOK, result)
	}
}

func writeSweepJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
