package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"sagechat/internal/core"
	"sagechat/internal/types"
)

// MilestoneService checks whether a user has hit an activation milestone and
// sends the congratulation message when due. Implemented by milestone.Notifier.
type MilestoneService interface {
	CheckAndSend(ctx context.Context, userID string, activationDate *time.Time)
}

// MilestoneCheckRequest is the request body for POST /v1/milestones/check.
// ActivationDate is RFC 3339; when absent the check is a no-op.
type MilestoneCheckRequest struct {
	UserID         string `json:"user_id" validate:"required"`
	ActivationDate string `json:"activation_date,omitempty"`
}

// MilestoneHandler serves the milestone check hook called by the mobile app
// on session start.
type MilestoneHandler struct {
	service  MilestoneService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewMilestoneHandler creates a MilestoneHandler over the given service.
func NewMilestoneHandler(service MilestoneService, logger *slog.Logger) *MilestoneHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MilestoneHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

// RegisterRoutes mounts the milestone routes on the given router.
func (h *MilestoneHandler) RegisterRoutes(r chi.Router) {
	r.Post("/milestones/check", h.Check)
}

// Check handles POST /v1/milestones/check. The check never surfaces a
// delivery failure to the caller: a malformed request is rejected, anything
// past validation is accepted with 202 and handled internally.
func (h *MilestoneHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req MilestoneCheckRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"user_id is required",
			err,
		))
		return
	}

	var activation *time.Time
	if req.ActivationDate != "" {
		parsed, err := time.Parse(time.RFC3339, req.ActivationDate)
		if err != nil {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationInvalidDate,
				"activation_date must be an RFC 3339 timestamp",
				err,
			))
			return
		}
		activation = &parsed
	}

	h.service.CheckAndSend(r.Context(), req.UserID, activation)

	core.JSON(w, r, http.StatusAccepted, map[string]string{"status": "accepted"})
}
