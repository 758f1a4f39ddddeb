// Package handlers contains the HTTP handler implementations for the
// sagechat scheduler API: schedule lifecycle management for the admin
// dashboard, the milestone check hook, and the batch sweep endpoint.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"sagechat/internal/core"
	"sagechat/internal/types"
)

// SchedulerService defines the scheduling operations the handler exposes.
// Implemented by scheduler.Scheduler; an interface here enables test mocking.
type SchedulerService interface {
	CreateSchedule(ctx context.Context, userID, adminID, customMessage string) (string, error)
	Deactivate(ctx context.Context, userID string) error
	UpdateContent(ctx context.Context, userID, content string) error
	ActiveScheduleFor(ctx context.Context, userID string) (*types.ScheduledMessage, error)
	ListActiveSchedules(ctx context.Context) ([]types.ScheduledMessage, error)
	Stats(ctx context.Context) (types.ScheduleStats, error)
}

// CreateScheduleRequest is the request body for POST /v1/schedules.
type CreateScheduleRequest struct {
	UserID  string `json:"user_id" validate:"required"`
	AdminID string `json:"admin_id" validate:"required"`
	Message string `json:"message,omitempty" validate:"omitempty,max=2000"`
}

// UpdateContentRequest is the request body for PATCH /v1/schedules/{userID}.
type UpdateContentRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
}

// CreateScheduleResponse is returned by POST /v1/schedules.
type CreateScheduleResponse struct {
	ID string `json:"id"`
}

// ScheduleHandler serves the schedule management routes.
type ScheduleHandler struct {
	service  SchedulerService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewScheduleHandler creates a ScheduleHandler over the given service.
func NewScheduleHandler(service SchedulerService, logger *slog.Logger) *ScheduleHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScheduleHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

// RegisterRoutes mounts the schedule routes on the given router.
func (h *ScheduleHandler) RegisterRoutes(r chi.Router) {
	r.Route("/schedules", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/stats", h.Stats)
		r.Get("/{userID}", h.Get)
		r.Patch("/{userID}", h.UpdateContent)
		r.Delete("/{userID}", h.Deactivate)
	})
}

// Create handles POST /v1/schedules: starts a reminder series and attempts
// the immediate first delivery. Responds 409 when the user already has an
// active series.
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"user_id and admin_id are required",
			err,
		))
		return
	}

	id, err := h.service.CreateSchedule(r.Context(), req.UserID, req.AdminID, req.Message)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, CreateScheduleResponse{ID: id})
}

// List handles GET /v1/schedules: all active series for the dashboard.
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.service.ListActiveSchedules(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if schedules == nil {
		schedules = []types.ScheduledMessage{}
	}
	core.JSON(w, r, http.StatusOK, schedules)
}

// Stats handles GET /v1/schedules/stats.
func (h *ScheduleHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, stats)
}

// Get handles GET /v1/schedules/{userID}: the user's active series or 404.
func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	schedule, err := h.service.ActiveScheduleFor(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if schedule == nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeNotFoundSchedule,
			"user has no active scheduled message series",
			nil,
		))
		return
	}

	core.JSON(w, r, http.StatusOK, schedule)
}

// UpdateContent handles PATCH /v1/schedules/{userID}: changes the message
// body without affecting timing.
func (h *ScheduleHandler) UpdateContent(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req UpdateContentRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"message is required",
			err,
		))
		return
	}

	if err := h.service.UpdateContent(r.Context(), userID, req.Message); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, map[string]string{"status": "updated"})
}

// Deactivate handles DELETE /v1/schedules/{userID}. Deactivating a user with
// no active series is a no-op; the response is 204 either way.
func (h *ScheduleHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if err := h.service.Deactivate(r.Context(), userID); err != nil {
		core.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
