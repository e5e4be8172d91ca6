package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"tippslottet/internal/core"
	"tippslottet/internal/scheduler"
	"tippslottet/internal/types"
)

// AdminUserDB manages the participant whitelist.
type AdminUserDB interface {
	List(ctx context.Context) ([]types.User, error)
	Create(ctx context.Context, u *types.User) error
	Update(ctx context.Context, u *types.User) error
	Deactivate(ctx context.Context, id string) error
}

// AdminRoundDB manages the round lifecycle and match results.
type AdminRoundDB interface {
	SetRoundStatus(ctx context.Context, id string, status types.RoundStatus, finalizedAt time.Time) error
	RecordResult(ctx context.Context, matchID string, homeScore, awayScore int) error
}

// AdminAuditDB records and lists admin audit events.
type AdminAuditDB interface {
	Log(ctx context.Context, event types.AuditEvent) error
	List(ctx context.Context, limit int) ([]types.AuditEvent, error)
}

// JobRunner executes maintenance jobs on demand.
type JobRunner interface {
	Run(ctx context.Context, payload scheduler.JobPayload) (scheduler.JobResult, error)
}

// CreateUserRequest is the body for POST /v1/admin/users.
type CreateUserRequest struct {
	Email       string `json:"email" validate:"required,email"`
	DisplayName string `json:"display_name" validate:"required,max=100"`
	IsAdmin     bool   `json:"is_admin"`
}

// UpdateUserRequest is the body for PUT /v1/admin/users/{id}. All mutable
// fields are required so a partial body cannot silently reset flags.
type UpdateUserRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=100"`
	IsAdmin     bool   `json:"is_admin"`
	Active      bool   `json:"active"`
}

// RecalculateRequest is the body for POST /v1/admin/recalculate.
type RecalculateRequest struct {
	RoundID string `json:"round_id" validate:"required"`
}

// SetRoundStatusRequest is the body for PUT /v1/admin/rounds/{roundID}/status.
type SetRoundStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=open locked finalized"`
}

// RecordResultRequest is the body for POST /v1/admin/matches/{matchID}/result.
type RecordResultRequest struct {
	HomeScore int `json:"home_score" validate:"gte=0,lte=99"`
	AwayScore int `json:"away_score" validate:"gte=0,lte=99"`
}

// AdminHandler covers whitelist management, the audit log, and manual job
// triggers. Every mutation writes an audit event; an audit write failure is
// logged but never rolls back the admin action.
type AdminHandler struct {
	users     AdminUserDB
	rounds    AdminRoundDB
	audit     AdminAuditDB
	jobs      JobRunner
	validator *core.Validator
	logger    *slog.Logger
	clock     types.Clock
}

// NewAdminHandler creates an AdminHandler. A nil clock defaults to real time.
func NewAdminHandler(users AdminUserDB, rounds AdminRoundDB, audit AdminAuditDB, jobs JobRunner, validator *core.Validator, logger *slog.Logger, clock types.Clock) *AdminHandler {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &AdminHandler{
		users:     users,
		rounds:    rounds,
		audit:     audit,
		jobs:      jobs,
		validator: validator,
		logger:    logger,
		clock:     clock,
	}
}

// RegisterRoutes mounts the admin endpoints behind the admin key middleware.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Get("/users", h.ListUsers)
	r.Post("/users", h.CreateUser)
	r.Put("/users/{id}", h.UpdateUser)
	r.Delete("/users/{id}", h.DeactivateUser)
	r.Put("/rounds/{roundID}/status", h.SetRoundStatus)
	r.Post("/matches/{matchID}/result", h.RecordResult)
	r.Get("/audit", h.ListAudit)
	r.Post("/recalculate", h.Recalculate)
}

// ListUsers returns every whitelist entry, active or not.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: users})
}

// CreateUser adds a participant to the whitelist.
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	user := &types.User{
		ID:          uuid.New().String(),
		Email:       req.Email,
		DisplayName: req.DisplayName,
		IsAdmin:     req.IsAdmin,
		Active:      true,
		CreatedAt:   h.clock.Now(),
	}
	if err := h.users.Create(r.Context(), user); err != nil {
		core.Error(w, r, err)
		return
	}

	h.recordAudit(r, "whitelist_user_added", user.ID, map[string]any{
		"email":    user.Email,
		"is_admin": user.IsAdmin,
	})
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: user})
}

// UpdateUser replaces the mutable fields of a whitelist entry.
func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	user := &types.User{
		ID:          chi.URLParam(r, "id"),
		DisplayName: req.DisplayName,
		IsAdmin:     req.IsAdmin,
		Active:      req.Active,
	}
	if err := h.users.Update(r.Context(), user); err != nil {
		core.Error(w, r, err)
		return
	}

	h.recordAudit(r, "whitelist_user_updated", user.ID, map[string]any{
		"is_admin": req.IsAdmin,
		"active":   req.Active,
	})
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: user})
}

// DeactivateUser removes a participant from the active whitelist. The record
// stays for standings history; only the active flag changes.
func (h *AdminHandler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.users.Deactivate(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}

	h.recordAudit(r, "whitelist_user_removed", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// SetRoundStatus transitions a round through its lifecycle. Finalizing a
// round stamps the finalization time; scoring, summaries, and season
// completion all key off that state.
func (h *AdminHandler) SetRoundStatus(w http.ResponseWriter, r *http.Request) {
	var req SetRoundStatusRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	roundID := chi.URLParam(r, "roundID")
	status := types.RoundStatus(req.Status)
	if err := h.rounds.SetRoundStatus(r.Context(), roundID, status, h.clock.Now()); err != nil {
		core.Error(w, r, err)
		return
	}

	h.recordAudit(r, "round_status_changed", roundID, map[string]any{
		"status": req.Status,
	})
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{
		"round_id": roundID,
		"status":   status,
	}})
}

// RecordResult stores the final score of a match. Points stay untouched
// until a recalculation runs for the round.
func (h *AdminHandler) RecordResult(w http.ResponseWriter, r *http.Request) {
	var req RecordResultRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	matchID := chi.URLParam(r, "matchID")
	if err := h.rounds.RecordResult(r.Context(), matchID, req.HomeScore, req.AwayScore); err != nil {
		core.Error(w, r, err)
		return
	}

	h.recordAudit(r, "match_result_recorded", matchID, map[string]any{
		"home_score": req.HomeScore,
		"away_score": req.AwayScore,
	})
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{
		"match_id":   matchID,
		"home_score": req.HomeScore,
		"away_score": req.AwayScore,
	}})
}

// ListAudit returns recent audit events, newest first. The limit query
// parameter caps the page size.
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
				"limit must be an integer", err))
			return
		}
		limit = parsed
	}

	events, err := h.audit.List(r.Context(), limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: events})
}

// Recalculate triggers a points recalculation for one round.
func (h *AdminHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	var req RecalculateRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.jobs.Run(r.Context(), scheduler.JobPayload{
		Task:    scheduler.TaskRecalculateRoundPoints,
		RoundID: req.RoundID,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.recordAudit(r, "points_recalculated", req.RoundID, map[string]any{
		"scored": result.Items,
		"failed": result.Failed,
	})
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: result})
}

// recordAudit writes one audit event. Failures are logged and swallowed so
// the admin action itself is never rolled back by a broken audit sink.
func (h *AdminHandler) recordAudit(r *http.Request, action, targetID string, details map[string]any) {
	event := types.AuditEvent{
		ID:         uuid.New().String(),
		ActorEmail: types.GetActorEmail(r.Context()),
		Action:     action,
		TargetID:   targetID,
		Details:    details,
		OccurredAt: h.clock.Now(),
	}
	if err := h.audit.Log(r.Context(), event); err != nil {
		h.logger.Error("audit log write failed",
			slog.String("action", action),
			slog.String("target_id", targetID),
			slog.String("error", err.Error()),
		)
	}
}
