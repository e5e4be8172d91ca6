package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"tippslottet/internal/core"
	"tippslottet/internal/mailer"
	"tippslottet/internal/monitoring"
	"tippslottet/internal/types"
)

// maxDashboardWindow caps the lookback a caller may request.
const maxDashboardWindow = 30 * 24 * time.Hour

// DashboardSource aggregates email operation records into monitoring
// payloads. Satisfied by monitoring.Dashboard.
type DashboardSource interface {
	Summary(ctx context.Context, window time.Duration) monitoring.Summary
	Health(ctx context.Context, window time.Duration) monitoring.Health
}

// EmailOpsHandler serves the email monitoring dashboard and health check.
type EmailOpsHandler struct {
	dashboard DashboardSource
	logs      *mailer.LogService
}

// NewEmailOpsHandler creates an EmailOpsHandler. logs may be nil to skip the
// system-health log emission on health checks.
func NewEmailOpsHandler(dashboard DashboardSource, logs *mailer.LogService) *EmailOpsHandler {
	return &EmailOpsHandler{dashboard: dashboard, logs: logs}
}

// RegisterRoutes mounts the email monitoring endpoints.
func (h *EmailOpsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/email-dashboard", h.Dashboard)
	r.Get("/email-health", h.Health)
}

// Dashboard returns the full monitoring summary. The hours query parameter
// adjusts the lookback window, default 24.
func (h *EmailOpsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	window, err := windowFromQuery(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	summary := h.dashboard.Summary(r.Context(), window)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: summary})
}

// Health returns the compact health payload with the status mapped onto the
// response code: 200 healthy, 206 degraded or unknown, 503 unhealthy.
func (h *EmailOpsHandler) Health(w http.ResponseWriter, r *http.Request) {
	window, err := windowFromQuery(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	health := h.dashboard.Health(r.Context(), window)

	if h.logs != nil {
		h.logs.LogSystemHealth(mailer.HealthMetrics{
			Status:      health.Status,
			QueueDepth:  health.QueueDepth,
			SuccessRate: health.SuccessRate,
			TotalErrors: health.TotalErrors,
		})
	}

	core.JSON(w, r, monitoring.HTTPStatusFor(health.Status), health)
}

func windowFromQuery(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("hours")
	if raw == "" {
		return monitoring.DefaultWindow, nil
	}

	hours, err := strconv.Atoi(raw)
	if err != nil || hours <= 0 {
		return 0, types.NewAppError(types.ErrCodeValidationInvalidWindow,
			"hours must be a positive integer", err)
	}

	window := time.Duration(hours) * time.Hour
	if window > maxDashboardWindow {
		window = maxDashboardWindow
	}
	return window, nil
}
