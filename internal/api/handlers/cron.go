package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tippslottet/internal/core"
	"tippslottet/internal/scheduler"
	"tippslottet/internal/types"
)

// CronHandler exposes the scheduled jobs as endpoints for the external cron
// service. Authentication (the shared cron secret) happens in the middleware
// in front of this group.
type CronHandler struct {
	jobs   JobRunner
	logger *slog.Logger
}

// NewCronHandler creates a CronHandler.
func NewCronHandler(jobs JobRunner, logger *slog.Logger) *CronHandler {
	return &CronHandler{jobs: jobs, logger: logger}
}

// RegisterRoutes mounts the cron endpoints. Each job accepts GET for plain
// cron services and POST for callers that prefer it.
func (h *CronHandler) RegisterRoutes(r chi.Router) {
	jobs := map[string]scheduler.TaskType{
		"/season-completion":        scheduler.TaskDetectSeasonCompletion,
		"/recalculate":              scheduler.TaskRecalculateRoundPoints,
		"/score-questionnaire":      scheduler.TaskScoreQuestionnaire,
		"/reminders":                scheduler.TaskSendRoundReminders,
		"/summaries":                scheduler.TaskSendRoundSummaries,
		"/transparency":             scheduler.TaskSendTransparencyDigest,
		"/archive-email-operations": scheduler.TaskArchiveEmailOperations,
	}
	for path, task := range jobs {
		handler := h.runTask(task)
		r.Get(path, handler)
		r.Post(path, handler)
	}
}

// runTask builds the handler for one task. round_id, season_id, and
// reference_time come from query parameters; reference_time pins the job
// clock for deterministic re-runs.
func (h *CronHandler) runTask(task scheduler.TaskType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := scheduler.JobPayload{
			Task:     task,
			RoundID:  r.URL.Query().Get("round_id"),
			SeasonID: r.URL.Query().Get("season_id"),
		}

		if raw := r.URL.Query().Get("reference_time"); raw != "" {
			ref, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidWindow,
					"reference_time must be RFC 3339", err))
				return
			}
			payload.ReferenceTime = &ref
		}

		result, err := h.jobs.Run(r.Context(), payload)
		if err != nil {
			h.logger.Error("cron job failed",
				slog.String("task", string(task)),
				slog.String("error", err.Error()),
			)
			core.Error(w, r, err)
			return
		}

		core.JSON(w, r, http.StatusOK, core.APIResponse{Data: result})
	}
}
