// Package scheduler implements the cron-triggered jobs: season-completion
// detection, points recalculation, and the outbound email batches. Jobs are
// dispatched through a TaskType multiplexer invoked by the cron endpoints and
// by the job-runner binary.
package scheduler

import "time"

// TaskType identifies which job the multiplexer should run.
type TaskType string

const (
	TaskDetectSeasonCompletion TaskType = "detect_season_completion"
	TaskRecalculateRoundPoints TaskType = "recalculate_round_points"
	TaskScoreQuestionnaire     TaskType = "score_questionnaire"
	TaskSendRoundReminders     TaskType = "send_round_reminders"
	TaskSendRoundSummaries     TaskType = "send_round_summaries"
	TaskSendTransparencyDigest TaskType = "send_transparency_digest"
	TaskArchiveEmailOperations TaskType = "archive_email_operations"
)

// JobPayload is the JSON payload accepted by the cron endpoints and the
// job-runner binary. RoundID and SeasonID scope the tasks that need them;
// ReferenceTime allows manual invocation to pin "now" for deterministic
// re-runs and backfills.
type JobPayload struct {
	Task          TaskType   `json:"task"`
	RoundID       string     `json:"round_id,omitempty"`
	SeasonID      string     `json:"season_id,omitempty"`
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// JobResult summarizes one job run for the HTTP response and job logs.
type JobResult struct {
	Task   TaskType `json:"task"`
	Items  int      `json:"items"`
	Failed int      `json:"failed,omitempty"`
	Detail string   `json:"detail,omitempty"`
}
