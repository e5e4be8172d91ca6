package scheduler

import (
	"context"
	"fmt"
	"time"

	"tippslottet/internal/scoring"
	"tippslottet/internal/types"
)

// PointsRecalculator recomputes round and questionnaire points. Satisfied by
// scoring.Engine.
type PointsRecalculator interface {
	ProcessRoundPoints(ctx context.Context, roundID string) (scoring.Report, error)
	ScoreQuestionnaire(ctx context.Context, seasonID string) (scoring.Report, error)
}

// SeasonDetector runs the season completion check. Satisfied by
// SeasonService.
type SeasonDetector interface {
	DetectSeasonCompletion(ctx context.Context, now time.Time) (int, error)
}

// BatchMailer dispatches the round email batches. Satisfied by EmailService.
type BatchMailer interface {
	SendRoundReminders(ctx context.Context, roundID string) (int, int, error)
	SendRoundSummaries(ctx context.Context, roundID string) (int, int, error)
	SendTransparencyDigest(ctx context.Context, roundID string) (int, int, error)
}

// OpsArchiver compresses old email operation records out of the hot table.
// Satisfied by db.EmailOpsRepository.
type OpsArchiver interface {
	Archive(ctx context.Context, cutoff time.Time) (int, error)
}

// Runner is the task multiplexer behind the cron endpoints and the
// job-runner binary.
type Runner struct {
	seasons      SeasonDetector
	points       PointsRecalculator
	mailer       BatchMailer
	archiver     OpsArchiver
	opsRetention time.Duration
	logger       types.Logger
	clock        types.Clock
}

// RunnerConfig collects the Runner dependencies.
type RunnerConfig struct {
	Seasons      SeasonDetector
	Points       PointsRecalculator
	Mailer       BatchMailer
	Archiver     OpsArchiver
	OpsRetention time.Duration
	Logger       types.Logger
	Clock        types.Clock
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Runner{
		seasons:      cfg.Seasons,
		points:       cfg.Points,
		mailer:       cfg.Mailer,
		archiver:     cfg.Archiver,
		opsRetention: cfg.OpsRetention,
		logger:       cfg.Logger,
		clock:        clock,
	}
}

// Run executes one job. The reference time defaults to the current UTC time;
// a payload may pin it for deterministic re-runs.
func (r *Runner) Run(ctx context.Context, payload JobPayload) (JobResult, error) {
	result := JobResult{Task: payload.Task}

	if payload.Task == "" {
		return result, types.NewAppError(types.ErrCodeValidationMissingField, "task is required", nil)
	}

	now := r.clock.Now().UTC()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	r.logger.Info("job started", "task", string(payload.Task), "reference_time", now.Format(time.RFC3339))

	switch payload.Task {
	case TaskDetectSeasonCompletion:
		completed, err := r.seasons.DetectSeasonCompletion(ctx, now)
		result.Items = completed
		result.Detail = fmt.Sprintf("%d season(s) completed", completed)
		return r.finish(result, err)

	case TaskRecalculateRoundPoints:
		if payload.RoundID == "" {
			return result, types.NewAppError(types.ErrCodeValidationMissingField, "round_id is required", nil)
		}
		report, err := r.points.ProcessRoundPoints(ctx, payload.RoundID)
		result.Items = report.Succeeded
		result.Failed = report.Failed
		result.Detail = fmt.Sprintf("%d of %d match(es) scored", report.Succeeded, report.Processed)
		return r.finish(result, err)

	case TaskScoreQuestionnaire:
		if payload.SeasonID == "" {
			return result, types.NewAppError(types.ErrCodeValidationMissingField, "season_id is required", nil)
		}
		report, err := r.points.ScoreQuestionnaire(ctx, payload.SeasonID)
		result.Items = report.Succeeded
		result.Failed = report.Failed
		result.Detail = fmt.Sprintf("%d of %d user(s) scored", report.Succeeded, report.Processed)
		return r.finish(result, err)

	case TaskSendRoundReminders:
		return r.runBatch(ctx, result, payload, r.mailer.SendRoundReminders)

	case TaskSendRoundSummaries:
		return r.runBatch(ctx, result, payload, r.mailer.SendRoundSummaries)

	case TaskSendTransparencyDigest:
		return r.runBatch(ctx, result, payload, r.mailer.SendTransparencyDigest)

	case TaskArchiveEmailOperations:
		cutoff := now.Add(-r.opsRetention)
		archived, err := r.archiver.Archive(ctx, cutoff)
		result.Items = archived
		result.Detail = fmt.Sprintf("%d record(s) archived before %s", archived, cutoff.Format(time.RFC3339))
		return r.finish(result, err)

	default:
		return result, types.NewAppError(types.ErrCodeValidationMissingField,
			fmt.Sprintf("unknown task %q", payload.Task), nil)
	}
}

func (r *Runner) runBatch(ctx context.Context, result JobResult, payload JobPayload, send func(context.Context, string) (int, int, error)) (JobResult, error) {
	if payload.RoundID == "" {
		return result, types.NewAppError(types.ErrCodeValidationMissingField, "round_id is required", nil)
	}
	sent, failed, err := send(ctx, payload.RoundID)
	result.Items = sent
	result.Failed = failed
	result.Detail = fmt.Sprintf("%d sent, %d failed", sent, failed)
	return r.finish(result, err)
}

func (r *Runner) finish(result JobResult, err error) (JobResult, error) {
	if err != nil {
		r.logger.Error("job failed", "task", string(result.Task), "items", result.Items, "error", err.Error())
		return result, err
	}
	r.logger.Info("job finished", "task", string(result.Task), "items", result.Items, "failed", result.Failed, "detail", result.Detail)
	return result, nil
}
