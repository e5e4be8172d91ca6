package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tippslottet/internal/scoring"
	"tippslottet/internal/types"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakeDetector struct {
	gotNow    time.Time
	completed int
	err       error
}

func (f *fakeDetector) DetectSeasonCompletion(_ context.Context, now time.Time) (int, error) {
	f.gotNow = now
	return f.completed, f.err
}

type fakeRecalculator struct {
	gotRoundID  string
	gotSeasonID string
	report      scoring.Report
	err         error
}

func (f *fakeRecalculator) ProcessRoundPoints(_ context.Context, roundID string) (scoring.Report, error) {
	f.gotRoundID = roundID
	return f.report, f.err
}

func (f *fakeRecalculator) ScoreQuestionnaire(_ context.Context, seasonID string) (scoring.Report, error) {
	f.gotSeasonID = seasonID
	return f.report, f.err
}

type fakeBatchMailer struct {
	calls []string
}

func (f *fakeBatchMailer) send(name, roundID string) (int, int, error) {
	f.calls = append(f.calls, name+":"+roundID)
	return 3, 1, nil
}

func (f *fakeBatchMailer) SendRoundReminders(_ context.Context, roundID string) (int, int, error) {
	return f.send("reminders", roundID)
}

func (f *fakeBatchMailer) SendRoundSummaries(_ context.Context, roundID string) (int, int, error) {
	return f.send("summaries", roundID)
}

func (f *fakeBatchMailer) SendTransparencyDigest(_ context.Context, roundID string) (int, int, error) {
	return f.send("digest", roundID)
}

type fakeArchiver struct {
	gotCutoff time.Time
	archived  int
}

func (f *fakeArchiver) Archive(_ context.Context, cutoff time.Time) (int, error) {
	f.gotCutoff = cutoff
	return f.archived, nil
}

func newTestRunner(detector *fakeDetector, points *fakeRecalculator, batch *fakeBatchMailer, archiver *fakeArchiver, clock types.Clock) *Runner {
	return NewRunner(RunnerConfig{
		Seasons:      detector,
		Points:       points,
		Mailer:       batch,
		Archiver:     archiver,
		OpsRetention: 90 * 24 * time.Hour,
		Logger:       nopLogger{},
		Clock:        clock,
	})
}

func TestRunnerRequiresTask(t *testing.T) {
	r := newTestRunner(&fakeDetector{}, &fakeRecalculator{}, &fakeBatchMailer{}, &fakeArchiver{}, fixedClock{time.Now()})

	_, err := r.Run(context.Background(), JobPayload{})
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationMissingField, appErr.Code)
}

func TestRunnerRejectsUnknownTask(t *testing.T) {
	r := newTestRunner(&fakeDetector{}, &fakeRecalculator{}, &fakeBatchMailer{}, &fakeArchiver{}, fixedClock{time.Now()})

	_, err := r.Run(context.Background(), JobPayload{Task: "reticulate-splines"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reticulate-splines")
}

func TestRunnerDetectSeasonCompletion(t *testing.T) {
	now := time.Date(2025, 11, 30, 3, 0, 0, 0, time.UTC)
	detector := &fakeDetector{completed: 2}
	r := newTestRunner(detector, &fakeRecalculator{}, &fakeBatchMailer{}, &fakeArchiver{}, fixedClock{now})

	result, err := r.Run(context.Background(), JobPayload{Task: TaskDetectSeasonCompletion})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Items)
	assert.Equal(t, now, detector.gotNow, "detector receives the clock time")
}

func TestRunnerReferenceTimeOverridesClock(t *testing.T) {
	clockTime := time.Date(2025, 11, 30, 3, 0, 0, 0, time.UTC)
	pinned := time.Date(2025, 10, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	detector := &fakeDetector{}
	r := newTestRunner(detector, &fakeRecalculator{}, &fakeBatchMailer{}, &fakeArchiver{}, fixedClock{clockTime})

	_, err := r.Run(context.Background(), JobPayload{Task: TaskDetectSeasonCompletion, ReferenceTime: &pinned})
	require.NoError(t, err)

	assert.Equal(t, pinned.UTC(), detector.gotNow, "pinned reference time is normalized to UTC")
}

func TestRunnerRecalculateRoundPoints(t *testing.T) {
	points := &fakeRecalculator{report: scoring.Report{Processed: 8, Succeeded: 7, Failed: 1}}
	r := newTestRunner(&fakeDetector{}, points, &fakeBatchMailer{}, &fakeArchiver{}, fixedClock{time.Now()})

	result, err := r.Run(context.Background(), JobPayload{Task: TaskRecalculateRoundPoints, RoundID: "round_9"})
	require.NoError(t, err)

	assert.Equal(t, "round_9", points.gotRoundID)
	assert.Equal(t, 7, result.Items)
	assert.Equal(t, 1, result.Failed)
	assert.Contains(t, result.Detail, "7 of 8")
}

func TestRunnerScoreQuestionnaire(t *testing.T) {
	points := &fakeRecalculator{report: scoring.Report{Processed: 12, Succeeded: 11, Failed: 1}}
	r := newTestRunner(&fakeDetector{}, points, &fakeBatchMailer{}, &fakeArchiver{}, fixedClock{time.Now()})

	result, err := r.Run(context.Background(), JobPayload{Task: TaskScoreQuestionnaire, SeasonID: "season_3"})
	require.NoError(t, err)

	assert.Equal(t, "season_3", points.gotSeasonID)
	assert.Equal(t, 11, result.Items)
	assert.Equal(t, 1, result.Failed)
	assert.Contains(t, result.Detail, "11 of 12")
}

func TestRunnerScoreQuestionnaireRequiresSeasonID(t *testing.T) {
	points := &fakeRecalculator{}
	r := newTestRunner(&fakeDetector{}, points, &fakeBatchMailer{}, &fakeArchiver{}, fixedClock{time.Now()})

	_, err := r.Run(context.Background(), JobPayload{Task: TaskScoreQuestionnaire})
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationMissingField, appErr.Code)
	assert.Empty(t, points.gotSeasonID)
}

func TestRunnerRoundTasksRequireRoundID(t *testing.T) {
	tasks := []TaskType{
		TaskRecalculateRoundPoints,
		TaskSendRoundReminders,
		TaskSendRoundSummaries,
		TaskSendTransparencyDigest,
	}

	for _, task := range tasks {
		t.Run(string(task), func(t *testing.T) {
			r := newTestRunner(&fakeDetector{}, &fakeRecalculator{}, &fakeBatchMailer{}, &fakeArchiver{}, fixedClock{time.Now()})

			_, err := r.Run(context.Background(), JobPayload{Task: task})
			require.Error(t, err)

			var appErr *types.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, types.ErrCodeValidationMissingField, appErr.Code)
		})
	}
}

func TestRunnerDispatchesEmailBatches(t *testing.T) {
	batch := &fakeBatchMailer{}
	r := newTestRunner(&fakeDetector{}, &fakeRecalculator{}, batch, &fakeArchiver{}, fixedClock{time.Now()})

	for _, task := range []TaskType{TaskSendRoundReminders, TaskSendRoundSummaries, TaskSendTransparencyDigest} {
		result, err := r.Run(context.Background(), JobPayload{Task: task, RoundID: "round_2"})
		require.NoError(t, err)
		assert.Equal(t, 3, result.Items)
		assert.Equal(t, 1, result.Failed)
	}

	assert.Equal(t, []string{"reminders:round_2", "summaries:round_2", "digest:round_2"}, batch.calls)
}

func TestRunnerArchiveUsesRetentionCutoff(t *testing.T) {
	now := time.Date(2025, 12, 1, 4, 0, 0, 0, time.UTC)
	archiver := &fakeArchiver{archived: 42}
	r := newTestRunner(&fakeDetector{}, &fakeRecalculator{}, &fakeBatchMailer{}, archiver, fixedClock{now})

	result, err := r.Run(context.Background(), JobPayload{Task: TaskArchiveEmailOperations})
	require.NoError(t, err)

	assert.Equal(t, 42, result.Items)
	assert.Equal(t, now.Add(-90*24*time.Hour), archiver.gotCutoff)
}

func TestRunnerPropagatesJobError(t *testing.T) {
	detector := &fakeDetector{err: errors.New("db down")}
	r := newTestRunner(detector, &fakeRecalculator{}, &fakeBatchMailer{}, &fakeArchiver{}, fixedClock{time.Now()})

	result, err := r.Run(context.Background(), JobPayload{Task: TaskDetectSeasonCompletion})
	require.Error(t, err)
	assert.Equal(t, TaskDetectSeasonCompletion, result.Task)
}
