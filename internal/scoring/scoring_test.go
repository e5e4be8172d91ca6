package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tippslottet/internal/types"
)

// --- fixtures ---

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type nopLogger struct{}

func (nopLogger) Info(string, ...any)      {}
func (nopLogger) Error(string, ...any)     {}
func (nopLogger) Warn(string, ...any)      {}
func (nopLogger) With(...any) types.Logger { return nopLogger{} }

type fakeStore struct {
	round       *types.Round
	matches     []types.Match
	predictions map[string][]types.Prediction
	answers     []types.QuestionnaireAnswer
	resolutions []types.QuestionResolution

	storedMatchPoints []types.MatchPoints
	storedQPoints     map[string]int

	listByMatchErr error
	upsertErr      error
}

func (s *fakeStore) GetRound(_ context.Context, id string) (*types.Round, error) {
	if s.round == nil || s.round.ID != id {
		return nil, types.NewAppError(types.ErrCodeNotFoundRound, "round not found", nil)
	}
	return s.round, nil
}

func (s *fakeStore) ListMatches(_ context.Context, _ string) ([]types.Match, error) {
	return s.matches, nil
}

func (s *fakeStore) ListByMatch(_ context.Context, matchID string) ([]types.Prediction, error) {
	if s.listByMatchErr != nil {
		return nil, s.listByMatchErr
	}
	return s.predictions[matchID], nil
}

func (s *fakeStore) ListAnswers(_ context.Context, _ string) ([]types.QuestionnaireAnswer, error) {
	return s.answers, nil
}

func (s *fakeStore) ListResolutions(_ context.Context, _ string) ([]types.QuestionResolution, error) {
	return s.resolutions, nil
}

func (s *fakeStore) UpsertMatchPoints(_ context.Context, p types.MatchPoints) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.storedMatchPoints = append(s.storedMatchPoints, p)
	return nil
}

func (s *fakeStore) UpsertQuestionnairePoints(_ context.Context, _, userID string, points int, _ time.Time) error {
	if s.storedQPoints == nil {
		s.storedQPoints = map[string]int{}
	}
	s.storedQPoints[userID] = points
	return nil
}

func intPtr(n int) *int { return &n }

func finishedMatch(id string, home, away int) types.Match {
	return types.Match{
		ID:        id,
		RoundID:   "round_1",
		HomeTeam:  "Rosenborg",
		AwayTeam:  "Brann",
		HomeScore: intPtr(home),
		AwayScore: intPtr(away),
		KickoffAt: time.Date(2026, 4, 4, 16, 0, 0, 0, time.UTC),
	}
}

func newTestEngine(store *fakeStore) *Engine {
	clock := fixedClock{t: time.Date(2026, 4, 5, 12, 0, 0, 0, time.UTC)}
	return NewEngine(store, store, store, nopLogger{}, clock)
}

// --- ComputeMatchPoints ---

func TestComputeMatchPointsExactScore(t *testing.T) {
	m := finishedMatch("match_1", 2, 1)
	now := time.Now()
	preds := []types.Prediction{
		{UserID: "a", MatchID: "match_1", HomeScore: 2, AwayScore: 1}, // exact
		{UserID: "b", MatchID: "match_1", HomeScore: 3, AwayScore: 0}, // outcome only
		{UserID: "c", MatchID: "match_1", HomeScore: 0, AwayScore: 0}, // wrong
	}

	pts := ComputeMatchPoints(&m, preds, now)
	require.Len(t, pts, 3)

	byUser := map[string]types.MatchPoints{}
	for _, p := range pts {
		byUser[p.UserID] = p
	}

	// 2 of 3 correct: dynamic = round(1/3 * 5) = 2.
	assert.Equal(t, OutcomePoints+ExactScoreBonus, byUser["a"].BasePoints)
	assert.Equal(t, 2, byUser["a"].DynamicPoints)
	assert.Equal(t, OutcomePoints, byUser["b"].BasePoints)
	assert.Equal(t, 2, byUser["b"].DynamicPoints)
	assert.Zero(t, byUser["c"].BasePoints)
	assert.Zero(t, byUser["c"].DynamicPoints)
}

func TestComputeMatchPointsUnanimousPickEarnsNoDynamic(t *testing.T) {
	m := finishedMatch("match_1", 1, 0)
	preds := []types.Prediction{
		{UserID: "a", HomeScore: 1, AwayScore: 0},
		{UserID: "b", HomeScore: 2, AwayScore: 0},
	}

	pts := ComputeMatchPoints(&m, preds, time.Now())
	for _, p := range pts {
		assert.Zero(t, p.DynamicPoints)
	}
}

func TestComputeMatchPointsLoneCorrectPick(t *testing.T) {
	m := finishedMatch("match_1", 0, 2)
	preds := []types.Prediction{
		{UserID: "a", HomeScore: 2, AwayScore: 0},
		{UserID: "b", HomeScore: 1, AwayScore: 0},
		{UserID: "c", HomeScore: 3, AwayScore: 1},
		{UserID: "d", HomeScore: 1, AwayScore: 0},
		{UserID: "e", HomeScore: 0, AwayScore: 1}, // only away pick
	}

	pts := ComputeMatchPoints(&m, preds, time.Now())
	byUser := map[string]types.MatchPoints{}
	for _, p := range pts {
		byUser[p.UserID] = p
	}

	// 1 of 5 correct: dynamic = round(4/5 * 5) = 4.
	assert.Equal(t, 4, byUser["e"].DynamicPoints)
	assert.Equal(t, OutcomePoints, byUser["e"].BasePoints)
	assert.Zero(t, byUser["a"].DynamicPoints)
}

func TestComputeMatchPointsNoPredictions(t *testing.T) {
	m := finishedMatch("match_1", 1, 1)
	assert.Nil(t, ComputeMatchPoints(&m, nil, time.Now()))
}

// --- ProcessRoundPoints ---

func TestProcessRoundPointsScoresFinishedSkipsUnfinished(t *testing.T) {
	unplayed := finishedMatch("match_2", 0, 0)
	unplayed.HomeScore = nil
	unplayed.AwayScore = nil

	store := &fakeStore{
		round:   &types.Round{ID: "round_1", SeasonID: "season_1", Status: types.RoundLocked},
		matches: []types.Match{finishedMatch("match_1", 2, 1), unplayed},
		predictions: map[string][]types.Prediction{
			"match_1": {
				{UserID: "a", MatchID: "match_1", HomeScore: 2, AwayScore: 1},
				{UserID: "b", MatchID: "match_1", HomeScore: 0, AwayScore: 1},
			},
		},
	}

	report, err := newTestEngine(store).ProcessRoundPoints(context.Background(), "round_1")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Failed)
	require.Len(t, store.storedMatchPoints, 2)
}

func TestProcessRoundPointsContinuesPastFailures(t *testing.T) {
	store := &fakeStore{
		round: &types.Round{ID: "round_1", Status: types.RoundLocked},
		matches: []types.Match{
			finishedMatch("match_1", 1, 0),
			finishedMatch("match_2", 0, 0),
		},
		listByMatchErr: errors.New("connection reset"),
	}

	report, err := newTestEngine(store).ProcessRoundPoints(context.Background(), "round_1")
	require.NoError(t, err, "per-match failures do not abort the run")

	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 2, report.Failed)
	assert.Zero(t, report.Succeeded)
	require.Len(t, report.Errors, 2)
	assert.Contains(t, report.Errors[0], "match_1")
}

func TestProcessRoundPointsUnknownRound(t *testing.T) {
	store := &fakeStore{}

	_, err := newTestEngine(store).ProcessRoundPoints(context.Background(), "round_404")
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundRound, appErr.Code)
}

func TestProcessRoundPointsDeterministic(t *testing.T) {
	build := func() *fakeStore {
		return &fakeStore{
			round:   &types.Round{ID: "round_1", Status: types.RoundLocked},
			matches: []types.Match{finishedMatch("match_1", 2, 2)},
			predictions: map[string][]types.Prediction{
				"match_1": {
					{UserID: "a", MatchID: "match_1", HomeScore: 2, AwayScore: 2},
					{UserID: "b", MatchID: "match_1", HomeScore: 1, AwayScore: 1},
					{UserID: "c", MatchID: "match_1", HomeScore: 1, AwayScore: 0},
				},
			},
		}
	}

	first := build()
	second := build()
	_, err := newTestEngine(first).ProcessRoundPoints(context.Background(), "round_1")
	require.NoError(t, err)
	_, err = newTestEngine(second).ProcessRoundPoints(context.Background(), "round_1")
	require.NoError(t, err)

	assert.Equal(t, first.storedMatchPoints, second.storedMatchPoints)
}

// --- ScoreQuestionnaire ---

func TestScoreQuestionnaire(t *testing.T) {
	store := &fakeStore{
		resolutions: []types.QuestionResolution{
			{QuestionID: "q_winner", CorrectAnswer: "Bodø/Glimt", Points: 10},
			{QuestionID: "q_topscorer", CorrectAnswer: "Zdenek", Points: 5},
		},
		answers: []types.QuestionnaireAnswer{
			{UserID: "a", QuestionID: "q_winner", Answer: "bodø/glimt "}, // case/space insensitive
			{UserID: "a", QuestionID: "q_topscorer", Answer: "Berisha"},
			{UserID: "b", QuestionID: "q_winner", Answer: "Rosenborg"},
		},
	}

	report, err := newTestEngine(store).ScoreQuestionnaire(context.Background(), "season_1")
	require.NoError(t, err)

	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 10, store.storedQPoints["a"])
	assert.Zero(t, store.storedQPoints["b"], "wrong answers still produce a zero row")
}

func TestScoreQuestionnaireUnresolvedSeasonIsNoop(t *testing.T) {
	store := &fakeStore{
		answers: []types.QuestionnaireAnswer{
			{UserID: "a", QuestionID: "q_winner", Answer: "Molde"},
		},
	}

	report, err := newTestEngine(store).ScoreQuestionnaire(context.Background(), "season_1")
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
	assert.Empty(t, store.storedQPoints)
}
