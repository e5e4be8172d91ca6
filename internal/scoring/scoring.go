// Package scoring implements the points pipeline: per-match base points,
// rarity-weighted dynamic points, season questionnaire scoring, and the
// aggregate reports returned to the cron triggers.
package scoring

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"tippslottet/internal/types"
)

// Point values. Base points reward the pick itself; dynamic points scale with
// how few players got the outcome right, so a lone correct pick on an upset
// is worth more than following the crowd.
const (
	OutcomePoints    = 2
	ExactScoreBonus  = 3
	DynamicPointsMax = 5
)

// maxReportedErrors caps the error samples carried in a report; the full
// count is always in Failed.
const maxReportedErrors = 5

// MatchSource provides round and match lookups.
type MatchSource interface {
	GetRound(ctx context.Context, id string) (*types.Round, error)
	ListMatches(ctx context.Context, roundID string) ([]types.Match, error)
}

// PredictionSource provides prediction and questionnaire lookups.
type PredictionSource interface {
	ListByMatch(ctx context.Context, matchID string) ([]types.Prediction, error)
	ListAnswers(ctx context.Context, seasonID string) ([]types.QuestionnaireAnswer, error)
	ListResolutions(ctx context.Context, seasonID string) ([]types.QuestionResolution, error)
}

// PointsSink persists computed points.
type PointsSink interface {
	UpsertMatchPoints(ctx context.Context, p types.MatchPoints) error
	UpsertQuestionnairePoints(ctx context.Context, seasonID, userID string, points int, computedAt time.Time) error
}

// Report is the aggregate result of one scoring run. Processing continues
// past individual failures; Errors carries the first few messages.
type Report struct {
	RoundID   string   `json:"round_id,omitempty"`
	SeasonID  string   `json:"season_id,omitempty"`
	Processed int      `json:"processed"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
}

func (r *Report) recordError(err error) {
	r.Failed++
	if len(r.Errors) < maxReportedErrors {
		r.Errors = append(r.Errors, err.Error())
	}
}

// Engine runs the scoring pipeline.
type Engine struct {
	matches     MatchSource
	predictions PredictionSource
	points      PointsSink
	logger      types.Logger
	clock       types.Clock
}

// NewEngine creates a scoring Engine.
func NewEngine(matches MatchSource, predictions PredictionSource, points PointsSink, logger types.Logger, clock types.Clock) *Engine {
	return &Engine{
		matches:     matches,
		predictions: predictions,
		points:      points,
		logger:      logger,
		clock:       clock,
	}
}

// ProcessRoundPoints scores every finished match of the round. Matches
// without a recorded result are skipped; a failure on one match is counted
// and processing continues with the next. Rescoring is idempotent because
// point rows are upserts.
func (e *Engine) ProcessRoundPoints(ctx context.Context, roundID string) (Report, error) {
	report := Report{RoundID: roundID}

	round, err := e.matches.GetRound(ctx, roundID)
	if err != nil {
		return report, err
	}

	matches, err := e.matches.ListMatches(ctx, roundID)
	if err != nil {
		return report, err
	}

	computedAt := e.clock.Now()
	for i := range matches {
		m := &matches[i]
		if !m.Finished() {
			report.Skipped++
			continue
		}
		report.Processed++

		if err := e.scoreMatch(ctx, m, computedAt); err != nil {
			e.logger.Error("failed to score match",
				"round_id", roundID, "match_id", m.ID, "error", err.Error())
			report.recordError(fmt.Errorf("match %s: %w", m.ID, err))
			continue
		}
		report.Succeeded++
	}

	e.logger.Info("round points processed",
		"round_id", round.ID,
		"processed", report.Processed,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"skipped", report.Skipped)
	return report, nil
}

func (e *Engine) scoreMatch(ctx context.Context, m *types.Match, computedAt time.Time) error {
	preds, err := e.predictions.ListByMatch(ctx, m.ID)
	if err != nil {
		return err
	}

	for _, pts := range ComputeMatchPoints(m, preds, computedAt) {
		if err := e.points.UpsertMatchPoints(ctx, pts); err != nil {
			return err
		}
	}
	return nil
}

// ComputeMatchPoints calculates base and dynamic points for every prediction
// on a finished match. Dynamic points are rarity weighted: with n predictions
// of which c picked the correct outcome, each correct pick earns
// round((n-c)/n * DynamicPointsMax) extra points. A unanimous round earns no
// dynamic points; a lone correct pick earns close to the maximum.
func ComputeMatchPoints(m *types.Match, preds []types.Prediction, computedAt time.Time) []types.MatchPoints {
	if len(preds) == 0 {
		return nil
	}

	actual := m.Outcome()
	correct := 0
	for i := range preds {
		if preds[i].Outcome() == actual {
			correct++
		}
	}

	dynamic := 0
	if correct > 0 {
		n := len(preds)
		dynamic = int(math.Round(float64(n-correct) / float64(n) * DynamicPointsMax))
	}

	results := make([]types.MatchPoints, 0, len(preds))
	for i := range preds {
		p := &preds[i]
		pts := types.MatchPoints{
			UserID:     p.UserID,
			MatchID:    m.ID,
			RoundID:    m.RoundID,
			ComputedAt: computedAt,
		}
		if p.Outcome() == actual {
			pts.BasePoints = OutcomePoints
			pts.DynamicPoints = dynamic
			if p.HomeScore == *m.HomeScore && p.AwayScore == *m.AwayScore {
				pts.BasePoints += ExactScoreBonus
			}
		}
		results = append(results, pts)
	}
	return results
}

// ScoreQuestionnaire scores every user's season questionnaire against the
// recorded resolutions. A season without resolutions yet is a no-op. Answer
// matching is case-insensitive with surrounding whitespace ignored.
func (e *Engine) ScoreQuestionnaire(ctx context.Context, seasonID string) (Report, error) {
	report := Report{SeasonID: seasonID}

	resolutions, err := e.predictions.ListResolutions(ctx, seasonID)
	if err != nil {
		return report, err
	}
	if len(resolutions) == 0 {
		e.logger.Info("questionnaire not yet resolved", "season_id", seasonID)
		return report, nil
	}

	answers, err := e.predictions.ListAnswers(ctx, seasonID)
	if err != nil {
		return report, err
	}

	correct := make(map[string]types.QuestionResolution, len(resolutions))
	for _, res := range resolutions {
		correct[res.QuestionID] = res
	}

	// Every user who answered gets a row, even at zero points, so the
	// standings join never misses them.
	totals := make(map[string]int)
	for _, a := range answers {
		totals[a.UserID] += 0
		res, ok := correct[a.QuestionID]
		if !ok {
			continue
		}
		if answersMatch(a.Answer, res.CorrectAnswer) {
			totals[a.UserID] += res.Points
		}
	}

	computedAt := e.clock.Now()
	for userID, points := range totals {
		report.Processed++
		if err := e.points.UpsertQuestionnairePoints(ctx, seasonID, userID, points, computedAt); err != nil {
			e.logger.Error("failed to store questionnaire points",
				"season_id", seasonID, "user_id", userID, "error", err.Error())
			report.recordError(fmt.Errorf("user %s: %w", userID, err))
			continue
		}
		report.Succeeded++
	}

	e.logger.Info("questionnaire scored",
		"season_id", seasonID, "users", report.Processed, "failed", report.Failed)
	return report, nil
}

func answersMatch(given, correct string) bool {
	return strings.EqualFold(strings.TrimSpace(given), strings.TrimSpace(correct))
}
