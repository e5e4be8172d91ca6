package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"tippslottet/internal/types"
)

// PredictionRepository provides data access for match predictions and
// season questionnaire answers.
type PredictionRepository struct {
	db DBTX
}

// NewPredictionRepository creates a new PredictionRepository backed by the
// given database connection (pool or transaction).
func NewPredictionRepository(db DBTX) *PredictionRepository {
	return &PredictionRepository{db: db}
}

const predictionColumns = `p.id, p.user_id, p.match_id, p.home_score, p.away_score, p.submitted_at`

func scanPrediction(row pgx.Row) (*types.Prediction, error) {
	var p types.Prediction
	if err := row.Scan(&p.ID, &p.UserID, &p.MatchID, &p.HomeScore, &p.AwayScore, &p.SubmittedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// Upsert stores a prediction, replacing any earlier submission by the same
// user for the same match. Deadline enforcement happens in the handler; the
// repository just persists.
func (r *PredictionRepository) Upsert(ctx context.Context, p *types.Prediction) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO predictions (id, user_id, match_id, home_score, away_score, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, match_id)
		 DO UPDATE SET home_score = EXCLUDED.home_score,
		               away_score = EXCLUDED.away_score,
		               submitted_at = EXCLUDED.submitted_at`,
		p.ID, p.UserID, p.MatchID, p.HomeScore, p.AwayScore, p.SubmittedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to store prediction", err)
	}
	return nil
}

// ListByUserAndRound returns the user's predictions for every match of the
// round, in match kickoff order.
func (r *PredictionRepository) ListByUserAndRound(ctx context.Context, userID, roundID string) ([]types.Prediction, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+predictionColumns+`
		 FROM predictions p
		 JOIN matches m ON m.id = p.match_id
		 WHERE p.user_id = $1 AND m.round_id = $2
		 ORDER BY m.kickoff_at, m.id`,
		userID, roundID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list predictions", err)
	}
	defer rows.Close()
	return collectPredictions(rows)
}

// ListByMatch returns every prediction submitted for one match. Used by the
// scoring pipeline to compute rarity weights, and by the transparency digest
// after round lock.
func (r *PredictionRepository) ListByMatch(ctx context.Context, matchID string) ([]types.Prediction, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+predictionColumns+`
		 FROM predictions p
		 WHERE p.match_id = $1
		 ORDER BY p.user_id`,
		matchID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list predictions", err)
	}
	defer rows.Close()
	return collectPredictions(rows)
}

func collectPredictions(rows pgx.Rows) ([]types.Prediction, error) {
	var preds []types.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan prediction", err)
		}
		preds = append(preds, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate predictions", err)
	}
	return preds, nil
}

// UsersWithoutPrediction returns the emails of active users who have not
// submitted a prediction for any match of the round. Recipient list for the
// reminder job.
func (r *PredictionRepository) UsersWithoutPrediction(ctx context.Context, roundID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT u.email
		 FROM users u
		 WHERE u.active
		   AND NOT EXISTS (
		       SELECT 1
		       FROM predictions p
		       JOIN matches m ON m.id = p.match_id
		       WHERE p.user_id = u.id AND m.round_id = $1
		   )
		 ORDER BY u.email`,
		roundID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to find users without prediction", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan email", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate emails", err)
	}
	return emails, nil
}

// UpsertAnswer stores a questionnaire answer, replacing an earlier answer to
// the same question by the same user.
func (r *PredictionRepository) UpsertAnswer(ctx context.Context, a *types.QuestionnaireAnswer) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO questionnaire_answers (id, user_id, season_id, question_id, answer)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, question_id)
		 DO UPDATE SET answer = EXCLUDED.answer`,
		a.ID, a.UserID, a.SeasonID, a.QuestionID, a.Answer,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to store answer", err)
	}
	return nil
}

// ListAnswers returns all questionnaire answers for a season.
func (r *PredictionRepository) ListAnswers(ctx context.Context, seasonID string) ([]types.QuestionnaireAnswer, error) {
	rows, err := r.db.Query(ctx,
		`SELECT a.id, a.user_id, a.season_id, a.question_id, a.answer
		 FROM questionnaire_answers a
		 WHERE a.season_id = $1
		 ORDER BY a.user_id, a.question_id`,
		seasonID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list answers", err)
	}
	defer rows.Close()

	var answers []types.QuestionnaireAnswer
	for rows.Next() {
		var a types.QuestionnaireAnswer
		if err := rows.Scan(&a.ID, &a.UserID, &a.SeasonID, &a.QuestionID, &a.Answer); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan answer", err)
		}
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate answers", err)
	}
	return answers, nil
}

// ListResolutions returns the recorded correct answers for a season's
// questionnaire. Empty until an admin records the season outcome.
func (r *PredictionRepository) ListResolutions(ctx context.Context, seasonID string) ([]types.QuestionResolution, error) {
	rows, err := r.db.Query(ctx,
		`SELECT q.question_id, q.correct_answer, q.points
		 FROM question_resolutions q
		 WHERE q.season_id = $1
		 ORDER BY q.question_id`,
		seasonID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list resolutions", err)
	}
	defer rows.Close()

	var resolutions []types.QuestionResolution
	for rows.Next() {
		var q types.QuestionResolution
		if err := rows.Scan(&q.QuestionID, &q.CorrectAnswer, &q.Points); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan resolution", err)
		}
		resolutions = append(resolutions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate resolutions", err)
	}
	return resolutions, nil
}
