package db

import (
	"context"
	"time"

	"tippslottet/internal/types"
)

// PointsRepository provides data access for match points, questionnaire
// points, standings, and the hall of fame.
type PointsRepository struct {
	db DBTX
}

// NewPointsRepository creates a new PointsRepository backed by the given
// database connection (pool or transaction).
func NewPointsRepository(db DBTX) *PointsRepository {
	return &PointsRepository{db: db}
}

// UpsertMatchPoints stores the computed points for one user on one match.
// Recalculation overwrites earlier rows, so rescoring a round is idempotent.
func (r *PointsRepository) UpsertMatchPoints(ctx context.Context, p types.MatchPoints) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO match_points (user_id, match_id, round_id, base_points, dynamic_points, computed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, match_id)
		 DO UPDATE SET base_points = EXCLUDED.base_points,
		               dynamic_points = EXCLUDED.dynamic_points,
		               computed_at = EXCLUDED.computed_at`,
		p.UserID, p.MatchID, p.RoundID, p.BasePoints, p.DynamicPoints, p.ComputedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to store match points", err)
	}
	return nil
}

// UpsertQuestionnairePoints stores the questionnaire score for one user in a
// season.
func (r *PointsRepository) UpsertQuestionnairePoints(ctx context.Context, seasonID, userID string, points int, computedAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO questionnaire_points (season_id, user_id, points, computed_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (season_id, user_id)
		 DO UPDATE SET points = EXCLUDED.points, computed_at = EXCLUDED.computed_at`,
		seasonID, userID, points, computedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to store questionnaire points", err)
	}
	return nil
}

// Standings computes the season table: total match points plus questionnaire
// points per active user, ordered by total descending. Ties share a rank
// (competition ranking: 1, 1, 3).
func (r *PointsRepository) Standings(ctx context.Context, seasonID string) ([]types.Standing, error) {
	rows, err := r.db.Query(ctx,
		`SELECT u.id,
		        u.display_name,
		        COALESCE(mp.points, 0) AS round_points,
		        COALESCE(qp.points, 0) AS questionnaire_points,
		        COALESCE(mp.points, 0) + COALESCE(qp.points, 0) AS total_points,
		        RANK() OVER (ORDER BY COALESCE(mp.points, 0) + COALESCE(qp.points, 0) DESC) AS rank
		 FROM users u
		 LEFT JOIN (
		     SELECT p.user_id, SUM(p.base_points + p.dynamic_points) AS points
		     FROM match_points p
		     JOIN rounds r ON r.id = p.round_id
		     WHERE r.season_id = $1
		     GROUP BY p.user_id
		 ) mp ON mp.user_id = u.id
		 LEFT JOIN questionnaire_points qp ON qp.user_id = u.id AND qp.season_id = $1
		 WHERE u.active
		 ORDER BY total_points DESC, u.display_name`,
		seasonID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to compute standings", err)
	}
	defer rows.Close()

	var standings []types.Standing
	for rows.Next() {
		var s types.Standing
		if err := rows.Scan(&s.UserID, &s.DisplayName, &s.RoundPoints, &s.QuestionnairePoints, &s.TotalPoints, &s.Rank); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan standing", err)
		}
		standings = append(standings, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate standings", err)
	}
	return standings, nil
}

// RoundPoints returns the per-user point totals for one round, ordered by
// total descending. Used by the round summary email.
func (r *PointsRepository) RoundPoints(ctx context.Context, roundID string) ([]types.Standing, error) {
	rows, err := r.db.Query(ctx,
		`SELECT u.id,
		        u.display_name,
		        COALESCE(SUM(p.base_points + p.dynamic_points), 0) AS points
		 FROM users u
		 LEFT JOIN match_points p ON p.user_id = u.id AND p.round_id = $1
		 WHERE u.active
		 GROUP BY u.id, u.display_name
		 ORDER BY points DESC, u.display_name`,
		roundID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to compute round points", err)
	}
	defer rows.Close()

	var standings []types.Standing
	rank := 0
	for rows.Next() {
		var s types.Standing
		if err := rows.Scan(&s.UserID, &s.DisplayName, &s.RoundPoints); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan round points", err)
		}
		rank++
		s.Rank = rank
		s.TotalPoints = s.RoundPoints
		standings = append(standings, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate round points", err)
	}
	return standings, nil
}

// WriteHallOfFame stores the winners snapshot for a completed season.
// Existing entries for the season are replaced so a re-run of the detector
// cannot duplicate rows.
func (r *PointsRepository) WriteHallOfFame(ctx context.Context, entries []types.HallOfFameEntry) error {
	if len(entries) == 0 {
		return nil
	}
	seasonID := entries[0].SeasonID

	if _, err := r.db.Exec(ctx,
		`DELETE FROM hall_of_fame WHERE season_id = $1`, seasonID,
	); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to clear hall of fame", err)
	}

	for _, e := range entries {
		if _, err := r.db.Exec(ctx,
			`INSERT INTO hall_of_fame (season_id, season_name, user_id, display_name, total_points, place, recorded_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			e.SeasonID, e.SeasonName, e.UserID, e.DisplayName, e.TotalPoints, e.Place, e.RecordedAt,
		); err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to write hall of fame entry", err)
		}
	}
	return nil
}

// HallOfFame returns the winners of all completed seasons, newest first.
func (r *PointsRepository) HallOfFame(ctx context.Context) ([]types.HallOfFameEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT h.season_id, h.season_name, h.user_id, h.display_name, h.total_points, h.place, h.recorded_at
		 FROM hall_of_fame h
		 ORDER BY h.recorded_at DESC, h.place`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list hall of fame", err)
	}
	defer rows.Close()

	var entries []types.HallOfFameEntry
	for rows.Next() {
		var e types.HallOfFameEntry
		if err := rows.Scan(&e.SeasonID, &e.SeasonName, &e.UserID, &e.DisplayName, &e.TotalPoints, &e.Place, &e.RecordedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan hall of fame entry", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate hall of fame", err)
	}
	return entries, nil
}
