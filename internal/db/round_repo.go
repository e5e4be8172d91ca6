package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"tippslottet/internal/types"
)

// RoundRepository provides data access for seasons, rounds, and matches.
type RoundRepository struct {
	db DBTX
}

// NewRoundRepository creates a new RoundRepository backed by the given
// database connection (pool or transaction).
func NewRoundRepository(db DBTX) *RoundRepository {
	return &RoundRepository{db: db}
}

const seasonColumns = `s.id, s.name, s.status, s.starts_at, s.completed_at`

func scanSeason(row pgx.Row) (*types.Season, error) {
	var s types.Season
	if err := row.Scan(&s.ID, &s.Name, &s.Status, &s.StartsAt, &s.CompletedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

const roundColumns = `r.id, r.season_id, r.number, r.status, r.deadline, r.finalized_at`

func scanRound(row pgx.Row) (*types.Round, error) {
	var r types.Round
	if err := row.Scan(&r.ID, &r.SeasonID, &r.Number, &r.Status, &r.Deadline, &r.FinalizedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

const matchColumns = `m.id, m.round_id, m.home_team, m.away_team, m.home_score, m.away_score, m.kickoff_at`

func scanMatch(row pgx.Row) (*types.Match, error) {
	var m types.Match
	if err := row.Scan(&m.ID, &m.RoundID, &m.HomeTeam, &m.AwayTeam, &m.HomeScore, &m.AwayScore, &m.KickoffAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// ActiveSeasons returns all seasons still in the active state, checked by the
// season-completion detector.
func (r *RoundRepository) ActiveSeasons(ctx context.Context) ([]types.Season, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+seasonColumns+`
		 FROM seasons s
		 WHERE s.status = $1
		 ORDER BY s.starts_at`,
		types.SeasonActive,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list active seasons", err)
	}
	defer rows.Close()

	var seasons []types.Season
	for rows.Next() {
		s, err := scanSeason(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan season", err)
		}
		seasons = append(seasons, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate seasons", err)
	}
	return seasons, nil
}

// GetSeason retrieves one season by id.
func (r *RoundRepository) GetSeason(ctx context.Context, id string) (*types.Season, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+seasonColumns+` FROM seasons s WHERE s.id = $1`,
		id,
	)
	s, err := scanSeason(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSeason, "season not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve season", err)
	}
	return s, nil
}

// MarkSeasonComplete transitions a season from active to complete. The status
// guard makes the detector idempotent under concurrent runs: only one caller
// observes RowsAffected == 1.
func (r *RoundRepository) MarkSeasonComplete(ctx context.Context, id string, completedAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE seasons
		 SET status = $2, completed_at = $3
		 WHERE id = $1 AND status = $4`,
		id, types.SeasonComplete, completedAt, types.SeasonActive,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to mark season complete", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListRounds returns all rounds of a season in round-number order.
func (r *RoundRepository) ListRounds(ctx context.Context, seasonID string) ([]types.Round, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+roundColumns+`
		 FROM rounds r
		 WHERE r.season_id = $1
		 ORDER BY r.number`,
		seasonID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list rounds", err)
	}
	defer rows.Close()

	var rounds []types.Round
	for rows.Next() {
		rd, err := scanRound(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan round", err)
		}
		rounds = append(rounds, *rd)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate rounds", err)
	}
	return rounds, nil
}

// GetRound retrieves one round by id.
func (r *RoundRepository) GetRound(ctx context.Context, id string) (*types.Round, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+roundColumns+` FROM rounds r WHERE r.id = $1`,
		id,
	)
	rd, err := scanRound(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundRound, "round not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve round", err)
	}
	return rd, nil
}

// OpenRound returns the single round currently open for submissions in the
// season, or ErrCodeNotFoundRound when none is open.
func (r *RoundRepository) OpenRound(ctx context.Context, seasonID string) (*types.Round, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+roundColumns+`
		 FROM rounds r
		 WHERE r.season_id = $1 AND r.status = $2
		 ORDER BY r.number
		 LIMIT 1`,
		seasonID, types.RoundOpen,
	)
	rd, err := scanRound(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundRound, "no open round", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve open round", err)
	}
	return rd, nil
}

// SetRoundStatus transitions a round's lifecycle state. finalizedAt is only
// stored for the finalized status; pass the zero value otherwise.
func (r *RoundRepository) SetRoundStatus(ctx context.Context, id string, status types.RoundStatus, finalizedAt time.Time) error {
	var finalized *time.Time
	if status == types.RoundFinalized && !finalizedAt.IsZero() {
		finalized = &finalizedAt
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE rounds SET status = $2, finalized_at = $3 WHERE id = $1`,
		id, status, finalized,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update round status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundRound, "round not found", nil)
	}
	return nil
}

// UnfinalizedRoundCount returns how many rounds of the season are not yet
// finalized. Zero means the season is ready for completion.
func (r *RoundRepository) UnfinalizedRoundCount(ctx context.Context, seasonID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM rounds WHERE season_id = $1 AND status <> $2`,
		seasonID, types.RoundFinalized,
	).Scan(&n)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count unfinalized rounds", err)
	}
	return n, nil
}

// ListMatches returns all matches of a round in kickoff order.
func (r *RoundRepository) ListMatches(ctx context.Context, roundID string) ([]types.Match, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+matchColumns+`
		 FROM matches m
		 WHERE m.round_id = $1
		 ORDER BY m.kickoff_at, m.id`,
		roundID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list matches", err)
	}
	defer rows.Close()

	var matches []types.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan match", err)
		}
		matches = append(matches, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate matches", err)
	}
	return matches, nil
}

// RecordResult stores the final score of a match.
func (r *RoundRepository) RecordResult(ctx context.Context, matchID string, homeScore, awayScore int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE matches SET home_score = $2, away_score = $3 WHERE id = $1`,
		matchID, homeScore, awayScore,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record result", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundRound, "match not found", nil)
	}
	return nil
}
