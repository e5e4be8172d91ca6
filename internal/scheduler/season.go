package scheduler

import (
	"context"
	"fmt"
	"time"

	"tippslottet/internal/types"
)

// hallOfFamePlaces is how many top standings are snapshotted per season.
const hallOfFamePlaces = 3

// SeasonDB provides the season lifecycle queries for the completion detector.
type SeasonDB interface {
	ActiveSeasons(ctx context.Context) ([]types.Season, error)
	UnfinalizedRoundCount(ctx context.Context, seasonID string) (int, error)
	MarkSeasonComplete(ctx context.Context, id string, completedAt time.Time) (bool, error)
}

// SeasonStandingsDB provides the final table and hall-of-fame persistence.
type SeasonStandingsDB interface {
	Standings(ctx context.Context, seasonID string) ([]types.Standing, error)
	WriteHallOfFame(ctx context.Context, entries []types.HallOfFameEntry) error
}

// FinalNotifier dispatches the season-final email batch. Satisfied by
// EmailService; nil disables notifications (job-runner dry runs).
type FinalNotifier interface {
	SendSeasonFinal(ctx context.Context, season *types.Season, winners []types.HallOfFameEntry) (int, int, error)
}

// SeasonService detects completed seasons and writes their hall-of-fame
// snapshots.
type SeasonService struct {
	seasons   SeasonDB
	standings SeasonStandingsDB
	notifier  FinalNotifier
	logger    types.Logger
}

// NewSeasonService creates a SeasonService. notifier may be nil to skip the
// final email batch.
func NewSeasonService(seasons SeasonDB, standings SeasonStandingsDB, notifier FinalNotifier, logger types.Logger) *SeasonService {
	return &SeasonService{
		seasons:   seasons,
		standings: standings,
		notifier:  notifier,
		logger:    logger,
	}
}

// DetectSeasonCompletion checks every active season and completes the ones
// whose rounds are all finalized: the season is marked complete, the top
// standings become the hall-of-fame snapshot, and the final email batch goes
// out. Returns the number of seasons completed in this run.
//
// The detector is idempotent: completing a season is a guarded state
// transition, so a season completed by an earlier or concurrent run is
// skipped without side effects. Failures on one season are logged and the
// remaining seasons are still checked.
func (s *SeasonService) DetectSeasonCompletion(ctx context.Context, now time.Time) (int, error) {
	seasons, err := s.seasons.ActiveSeasons(ctx)
	if err != nil {
		return 0, err
	}

	completed := 0
	var firstErr error
	for i := range seasons {
		season := &seasons[i]

		done, err := s.completeIfReady(ctx, season, now)
		if err != nil {
			s.logger.Error("season completion failed",
				"season_id", season.ID, "error", err.Error())
			if firstErr == nil {
				firstErr = fmt.Errorf("season %s: %w", season.ID, err)
			}
			continue
		}
		if done {
			completed++
		}
	}

	s.logger.Info("season completion pass finished",
		"checked", len(seasons), "completed", completed)
	return completed, firstErr
}

func (s *SeasonService) completeIfReady(ctx context.Context, season *types.Season, now time.Time) (bool, error) {
	remaining, err := s.seasons.UnfinalizedRoundCount(ctx, season.ID)
	if err != nil {
		return false, err
	}
	if remaining > 0 {
		return false, nil
	}

	transitioned, err := s.seasons.MarkSeasonComplete(ctx, season.ID, now)
	if err != nil {
		return false, err
	}
	if !transitioned {
		// Another run got here first.
		return false, nil
	}

	standings, err := s.standings.Standings(ctx, season.ID)
	if err != nil {
		return false, err
	}

	winners := buildHallOfFame(season, standings, now)
	if err := s.standings.WriteHallOfFame(ctx, winners); err != nil {
		return false, err
	}

	s.logger.Info("season completed",
		"season_id", season.ID, "season_name", season.Name, "winners", len(winners))

	if s.notifier != nil {
		sent, failed, err := s.notifier.SendSeasonFinal(ctx, season, winners)
		if err != nil {
			// The season is already complete and snapshotted; a failed email
			// batch is reported but does not roll anything back.
			s.logger.Error("season final emails failed",
				"season_id", season.ID, "sent", sent, "failed", failed, "error", err.Error())
		}
	}
	return true, nil
}

// buildHallOfFame takes the top standings, keeping everyone tied into the
// last place.
func buildHallOfFame(season *types.Season, standings []types.Standing, now time.Time) []types.HallOfFameEntry {
	var entries []types.HallOfFameEntry
	for _, st := range standings {
		if st.Rank > hallOfFamePlaces {
			break
		}
		entries = append(entries, types.HallOfFameEntry{
			SeasonID:    season.ID,
			SeasonName:  season.Name,
			UserID:      st.UserID,
			DisplayName: st.DisplayName,
			TotalPoints: st.TotalPoints,
			Place:       st.Rank,
			RecordedAt:  now,
		})
	}
	return entries
}
