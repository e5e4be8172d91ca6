package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tippslottet/internal/core"
	"tippslottet/internal/types"
)

// RoundsDB provides season and round listings for the read endpoints.
type RoundsDB interface {
	ActiveSeasons(ctx context.Context) ([]types.Season, error)
	ListRounds(ctx context.Context, seasonID string) ([]types.Round, error)
	GetRound(ctx context.Context, id string) (*types.Round, error)
	OpenRound(ctx context.Context, seasonID string) (*types.Round, error)
	ListMatches(ctx context.Context, roundID string) ([]types.Match, error)
}

// TablesDB provides the computed point tables.
type TablesDB interface {
	Standings(ctx context.Context, seasonID string) ([]types.Standing, error)
	RoundPoints(ctx context.Context, roundID string) ([]types.Standing, error)
	HallOfFame(ctx context.Context) ([]types.HallOfFameEntry, error)
}

// TransparencyDB provides everyone's predictions for the transparency page.
type TransparencyDB interface {
	ListByMatch(ctx context.Context, matchID string) ([]types.Prediction, error)
}

// RoundDetail is the round payload with its matches inlined.
type RoundDetail struct {
	*types.Round
	Matches []types.Match `json:"matches"`
}

// TransparencyMatch is one match with all submitted predictions.
type TransparencyMatch struct {
	Match       types.Match        `json:"match"`
	Predictions []types.Prediction `json:"predictions"`
}

// RoundHandler serves the public read surface: seasons, rounds, standings,
// the hall of fame, and the transparency page.
type RoundHandler struct {
	rounds      RoundsDB
	tables      TablesDB
	predictions TransparencyDB
	logger      *slog.Logger
}

// NewRoundHandler creates a RoundHandler.
func NewRoundHandler(rounds RoundsDB, tables TablesDB, predictions TransparencyDB, logger *slog.Logger) *RoundHandler {
	return &RoundHandler{
		rounds:      rounds,
		tables:      tables,
		predictions: predictions,
		logger:      logger,
	}
}

// RegisterRoutes mounts the read endpoints on the public group.
func (h *RoundHandler) RegisterRoutes(r chi.Router) {
	r.Get("/seasons", h.ListSeasons)
	r.Get("/seasons/{seasonID}/rounds", h.ListRounds)
	r.Get("/seasons/{seasonID}/rounds/open", h.OpenRound)
	r.Get("/seasons/{seasonID}/standings", h.Standings)
	r.Get("/rounds/{roundID}", h.GetRound)
	r.Get("/rounds/{roundID}/points", h.RoundPoints)
	r.Get("/rounds/{roundID}/transparency", h.Transparency)
	r.Get("/hall-of-fame", h.HallOfFame)
}

// ListSeasons returns the active seasons.
func (h *RoundHandler) ListSeasons(w http.ResponseWriter, r *http.Request) {
	seasons, err := h.rounds.ActiveSeasons(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: seasons})
}

// ListRounds returns all rounds of a season.
func (h *RoundHandler) ListRounds(w http.ResponseWriter, r *http.Request) {
	rounds, err := h.rounds.ListRounds(r.Context(), chi.URLParam(r, "seasonID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: rounds})
}

// OpenRound returns the round currently accepting predictions, with its
// matches. 404 when nothing is open.
func (h *RoundHandler) OpenRound(w http.ResponseWriter, r *http.Request) {
	round, err := h.rounds.OpenRound(r.Context(), chi.URLParam(r, "seasonID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	matches, err := h.rounds.ListMatches(r.Context(), round.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: RoundDetail{Round: round, Matches: matches}})
}

// GetRound returns one round with its matches.
func (h *RoundHandler) GetRound(w http.ResponseWriter, r *http.Request) {
	roundID := chi.URLParam(r, "roundID")
	round, err := h.rounds.GetRound(r.Context(), roundID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	matches, err := h.rounds.ListMatches(r.Context(), roundID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: RoundDetail{Round: round, Matches: matches}})
}

// Standings returns the ranked season table.
func (h *RoundHandler) Standings(w http.ResponseWriter, r *http.Request) {
	standings, err := h.tables.Standings(r.Context(), chi.URLParam(r, "seasonID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: standings})
}

// RoundPoints returns the per-round point table.
func (h *RoundHandler) RoundPoints(w http.ResponseWriter, r *http.Request) {
	points, err := h.tables.RoundPoints(r.Context(), chi.URLParam(r, "roundID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: points})
}

// HallOfFame returns the per-season winners snapshots, newest first.
func (h *RoundHandler) HallOfFame(w http.ResponseWriter, r *http.Request) {
	entries, err := h.tables.HallOfFame(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: entries})
}

// Transparency returns everyone's predictions for a round. Available only
// after the round locks so open submissions stay private.
func (h *RoundHandler) Transparency(w http.ResponseWriter, r *http.Request) {
	roundID := chi.URLParam(r, "roundID")
	round, err := h.rounds.GetRound(r.Context(), roundID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if round.Status == types.RoundOpen {
		core.Error(w, r, types.NewAppError(types.ErrCodeConflictRoundLocked,
			"predictions become public after the round locks", nil))
		return
	}

	matches, err := h.rounds.ListMatches(r.Context(), roundID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	result := make([]TransparencyMatch, 0, len(matches))
	for _, m := range matches {
		preds, err := h.predictions.ListByMatch(r.Context(), m.ID)
		if err != nil {
			core.Error(w, r, err)
			return
		}
		result = append(result, TransparencyMatch{Match: m, Predictions: preds})
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: result})
}
