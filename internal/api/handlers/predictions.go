// Package handlers contains the HTTP handler implementations for the
// TippSlottet API. Each handler depends on narrow, locally defined interfaces
// so tests can inject fakes without touching the concrete repositories.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"tippslottet/internal/core"
	"tippslottet/internal/types"
)

// PredictionUserDB resolves the authenticated identity to a participant.
type PredictionUserDB interface {
	GetByEmail(ctx context.Context, email string) (*types.User, error)
}

// PredictionRoundDB provides round and season lookups for deadline checks.
type PredictionRoundDB interface {
	GetRound(ctx context.Context, id string) (*types.Round, error)
	GetSeason(ctx context.Context, id string) (*types.Season, error)
	ListMatches(ctx context.Context, roundID string) ([]types.Match, error)
}

// PredictionStore persists predictions and questionnaire answers.
type PredictionStore interface {
	Upsert(ctx context.Context, p *types.Prediction) error
	ListByUserAndRound(ctx context.Context, userID, roundID string) ([]types.Prediction, error)
	UpsertAnswer(ctx context.Context, a *types.QuestionnaireAnswer) error
}

// SubmitPredictionRequest is the body for POST /v1/rounds/{roundID}/predictions.
type SubmitPredictionRequest struct {
	MatchID   string `json:"match_id" validate:"required"`
	HomeScore int    `json:"home_score" validate:"gte=0,lte=99"`
	AwayScore int    `json:"away_score" validate:"gte=0,lte=99"`
}

// SubmitAnswerRequest is the body for POST /v1/questionnaire/answers.
type SubmitAnswerRequest struct {
	SeasonID   string `json:"season_id" validate:"required"`
	QuestionID string `json:"question_id" validate:"required"`
	Answer     string `json:"answer" validate:"required,max=200"`
}

// PredictionHandler covers prediction submission and retrieval for the
// authenticated participant.
type PredictionHandler struct {
	users       PredictionUserDB
	rounds      PredictionRoundDB
	predictions PredictionStore
	validator   *core.Validator
	logger      *slog.Logger
	clock       types.Clock
}

// NewPredictionHandler creates a PredictionHandler. A nil clock defaults to
// real time.
func NewPredictionHandler(users PredictionUserDB, rounds PredictionRoundDB, predictions PredictionStore, validator *core.Validator, logger *slog.Logger, clock types.Clock) *PredictionHandler {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &PredictionHandler{
		users:       users,
		rounds:      rounds,
		predictions: predictions,
		validator:   validator,
		logger:      logger,
		clock:       clock,
	}
}

// RegisterRoutes mounts the prediction endpoints on the authenticated user
// group.
func (h *PredictionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/rounds/{roundID}/predictions", h.SubmitPrediction)
	r.Get("/rounds/{roundID}/predictions", h.ListMyPredictions)
	r.Post("/questionnaire/answers", h.SubmitAnswer)
}

// SubmitPrediction stores or replaces the caller's prediction for one match.
// The round must still be open and before its deadline, and the match must
// belong to the round.
func (h *PredictionHandler) SubmitPrediction(w http.ResponseWriter, r *http.Request) {
	user, err := h.actor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req SubmitPredictionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	roundID := chi.URLParam(r, "roundID")
	round, err := h.rounds.GetRound(r.Context(), roundID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	now := h.clock.Now()
	if round.Status != types.RoundOpen || !now.Before(round.Deadline) {
		core.Error(w, r, types.NewAppError(types.ErrCodeConflictRoundLocked,
			"the submission deadline for this round has passed", nil))
		return
	}

	if err := h.matchBelongsToRound(r.Context(), req.MatchID, roundID); err != nil {
		core.Error(w, r, err)
		return
	}

	pred := &types.Prediction{
		ID:          uuid.New().String(),
		UserID:      user.ID,
		MatchID:     req.MatchID,
		HomeScore:   req.HomeScore,
		AwayScore:   req.AwayScore,
		SubmittedAt: now,
	}
	if err := h.predictions.Upsert(r.Context(), pred); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.Info("prediction submitted",
		slog.String("user_id", user.ID),
		slog.String("match_id", req.MatchID),
		slog.String("round_id", roundID),
	)
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: pred})
}

// ListMyPredictions returns the caller's predictions for one round.
func (h *PredictionHandler) ListMyPredictions(w http.ResponseWriter, r *http.Request) {
	user, err := h.actor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	roundID := chi.URLParam(r, "roundID")
	preds, err := h.predictions.ListByUserAndRound(r.Context(), user.ID, roundID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: preds})
}

// SubmitAnswer stores or replaces one questionnaire answer. Answers are only
// accepted while the season is active.
func (h *PredictionHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	user, err := h.actor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req SubmitAnswerRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	season, err := h.rounds.GetSeason(r.Context(), req.SeasonID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if season.Status != types.SeasonActive {
		core.Error(w, r, types.NewAppError(types.ErrCodeConflictSeasonComplete,
			"the season is complete; questionnaire answers are locked", nil))
		return
	}

	answer := &types.QuestionnaireAnswer{
		ID:         uuid.New().String(),
		UserID:     user.ID,
		SeasonID:   req.SeasonID,
		QuestionID: req.QuestionID,
		Answer:     req.Answer,
	}
	if err := h.predictions.UpsertAnswer(r.Context(), answer); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: answer})
}

// actor resolves the authenticated email from the request context to the
// participant record.
func (h *PredictionHandler) actor(r *http.Request) (*types.User, error) {
	email := types.GetActorEmail(r.Context())
	if email == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenMissing, "authenticated identity is required", nil)
	}
	return h.users.GetByEmail(r.Context(), email)
}

func (h *PredictionHandler) matchBelongsToRound(ctx context.Context, matchID, roundID string) error {
	matches, err := h.rounds.ListMatches(ctx, roundID)
	if err != nil {
		return err
	}
	for i := range matches {
		if matches[i].ID == matchID {
			return nil
		}
	}
	return types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
		"match does not belong to this round", nil,
		map[string]any{"match_id": matchID, "round_id": roundID})
}
