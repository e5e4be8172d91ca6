package scheduler

import (
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/google/uuid"

	"tippslottet/internal/mailer"
	"tippslottet/internal/types"
)

// RecipientDB provides recipient lists for the email batches.
type RecipientDB interface {
	ActiveEmails(ctx context.Context) ([]string, error)
	UsersWithoutPrediction(ctx context.Context, roundID string) ([]string, error)
}

// RoundDB provides round, season, and match lookups for email content.
type RoundDB interface {
	GetRound(ctx context.Context, id string) (*types.Round, error)
	GetSeason(ctx context.Context, id string) (*types.Season, error)
	ListMatches(ctx context.Context, roundID string) ([]types.Match, error)
}

// StandingsDB provides point tables for email content.
type StandingsDB interface {
	RoundPoints(ctx context.Context, roundID string) ([]types.Standing, error)
}

// PredictionDB provides the predictions shown in the transparency digest.
type PredictionDB interface {
	ListByMatch(ctx context.Context, matchID string) ([]types.Prediction, error)
}

// OpsRecorder persists email operation records for the monitoring dashboard.
// Recording is best-effort; failures never abort a send.
type OpsRecorder interface {
	Record(ctx context.Context, op types.EmailOperation) error
}

// EmailService runs the outbound email batches. Every send goes through the
// rate limiter, every pipeline stage is logged through the mailer log
// service, and an operation record is written per recipient.
type EmailService struct {
	limiter     *mailer.Limiter
	logs        *mailer.LogService
	provider    types.EmailProvider
	recipients  RecipientDB
	rounds      RoundDB
	standings   StandingsDB
	predictions PredictionDB
	ops         OpsRecorder
	from        types.EmailAddress
	replyTo     string
	clock       types.Clock
}

// EmailServiceConfig collects the EmailService dependencies.
type EmailServiceConfig struct {
	Limiter     *mailer.Limiter
	Logs        *mailer.LogService
	Provider    types.EmailProvider
	Recipients  RecipientDB
	Rounds      RoundDB
	Standings   StandingsDB
	Predictions PredictionDB
	Ops         OpsRecorder
	From        types.EmailAddress
	ReplyTo     string
	Clock       types.Clock
}

// NewEmailService creates an EmailService.
func NewEmailService(cfg EmailServiceConfig) *EmailService {
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	return &EmailService{
		limiter:     cfg.Limiter,
		logs:        cfg.Logs,
		provider:    cfg.Provider,
		recipients:  cfg.Recipients,
		rounds:      cfg.Rounds,
		standings:   cfg.Standings,
		predictions: cfg.Predictions,
		ops:         cfg.Ops,
		from:        cfg.From,
		replyTo:     cfg.ReplyTo,
		clock:       clock,
	}
}

// SendRoundReminders emails every active user who has not submitted a
// prediction for the round. Returns sent and failed counts.
func (s *EmailService) SendRoundReminders(ctx context.Context, roundID string) (int, int, error) {
	round, err := s.rounds.GetRound(ctx, roundID)
	if err != nil {
		return 0, 0, err
	}
	if round.Status != types.RoundOpen {
		return 0, 0, types.NewAppError(types.ErrCodeConflictRoundLocked, "reminders only go out for open rounds", nil)
	}

	matches, err := s.rounds.ListMatches(ctx, roundID)
	if err != nil {
		return 0, 0, err
	}
	recipients, err := s.recipients.UsersWithoutPrediction(ctx, roundID)
	if err != nil {
		return 0, 0, err
	}

	html, err := s.render(reminderTmpl, reminderData{
		RoundNumber: round.Number,
		Deadline:    formatDeadline(round.Deadline),
		Matches:     matches,
	}, types.EmailReminder, roundID)
	if err != nil {
		return 0, 0, err
	}

	subject := fmt.Sprintf("TippSlottet: husk runde %d", round.Number)
	return s.sendBatch(ctx, types.EmailReminder, roundID, subject, html, recipients)
}

// SendRoundSummaries emails the round table to every active user once the
// round is finalized.
func (s *EmailService) SendRoundSummaries(ctx context.Context, roundID string) (int, int, error) {
	round, err := s.rounds.GetRound(ctx, roundID)
	if err != nil {
		return 0, 0, err
	}
	if round.Status != types.RoundFinalized {
		return 0, 0, types.NewAppError(types.ErrCodeConflictRoundLocked, "summaries require a finalized round", nil)
	}

	standings, err := s.standings.RoundPoints(ctx, roundID)
	if err != nil {
		return 0, 0, err
	}
	recipients, err := s.recipients.ActiveEmails(ctx)
	if err != nil {
		return 0, 0, err
	}

	html, err := s.render(roundSummaryTmpl, roundSummaryData{
		RoundNumber: round.Number,
		Standings:   standings,
	}, types.EmailRoundSummary, roundID)
	if err != nil {
		return 0, 0, err
	}

	subject := fmt.Sprintf("TippSlottet: resultater runde %d", round.Number)
	return s.sendBatch(ctx, types.EmailRoundSummary, roundID, subject, html, recipients)
}

// SendTransparencyDigest emails everyone's predictions for a locked round to
// all active users, so submissions cannot be quietly edited after the fact.
func (s *EmailService) SendTransparencyDigest(ctx context.Context, roundID string) (int, int, error) {
	round, err := s.rounds.GetRound(ctx, roundID)
	if err != nil {
		return 0, 0, err
	}
	if round.Status == types.RoundOpen {
		return 0, 0, types.NewAppError(types.ErrCodeConflictRoundLocked, "digest only goes out after round lock", nil)
	}

	matches, err := s.rounds.ListMatches(ctx, roundID)
	if err != nil {
		return 0, 0, err
	}

	data := transparencyData{RoundNumber: round.Number}
	for _, m := range matches {
		preds, err := s.predictions.ListByMatch(ctx, m.ID)
		if err != nil {
			return 0, 0, err
		}
		data.Matches = append(data.Matches, transparencyMatch{
			HomeTeam:    m.HomeTeam,
			AwayTeam:    m.AwayTeam,
			Predictions: preds,
		})
	}

	recipients, err := s.recipients.ActiveEmails(ctx)
	if err != nil {
		return 0, 0, err
	}

	html, err := s.render(transparencyTmpl, data, types.EmailTransparency, roundID)
	if err != nil {
		return 0, 0, err
	}

	subject := fmt.Sprintf("TippSlottet: alle tipp for runde %d", round.Number)
	return s.sendBatch(ctx, types.EmailTransparency, roundID, subject, html, recipients)
}

// SendSeasonFinal emails the hall-of-fame snapshot of a completed season to
// all active users. Called by the season-completion detector.
func (s *EmailService) SendSeasonFinal(ctx context.Context, season *types.Season, winners []types.HallOfFameEntry) (int, int, error) {
	recipients, err := s.recipients.ActiveEmails(ctx)
	if err != nil {
		return 0, 0, err
	}

	html, err := s.render(seasonFinalTmpl, seasonFinalData{
		SeasonName: season.Name,
		Winners:    winners,
	}, types.EmailSeasonFinal, "")
	if err != nil {
		return 0, 0, err
	}

	subject := fmt.Sprintf("TippSlottet: %s er avgjort", season.Name)
	return s.sendBatch(ctx, types.EmailSeasonFinal, "", subject, html, recipients)
}

// render executes the template with stage logging.
func (s *EmailService) render(tmpl *template.Template, data any, emailType types.EmailType, roundID string) (string, error) {
	logCtx := mailer.LogContext{
		EmailType:    emailType,
		RoundID:      roundID,
		TemplateName: tmpl.Name(),
	}
	start := s.clock.Now()

	html, err := renderTemplate(tmpl, data)
	if err != nil {
		s.logs.LogOperationError(mailer.StageTemplateRender, logCtx, err)
		return "", err
	}

	s.logs.LogTemplateRendering(logCtx, s.clock.Now().Sub(start), len(html))
	return html, nil
}

// sendBatch dispatches one email per recipient through the rate limiter.
// Individual send failures are caught per item so a bounced address never
// aborts the rest of the batch; the failure count and recorded operations
// carry the outcome. The returned error is reserved for batch-level faults.
func (s *EmailService) sendBatch(ctx context.Context, emailType types.EmailType, roundID, subject, html string, recipients []string) (int, int, error) {
	batchID := uuid.New().String()
	total := len(recipients)
	logCtx := mailer.LogContext{
		EmailType: emailType,
		RoundID:   roundID,
		BatchID:   batchID,
	}

	s.logs.LogOperationStart(mailer.StageDataFetch, logCtx)
	if total == 0 {
		s.logs.LogOperationComplete(mailer.StageComplete, logCtx)
		return 0, 0, nil
	}

	sent := 0
	failed := 0

	_, err := mailer.Process(ctx, s.limiter, recipients,
		func(ctx context.Context, recipient string) (string, error) {
			if ok, reasons := validRecipient(recipient); !ok {
				s.logs.LogEmailValidation(mailer.LogContext{
					EmailType:      emailType,
					RoundID:        roundID,
					BatchID:        batchID,
					RecipientEmail: recipient,
				}, false, reasons)
				failed++
				return "", nil
			}

			opID := uuid.New().String()
			itemCtx := mailer.LogContext{
				OperationID:    opID,
				EmailType:      emailType,
				RoundID:        roundID,
				BatchID:        batchID,
				RecipientEmail: recipient,
			}

			start := s.clock.Now()
			messageID, sendErr := s.provider.Send(ctx, types.SendInput{
				From:        s.from,
				To:          []string{recipient},
				Subject:     subject,
				HTML:        html,
				ReplyTo:     s.replyTo,
				ReferenceID: opID,
			})
			duration := s.clock.Now().Sub(start)

			if sendErr != nil {
				s.logs.LogOperationError(mailer.StageEmailSend, itemCtx, sendErr)
				s.recordOp(ctx, opID, batchID, emailType, recipient, duration, sendErr)
				failed++
				// Swallowed so the batch keeps going; the count and the
				// operation record carry the failure.
				return "", nil
			}

			s.logs.LogEmailSending(itemCtx, messageID, 0)
			s.recordOp(ctx, opID, batchID, emailType, recipient, duration, nil)
			sent++
			return messageID, nil
		},
		func(completed, total int) {
			s.logs.LogBatchProgress(logCtx, completed, total)
		},
	)
	if err != nil {
		// Only infrastructure faults (context cancelled, limiter shutdown)
		// surface here; per-recipient errors are already counted.
		return sent, failed, err
	}

	s.logs.LogOperationComplete(mailer.StageComplete, logCtx)
	return sent, failed, nil
}

func (s *EmailService) recordOp(ctx context.Context, opID, batchID string, emailType types.EmailType, recipient string, duration time.Duration, sendErr error) {
	op := types.EmailOperation{
		ID:            uuid.New().String(),
		OperationID:   opID,
		CorrelationID: s.logs.CorrelationID(),
		EmailType:     emailType,
		Stage:         string(mailer.StageEmailSend),
		Success:       sendErr == nil,
		Recipient:     mailer.MaskEmail(recipient),
		DurationMS:    duration.Milliseconds(),
		CreatedAt:     s.clock.Now(),
	}
	if sendErr != nil {
		op.ErrorMessage = sendErr.Error()
	}
	if err := s.ops.Record(ctx, op); err != nil {
		s.logs.LogOperationError(mailer.StageComplete, mailer.LogContext{
			OperationID: opID,
			BatchID:     batchID,
			EmailType:   emailType,
		}, err)
	}
}

func validRecipient(email string) (bool, []string) {
	var reasons []string
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		reasons = append(reasons, "address must contain a local part and a domain")
	}
	if strings.ContainsAny(email, " \t\n") {
		reasons = append(reasons, "address must not contain whitespace")
	}
	return len(reasons) == 0, reasons
}
