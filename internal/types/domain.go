// Package types defines the shared domain entities, error types, and
// cross-cutting interfaces for the TippSlottet platform.
package types

import "time"

// SeasonStatus describes the lifecycle state of a competition season.
type SeasonStatus string

const (
	SeasonActive   SeasonStatus = "active"
	SeasonComplete SeasonStatus = "complete"
)

// RoundStatus describes the lifecycle state of a prediction round.
// Rounds open for submissions, lock at kickoff of the first match, and are
// finalized once every match result is recorded and points are stored.
type RoundStatus string

const (
	RoundOpen      RoundStatus = "open"
	RoundLocked    RoundStatus = "locked"
	RoundFinalized RoundStatus = "finalized"
)

// MatchOutcome is the 1X2 classification of a match result or prediction.
type MatchOutcome string

const (
	OutcomeHome MatchOutcome = "home"
	OutcomeDraw MatchOutcome = "draw"
	OutcomeAway MatchOutcome = "away"
)

// Season is a full competition year containing an ordered set of rounds and
// one season-long questionnaire.
type Season struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Status      SeasonStatus `json:"status"`
	StartsAt    time.Time    `json:"starts_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// Round is one weekly batch of matches users predict on.
type Round struct {
	ID       string      `json:"id"`
	SeasonID string      `json:"season_id"`
	Number   int         `json:"number"`
	Status   RoundStatus `json:"status"`
	// Deadline is the submission cutoff; predictions after this are rejected.
	Deadline    time.Time  `json:"deadline"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
}

// Match is a single fixture within a round. Result scores are nil until the
// match has been played and the result recorded.
type Match struct {
	ID        string    `json:"id"`
	RoundID   string    `json:"round_id"`
	HomeTeam  string    `json:"home_team"`
	AwayTeam  string    `json:"away_team"`
	HomeScore *int      `json:"home_score,omitempty"`
	AwayScore *int      `json:"away_score,omitempty"`
	KickoffAt time.Time `json:"kickoff_at"`
}

// Finished reports whether the match has a recorded result.
func (m *Match) Finished() bool {
	return m.HomeScore != nil && m.AwayScore != nil
}

// Outcome returns the 1X2 classification of the recorded result.
// Only meaningful when Finished() is true.
func (m *Match) Outcome() MatchOutcome {
	return ClassifyOutcome(*m.HomeScore, *m.AwayScore)
}

// ClassifyOutcome maps a scoreline to its 1X2 outcome.
func ClassifyOutcome(home, away int) MatchOutcome {
	switch {
	case home > away:
		return OutcomeHome
	case home < away:
		return OutcomeAway
	default:
		return OutcomeDraw
	}
}

// Prediction is a user's submitted scoreline for one match.
type Prediction struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	MatchID     string    `json:"match_id"`
	HomeScore   int       `json:"home_score"`
	AwayScore   int       `json:"away_score"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Outcome returns the 1X2 classification of the predicted scoreline.
func (p *Prediction) Outcome() MatchOutcome {
	return ClassifyOutcome(p.HomeScore, p.AwayScore)
}

// QuestionnaireAnswer is a user's answer to one season-long question
// (e.g., "who wins the league"). Answers are scored when the season's
// resolutions are recorded.
type QuestionnaireAnswer struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	SeasonID   string `json:"season_id"`
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

// QuestionResolution records the correct answer and point value for one
// questionnaire question once the season outcome is known.
type QuestionResolution struct {
	QuestionID    string `json:"question_id"`
	CorrectAnswer string `json:"correct_answer"`
	Points        int    `json:"points"`
}

// MatchPoints is the stored scoring result for one user on one match.
// BasePoints covers outcome/exact-score scoring; DynamicPoints is the
// rarity-weighted bonus recomputed whenever the round is rescored.
type MatchPoints struct {
	UserID        string    `json:"user_id"`
	MatchID       string    `json:"match_id"`
	RoundID       string    `json:"round_id"`
	BasePoints    int       `json:"base_points"`
	DynamicPoints int       `json:"dynamic_points"`
	ComputedAt    time.Time `json:"computed_at"`
}

// Total returns the combined points for the match.
func (p MatchPoints) Total() int { return p.BasePoints + p.DynamicPoints }

// Standing is one row of the season table.
type Standing struct {
	Rank                int    `json:"rank"`
	UserID              string `json:"user_id"`
	DisplayName         string `json:"display_name"`
	RoundPoints         int    `json:"round_points"`
	QuestionnairePoints int    `json:"questionnaire_points"`
	TotalPoints         int    `json:"total_points"`
}

// HallOfFameEntry is the per-season winners snapshot written when the
// season-completion detector marks a season complete.
type HallOfFameEntry struct {
	SeasonID    string    `json:"season_id"`
	SeasonName  string    `json:"season_name"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	TotalPoints int       `json:"total_points"`
	Place       int       `json:"place"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// User is a whitelisted participant. Authentication itself is handled by the
// external identity provider; this record carries the whitelist and admin
// flags the service consults as its authorization oracle.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	IsAdmin     bool      `json:"is_admin"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// AuditEvent is one insert-only admin audit log entry.
type AuditEvent struct {
	ID         string         `json:"id"`
	ActorEmail string         `json:"actor_email"`
	Action     string         `json:"action"`
	TargetID   string         `json:"target_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// EmailType identifies the kind of outbound email for logging and monitoring.
type EmailType string

const (
	EmailReminder     EmailType = "reminder"
	EmailRoundSummary EmailType = "round_summary"
	EmailTransparency EmailType = "transparency_digest"
	EmailSeasonFinal  EmailType = "season_final"
)

// EmailOperation is one recorded step of an outbound email pipeline, written
// by the senders and aggregated by the monitoring dashboard. Recipient is
// stored masked.
type EmailOperation struct {
	ID            string    `json:"id"`
	OperationID   string    `json:"operation_id"`
	CorrelationID string    `json:"correlation_id"`
	EmailType     EmailType `json:"email_type"`
	Stage         string    `json:"stage"`
	Success       bool      `json:"success"`
	Recipient     string    `json:"recipient,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	DurationMS    int64     `json:"duration_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

// HealthStatus is the ordinal health classification used across monitoring.
// Statuses only escalate within one aggregation pass: unhealthy overrides
// degraded overrides healthy, never the reverse.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthUnknown   HealthStatus = "unknown"
)

// Escalate returns the more severe of the two statuses. HealthUnknown is
// treated as degraded for escalation purposes: a signal we could not read is
// not evidence of health. The result is always one of healthy, degraded, or
// unhealthy; unknown belongs to individual sections, never to an overall
// status.
func (s HealthStatus) Escalate(other HealthStatus) HealthStatus {
	winner := maxStatus(s, other)
	if winner == HealthUnknown {
		return HealthDegraded
	}
	return winner
}

func statusRank(s HealthStatus) int {
	switch s {
	case HealthUnhealthy:
		return 3
	case HealthDegraded, HealthUnknown:
		return 2
	default:
		return 1
	}
}

func maxStatus(a, b HealthStatus) HealthStatus {
	if statusRank(b) > statusRank(a) {
		return b
	}
	return a
}

// SendInput is the provider-agnostic outbound email payload.
type SendInput struct {
	From        EmailAddress
	To          []string
	Subject     string
	HTML        string
	ReplyTo     string
	ReferenceID string // internal operation id for provider-side correlation
}

// EmailAddress is a sender identity.
type EmailAddress struct {
	Address string
	Name    string
}
