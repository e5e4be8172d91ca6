package db

import "context"

// RecipientDirectory combines the user and prediction repositories into the
// recipient lists the email batches need: the full active roster for
// summaries and digests, and the not-yet-predicted subset for reminders.
type RecipientDirectory struct {
	users       *UserRepository
	predictions *PredictionRepository
}

// NewRecipientDirectory creates a RecipientDirectory over the two
// repositories.
func NewRecipientDirectory(users *UserRepository, predictions *PredictionRepository) *RecipientDirectory {
	return &RecipientDirectory{users: users, predictions: predictions}
}

// ActiveEmails returns the addresses of every active whitelist member.
func (d *RecipientDirectory) ActiveEmails(ctx context.Context) ([]string, error) {
	return d.users.ActiveEmails(ctx)
}

// UsersWithoutPrediction returns the addresses of active members who have not
// submitted a prediction for the round.
func (d *RecipientDirectory) UsersWithoutPrediction(ctx context.Context, roundID string) ([]string, error) {
	return d.predictions.UsersWithoutPrediction(ctx, roundID)
}
