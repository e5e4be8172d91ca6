package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tippslottet/internal/scheduler"
)

// The directory is what the composition root hands the email service.
var _ scheduler.RecipientDB = (*RecipientDirectory)(nil)

func TestRecipientDirectory_ActiveEmails(t *testing.T) {
	userDB := new(mockDBTX)
	predictionDB := new(mockDBTX)
	dir := NewRecipientDirectory(NewUserRepository(userDB), NewPredictionRepository(predictionDB))

	rows := newMockRows([][]any{
		{"anna@example.no"},
		{"bjorn@example.no"},
	})
	userDB.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	emails, err := dir.ActiveEmails(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"anna@example.no", "bjorn@example.no"}, emails)
	predictionDB.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecipientDirectory_UsersWithoutPrediction(t *testing.T) {
	userDB := new(mockDBTX)
	predictionDB := new(mockDBTX)
	dir := NewRecipientDirectory(NewUserRepository(userDB), NewPredictionRepository(predictionDB))

	rows := newMockRows([][]any{
		{"sigrid@example.no"},
	})
	predictionDB.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	emails, err := dir.UsersWithoutPrediction(context.Background(), "round_7")
	require.NoError(t, err)
	assert.Equal(t, []string{"sigrid@example.no"}, emails)
	userDB.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything)
}
