package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tippslottet/internal/types"
)

func TestUserRepository_GetByEmail_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)
	ctx := context.Background()

	created := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = "user_1"
			*dest[1].(*string) = "claus@example.no"
			*dest[2].(*string) = "Claus"
			*dest[3].(*bool) = false
			*dest[4].(*bool) = true
			*dest[5].(*time.Time) = created
			return nil
		},
	}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"claus@example.no"}).Return(row)

	u, err := repo.GetByEmail(ctx, "claus@example.no")
	require.NoError(t, err)
	assert.Equal(t, "user_1", u.ID)
	assert.Equal(t, "Claus", u.DisplayName)
	assert.True(t, u.Active)
	assert.False(t, u.IsAdmin)

	db.AssertExpectations(t)
}

func TestUserRepository_GetByEmail_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)
	ctx := context.Background()

	row := &mockRow{scanErr: pgx.ErrNoRows}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"ghost@example.no"}).Return(row)

	_, err := repo.GetByEmail(ctx, "ghost@example.no")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundUser, appErr.Code)
}

func TestUserRepository_Create_Duplicate(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &types.User{
		ID:        "user_2",
		Email:     "dup@example.no",
		CreatedAt: time.Now(),
	})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConflictDuplicateEntry, appErr.Code)
}

func TestUserRepository_Update_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.Update(context.Background(), &types.User{ID: "gone"})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundUser, appErr.Code)
}

func TestUserRepository_IsEmailWhitelisted(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)
	ctx := context.Background()

	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*bool) = true
			return nil
		},
	}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"claus@example.no"}).Return(row)

	ok, err := repo.IsEmailWhitelisted(ctx, "claus@example.no")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUserRepository_List(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	created := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	rows := newMockRows([][]any{
		{"user_1", "a@example.no", "Anne", true, true, created},
		{"user_2", "b@example.no", "Bent", false, false, created},
	})
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	users, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Anne", users[0].DisplayName)
	assert.True(t, users[0].IsAdmin)
	assert.False(t, users[1].Active)
}

func TestUserRepository_ActiveEmails(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	rows := newMockRows([][]any{{"a@example.no"}, {"b@example.no"}})
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	emails, err := repo.ActiveEmails(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.no", "b@example.no"}, emails)
}
