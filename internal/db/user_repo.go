package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"tippslottet/internal/types"
)

// UserRepository provides data access for the users table, which doubles as
// the whitelist: a row with active=true is a whitelisted participant.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository backed by the given
// database connection (pool or transaction).
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// userColumns defines the standard set of columns selected for user queries.
// Used consistently across all query methods to avoid column drift.
const userColumns = `u.id, u.email, u.display_name, u.is_admin, u.active, u.created_at`

func scanUser(row pgx.Row) (*types.User, error) {
	var u types.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.IsAdmin,
		&u.Active,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByEmail retrieves a user by email, regardless of active flag.
// Returns ErrCodeNotFoundUser if no such user exists.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+`
		 FROM users u
		 WHERE lower(u.email) = lower($1)`,
		email,
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user", err)
	}
	return u, nil
}

// List returns all users ordered by display name, active and inactive alike.
// The admin whitelist view shows both so deactivated entries can be restored.
func (r *UserRepository) List(ctx context.Context) ([]types.User, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+userColumns+`
		 FROM users u
		 ORDER BY u.display_name, u.email`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list users", err)
	}
	defer rows.Close()

	var users []types.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan user", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate users", err)
	}
	return users, nil
}

// Create inserts a new whitelisted user. Returns ErrCodeConflictDuplicateEntry
// when the email is already present.
func (r *UserRepository) Create(ctx context.Context, u *types.User) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (id, email, display_name, is_admin, active, created_at)
		 VALUES ($1, lower($2), $3, $4, $5, $6)`,
		u.ID, u.Email, u.DisplayName, u.IsAdmin, u.Active, u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictDuplicateEntry, "user already exists", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create user", err)
	}
	return nil
}

// Update modifies display name, admin flag, and active flag of a user.
func (r *UserRepository) Update(ctx context.Context, u *types.User) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users
		 SET display_name = $2, is_admin = $3, active = $4
		 WHERE id = $1`,
		u.ID, u.DisplayName, u.IsAdmin, u.Active,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update user", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}

// Deactivate flips a user's active flag off. The row is kept so points
// history and past standings remain intact.
func (r *UserRepository) Deactivate(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET active = false WHERE id = $1`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to deactivate user", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}

// IsEmailWhitelisted reports whether the email belongs to an active user.
func (r *UserRepository) IsEmailWhitelisted(ctx context.Context, email string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1) AND active)`,
		email,
	).Scan(&ok)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check whitelist", err)
	}
	return ok, nil
}

// IsEmailAdmin reports whether the email belongs to an active admin.
func (r *UserRepository) IsEmailAdmin(ctx context.Context, email string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1) AND active AND is_admin)`,
		email,
	).Scan(&ok)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check admin flag", err)
	}
	return ok, nil
}

// ActiveEmails returns the email addresses of all active users, used by the
// reminder and digest jobs to build recipient lists.
func (r *UserRepository) ActiveEmails(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT email FROM users WHERE active ORDER BY email`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list active emails", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan email", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate emails", err)
	}
	return emails, nil
}

var _ types.AuthOracle = (*UserRepository)(nil)
