package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"sagechat/internal/types"
)

// UserRepository provides the narrow user lookups the scheduler needs.
// User accounts themselves are owned by the auth provider; this repository
// only reads the mirrored profile table.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository backed by the given
// database connection (pool or transaction).
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// FirstAdminID returns the ID of the oldest admin account. Milestone
// follow-ups are sent on behalf of this identity. Returns a not-found error
// when no admin exists.
func (r *UserRepository) FirstAdminID(ctx context.Context) (string, error) {
	var id string
	err := r.db.QueryRow(ctx,
		`SELECT id FROM users
		 WHERE role = 'admin'
		 ORDER BY created_at ASC
		 LIMIT 1`,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", types.NewAppError(types.ErrCodeNotFoundAdmin, "no admin user found", err)
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to look up admin user", err)
	}
	return id, nil
}
