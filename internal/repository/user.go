package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jaehyunp/algolog/pkg/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository is the concrete store for users.
type UserRepository struct {
	db *pgxpool.Pool
}

// Create inserts a new user and returns the new user's id. The email
// is expected already normalized.
func (r *UserRepository) Create(ctx context.Context, email, passwordHash string) (uuid.UUID, error) {
	id := uuid.New()
	const q = `
INSERT INTO users (user_id, email, password_hash, created_at, updated_at)
VALUES ($1, $2, $3, now(), now())
`
	_, err := r.db.Exec(ctx, q, id, email, passwordHash)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return uuid.Nil, ErrEmailTaken
		}
		return uuid.Nil, fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

// GetByEmail returns a user by normalized email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	const q = `
SELECT user_id, email, password_hash, created_at, updated_at
FROM users
WHERE email = $1
`
	var u model.User
	row := r.db.QueryRow(ctx, q, email)
	if err := row.Scan(&u.UserID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user by email: %w", err)
	}
	return &u, nil
}
