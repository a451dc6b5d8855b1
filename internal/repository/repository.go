package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when an id does not resolve to a row.
var ErrNotFound = errors.New("record not found")

// ErrEmailTaken is returned on a duplicate signup email.
var ErrEmailTaken = errors.New("email already exists")

type Repository struct {
	Post PostRepository
	User UserRepository
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{
		Post: PostRepository{db: db},
		User: UserRepository{db: db},
	}
}
