package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type User struct {
	UserID       uuid.UUID `json:"user_id" db:"user_id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

type SignUpReq struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginReq struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type UserRes struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
}

type TokenRes struct {
	AccessToken string  `json:"access_token"`
	ExpiresAt   int64   `json:"expires_at"` // unix seconds
	User        UserRes `json:"user"`
}

// NormalizeEmail is the canonical form of an owner identity. Every
// query scope and every claims comparison goes through this.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
