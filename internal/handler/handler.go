package handler

import (
	"context"
	"time"

	"github.com/jaehyunp/algolog/internal/auth"
	"github.com/jaehyunp/algolog/internal/queue"
	"github.com/jaehyunp/algolog/pkg/model"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PostStore is the record-store surface the handlers use.
// repository.PostRepository satisfies it.
type PostStore interface {
	Create(ctx context.Context, p *model.Post) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Post, error)
	Update(ctx context.Context, id uuid.UUID, patch map[string]any) (*model.Post, error)
	List(ctx context.Context, owner, q string, field model.SearchField, page, pageSize int) ([]model.PostListItem, bool, error)
}

// UserStore is the user surface; repository.UserRepository satisfies it.
type UserStore interface {
	Create(ctx context.Context, email, passwordHash string) (uuid.UUID, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

// Dispatcher submits fire-and-forget jobs and looks their status up;
// queue.Queue satisfies it.
type Dispatcher interface {
	Submit(ctx context.Context, name string, payload any) (string, error)
	Status(ctx context.Context, jobID string) (*queue.Status, error)
}

type Handler struct {
	Logger     *zap.Logger
	Posts      PostStore
	Users      UserStore
	Queue      Dispatcher
	TokenMaker *auth.JWTMaker
	TokenTTL   time.Duration
}

// GetClaimsFromContext retrieves the verified claims the auth
// middleware stored, or nil.
func (h *Handler) GetClaimsFromContext(c *gin.Context) *auth.UserClaims {
	v, exists := c.Get("claims")
	if !exists {
		return nil
	}
	claims, ok := v.(*auth.UserClaims)
	if !ok {
		return nil
	}
	return claims
}
