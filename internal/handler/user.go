package handler

import (
	"errors"

	"github.com/jaehyunp/algolog/internal/repository"
	"github.com/jaehyunp/algolog/pkg"
	"github.com/jaehyunp/algolog/pkg/model"
	"github.com/jaehyunp/algolog/pkg/response"
	"github.com/gin-gonic/gin"
)

// SignUp creates a new user.
func (h *Handler) SignUp(c *gin.Context) {
	var req model.SignUpReq
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Logger.Sugar().Warnw("signup bad request", "err", err)
		response.BadRequest(c, err.Error())
		return
	}

	pwHash, err := pkg.HashPassword(req.Password)
	if err != nil {
		h.Logger.Sugar().Errorw("failed to hash password", "err", err)
		response.InternalError(c, "internal error")
		return
	}

	email := model.NormalizeEmail(req.Email)
	userID, err := h.Users.Create(c.Request.Context(), email, pwHash)
	if err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			response.Conflict(c, "email already in use")
			return
		}
		h.Logger.Sugar().Errorw("user create failed", "email", email, "err", err)
		response.InternalError(c, "could not create user")
		return
	}

	response.Created(c, model.UserRes{UserID: userID, Email: email})
}

// Login verifies credentials and returns an access token.
func (h *Handler) Login(c *gin.Context) {
	var req model.LoginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Logger.Sugar().Warnw("login bad request", "err", err)
		response.BadRequest(c, err.Error())
		return
	}

	email := model.NormalizeEmail(req.Email)
	user, err := h.Users.GetByEmail(c.Request.Context(), email)
	if err != nil {
		h.Logger.Sugar().Warnw("login user not found", "email", email, "err", err)
		response.Unauthorized(c, "invalid credentials")
		return
	}
	if err := pkg.ComparePassword(user.PasswordHash, req.Password); err != nil {
		h.Logger.Sugar().Warnw("login password mismatch", "email", email)
		response.Unauthorized(c, "invalid credentials")
		return
	}

	accessToken, claims, err := h.TokenMaker.GenerateToken(user.UserID, user.Email, h.TokenTTL)
	if err != nil {
		h.Logger.Sugar().Errorw("error creating token", "err", err)
		response.InternalError(c, "could not generate token")
		return
	}

	response.OK(c, model.TokenRes{
		AccessToken: accessToken,
		ExpiresAt:   claims.ExpiresAt.Unix(),
		User:        model.UserRes{UserID: user.UserID, Email: user.Email},
	})
}
