package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/benasterisk/stemtube/internal/api/middleware"
	"github.com/benasterisk/stemtube/internal/database"
)

type AuthHandler struct {
	users     *database.UserStore
	jwtSecret string
	jwtExpiry time.Duration
}

func NewAuthHandler(users *database.UserStore, jwtSecret string, jwtExpiry time.Duration) *AuthHandler {
	return &AuthHandler{users: users, jwtSecret: jwtSecret, jwtExpiry: jwtExpiry}
}

type LoginInput struct {
	Body struct {
		Username string `json:"username" minLength:"1" doc:"Username"`
		Password string `json:"password" minLength:"1" doc:"Password"`
	}
}

type LoginUserDTO struct {
	ID       int64  `json:"id" doc:"User ID"`
	Username string `json:"username" doc:"Username"`
	IsAdmin  bool   `json:"is_admin" doc:"Administrator flag"`
}

type LoginDTO struct {
	Token     string       `json:"token" doc:"JWT token"`
	ExpiresIn int          `json:"expires_in" doc:"Token lifetime in seconds"`
	User      LoginUserDTO `json:"user" doc:"User info"`
}

type EmptyInput struct{}

func (h *AuthHandler) Login(ctx context.Context, input *LoginInput) (*DataOutput[LoginDTO], error) {
	user, err := h.users.Authenticate(ctx, input.Body.Username, input.Body.Password)
	if err != nil {
		if errors.Is(err, database.ErrBadCredentials) {
			return nil, huma.Error401Unauthorized("invalid username or password")
		}
		return nil, huma.Error500InternalServerError("authentication failed")
	}

	token, err := middleware.GenerateJWT(user.ID, user.Username, user.IsAdmin, h.jwtSecret, h.jwtExpiry)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to generate token")
	}

	return OK(LoginDTO{
		Token:     token,
		ExpiresIn: int(h.jwtExpiry.Seconds()),
		User:      LoginUserDTO{ID: user.ID, Username: user.Username, IsAdmin: user.IsAdmin},
	}), nil
}

func (h *AuthHandler) Me(ctx context.Context, _ *EmptyInput) (*DataOutput[LoginUserDTO], error) {
	user, err := h.users.GetByID(ctx, middleware.GetUserID(ctx))
	if err != nil {
		return nil, huma.Error401Unauthorized("account no longer exists")
	}
	return OK(LoginUserDTO{ID: user.ID, Username: user.Username, IsAdmin: user.IsAdmin}), nil
}

type ChangePasswordInput struct {
	Body struct {
		CurrentPassword string `json:"current_password" minLength:"1" doc:"Current password"`
		NewPassword     string `json:"new_password" minLength:"8" doc:"New password"`
	}
}

func (h *AuthHandler) ChangePassword(ctx context.Context, input *ChangePasswordInput) (*MsgOutput, error) {
	username := middleware.GetUsername(ctx)
	if _, err := h.users.Authenticate(ctx, username, input.Body.CurrentPassword); err != nil {
		return nil, huma.Error401Unauthorized("current password is incorrect")
	}
	if err := h.users.ChangePassword(ctx, middleware.GetUserID(ctx), input.Body.NewPassword); err != nil {
		return nil, huma.Error500InternalServerError("failed to change password")
	}
	return Msg("password changed"), nil
}
