package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/benasterisk/stemtube/internal/api/middleware"
	"github.com/benasterisk/stemtube/internal/database"
)

type AdminHandler struct {
	users *database.UserStore
}

func NewAdminHandler(users *database.UserStore) *AdminHandler {
	return &AdminHandler{users: users}
}

type UserDTO struct {
	ID        int64     `json:"id" doc:"User ID"`
	Username  string    `json:"username" doc:"Username"`
	IsAdmin   bool      `json:"is_admin" doc:"Administrator flag"`
	CreatedAt time.Time `json:"created_at" doc:"Account creation time"`
}

func userDTO(u *database.User) UserDTO {
	return UserDTO{ID: u.ID, Username: u.Username, IsAdmin: u.IsAdmin, CreatedAt: u.CreatedAt}
}

func (h *AdminHandler) ListUsers(ctx context.Context, _ *EmptyInput) (*DataOutput[[]UserDTO], error) {
	users, err := h.users.List(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list users")
	}
	out := make([]UserDTO, 0, len(users))
	for _, u := range users {
		out = append(out, userDTO(u))
	}
	return OK(out), nil
}

type CreateUserInput struct {
	Body struct {
		Username string `json:"username" minLength:"1" doc:"Username"`
		Password string `json:"password" minLength:"8" doc:"Password"`
		IsAdmin  bool   `json:"is_admin,omitempty" doc:"Grant administrator access"`
	}
}

func (h *AdminHandler) CreateUser(ctx context.Context, input *CreateUserInput) (*DataOutput[UserDTO], error) {
	u, err := h.users.Create(ctx, input.Body.Username, input.Body.Password, input.Body.IsAdmin)
	if err != nil {
		if errors.Is(err, database.ErrUsernameTaken) {
			return nil, huma.Error409Conflict("username already taken")
		}
		return nil, huma.Error500InternalServerError("failed to create user")
	}
	return OK(userDTO(u)), nil
}

type UserIDInput struct {
	ID int64 `path:"id" doc:"User ID"`
}

func (h *AdminHandler) DeleteUser(ctx context.Context, input *UserIDInput) (*MsgOutput, error) {
	if input.ID == middleware.GetUserID(ctx) {
		return nil, huma.Error422UnprocessableEntity("cannot delete your own account")
	}
	if err := h.users.Delete(ctx, input.ID); err != nil {
		switch {
		case errors.Is(err, database.ErrUserNotFound):
			return nil, huma.Error404NotFound("user not found")
		case errors.Is(err, database.ErrLastAdmin):
			return nil, huma.Error422UnprocessableEntity("cannot remove the last administrator")
		}
		return nil, huma.Error500InternalServerError("failed to delete user")
	}
	return Msg("user deleted"), nil
}

type SetAdminInput struct {
	ID   int64 `path:"id" doc:"User ID"`
	Body struct {
		IsAdmin bool `json:"is_admin" doc:"Administrator flag"`
	}
}

func (h *AdminHandler) SetAdmin(ctx context.Context, input *SetAdminInput) (*DataOutput[UserDTO], error) {
	if err := h.users.SetAdmin(ctx, input.ID, input.Body.IsAdmin); err != nil {
		switch {
		case errors.Is(err, database.ErrUserNotFound):
			return nil, huma.Error404NotFound("user not found")
		case errors.Is(err, database.ErrLastAdmin):
			return nil, huma.Error422UnprocessableEntity("cannot demote the last administrator")
		}
		return nil, huma.Error500InternalServerError("failed to update user")
	}
	u, err := h.users.GetByID(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load user")
	}
	return OK(userDTO(u)), nil
}
