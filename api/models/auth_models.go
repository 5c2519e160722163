// api/models/auth_models.go
package models

import (
	"time"

	"github.com/vertabase/verta-backend/internal/auth"
	"github.com/vertabase/verta-backend/internal/domain"
)

// --- Auth Request/Response Structs ---

// RegisterRequest defines the structure for the registration request body
type RegisterRequest struct {
	Email           string `json:"email" binding:"required,email"`
	Password        string `json:"password" binding:"required,min=8"`
	PasswordConfirm string `json:"password_confirm" binding:"required,eqfield=Password"`
	Name            string `json:"name" binding:"omitempty,max=100"`
}

// LoginRequest defines the structure for the login request body
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest carries the opaque refresh token for rotation or logout
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// ChangePasswordRequest defines the structure for the password change body
type ChangePasswordRequest struct {
	OldPassword     string `json:"old_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
	PasswordConfirm string `json:"password_confirm" binding:"required,eqfield=NewPassword"`
}

// UpdateProfileRequest carries optional profile fields; absent fields are
// left unchanged
type UpdateProfileRequest struct {
	Email           *string `json:"email" binding:"omitempty,email"`
	Name            *string `json:"name" binding:"omitempty,max=100"`
	Avatar          *string `json:"avatar" binding:"omitempty,max=500"`
	EmailVisibility *bool   `json:"email_visibility"`
}

// UserResponse is the public shape of a user account
type UserResponse struct {
	ID              string    `json:"id"`
	Email           string    `json:"email,omitempty"`
	Name            string    `json:"name"`
	Avatar          string    `json:"avatar,omitempty"`
	Verified        bool      `json:"verified"`
	Admin           bool      `json:"admin"`
	EmailVisibility bool      `json:"email_visibility"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// AuthResponse pairs the user with a freshly issued token pair
type AuthResponse struct {
	User  UserResponse    `json:"user"`
	Token *auth.TokenPair `json:"token"`
}

// NewUserResponse builds a UserResponse. The email is included only when
// the account opted in or the viewer owns the account (or is an admin).
func NewUserResponse(user *domain.User, includeEmail bool) UserResponse {
	resp := UserResponse{
		ID:              user.ID,
		Name:            user.Name,
		Avatar:          user.Avatar,
		Verified:        user.Verified,
		Admin:           user.Admin,
		EmailVisibility: user.EmailVisibility,
		CreatedAt:       user.CreatedAt,
		UpdatedAt:       user.UpdatedAt,
	}
	if includeEmail || user.EmailVisibility {
		resp.Email = user.Email
	}
	return resp
}
