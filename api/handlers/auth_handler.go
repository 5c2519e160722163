// api/handlers/auth_handler.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vertabase/verta-backend/api/middleware"
	"github.com/vertabase/verta-backend/api/models"
	"github.com/vertabase/verta-backend/internal/auth"
	"github.com/vertabase/verta-backend/internal/logger"
)

var (
	customLog = logger.NewLogger()
)

// AuthHandler holds dependencies for authentication handlers.
type AuthHandler struct {
	Manager *auth.Manager
}

// NewAuthHandler creates a new AuthHandler with dependencies.
func NewAuthHandler(manager *auth.Manager) *AuthHandler {
	return &AuthHandler{Manager: manager}
}

// Register handles user registration requests.
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		customLog.Warnf("Register binding error: %v", err)
		_ = c.Error(err)
		return
	}

	user, err := h.Manager.Register(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		customLog.Warnf("Failed to register user %s: %v", req.Email, err)
		_ = c.Error(err)
		return
	}

	customLog.Printf("Successfully registered user with email %s", req.Email)
	c.JSON(http.StatusCreated, gin.H{"user": models.NewUserResponse(user, true), "message": "User registered successfully"})
}

// Login handles user login requests and issues a token pair on success.
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		customLog.Warnf("Login binding error: %v", err)
		_ = c.Error(err)
		return
	}

	user, pair, err := h.Manager.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		customLog.Warnf("Login failed for email %s: %v", req.Email, err)
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, models.AuthResponse{User: models.NewUserResponse(user, true), Token: pair})
}

// Refresh rotates a refresh token and hands back a fresh pair.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		customLog.Warnf("Refresh binding error: %v", err)
		_ = c.Error(err)
		return
	}

	user, pair, err := h.Manager.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		customLog.Warnf("Refresh failed: %v", err)
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, models.AuthResponse{User: models.NewUserResponse(user, true), Token: pair})
}

// Logout revokes the presented refresh token.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req models.RefreshRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		customLog.Warnf("Logout binding error: %v", err)
		_ = c.Error(err)
		return
	}

	if err := h.Manager.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// LogoutAll ends every session of the authenticated user.
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	user := middleware.CurrentUser(c)

	if err := h.Manager.LogoutAll(c.Request.Context(), user.ID); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "All sessions revoked"})
}

// Me returns the authenticated user's own account.
func (h *AuthHandler) Me(c *gin.Context) {
	user := middleware.CurrentUser(c)
	c.JSON(http.StatusOK, models.NewUserResponse(user, true))
}

// UpdateMe applies a partial profile update to the authenticated user.
func (h *AuthHandler) UpdateMe(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		customLog.Warnf("UpdateMe binding error: %v", err)
		_ = c.Error(err)
		return
	}

	updated, err := h.Manager.UpdateProfile(c.Request.Context(), user, auth.ProfileUpdate{
		Email:           req.Email,
		Name:            req.Name,
		Avatar:          req.Avatar,
		EmailVisibility: req.EmailVisibility,
	})
	if err != nil {
		customLog.Warnf("Failed to update profile for user %s: %v", user.ID, err)
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, models.NewUserResponse(updated, true))
}

// ChangePassword verifies the old password, sets a new one and revokes
// every session. The client must log in again.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		customLog.Warnf("ChangePassword binding error: %v", err)
		_ = c.Error(err)
		return
	}

	if err := h.Manager.ChangePassword(c.Request.Context(), user, req.OldPassword, req.NewPassword); err != nil {
		customLog.Warnf("Password change failed for user %s: %v", user.ID, err)
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password changed. Please log in again."})
}
