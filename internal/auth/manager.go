// internal/auth/manager.go
package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vertabase/verta-backend/config"
	"github.com/vertabase/verta-backend/internal/domain"
	"github.com/vertabase/verta-backend/internal/storage"
)

// TokenPair is what a successful login or refresh hands back.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// ProfileUpdate carries the user-editable profile fields. Nil pointers
// leave the current value untouched.
type ProfileUpdate struct {
	Email           *string
	Name            *string
	Avatar          *string
	EmailVisibility *bool
}

// Manager owns registration, login and the refresh token lifecycle.
// Access tokens are stateless JWTs bound to the user's token key; refresh
// tokens are opaque single-use rows in the database.
type Manager struct {
	db  *sql.DB
	cfg *config.Config
}

func NewManager(db *sql.DB, cfg *config.Config) *Manager {
	return &Manager{db: db, cfg: cfg}
}

// Register creates a new user account. The email must be unused
// (storage.ErrEmailExists otherwise) and the password must satisfy the
// policy.
func (m *Manager) Register(ctx context.Context, email, password, name string) (*domain.User, error) {
	if err := ValidatePasswordPolicy(password); err != nil {
		return nil, err
	}
	hash, err := HashPassword(password, m.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	tokenKey, err := newTokenKey()
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		TokenKey:     tokenKey,
		Name:         name,
	}
	if err := storage.CreateUser(ctx, m.db, user); err != nil {
		return nil, err
	}
	customLog.Printf("AuthManager: Registered user %s", user.ID)
	return user, nil
}

// Login verifies credentials and issues a fresh token pair. Unknown email
// and wrong password both come back as storage.ErrInvalidCredentials.
func (m *Manager) Login(ctx context.Context, email, password string) (*domain.User, *TokenPair, error) {
	user, err := storage.FindUserByEmail(ctx, m.db, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, nil, storage.ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if !CheckPasswordHash(password, user.PasswordHash) {
		return nil, nil, storage.ErrInvalidCredentials
	}

	pair, err := m.issueTokens(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Refresh spends the presented refresh token and issues a new pair. A spent
// token presented again is treated as theft: every session of that user is
// revoked and the token key rotated, which also kills outstanding access
// tokens.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (*domain.User, *TokenPair, error) {
	row, err := storage.FindRefreshToken(ctx, m.db, refreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return nil, nil, ErrTokenInvalid
		}
		return nil, nil, err
	}

	if err := storage.SpendRefreshToken(ctx, m.db, row.ID); err != nil {
		if errors.Is(err, storage.ErrTokenSpent) {
			customLog.Warnf("AuthManager: Refresh token replay detected for user %s, revoking all sessions", row.UserID)
			if revokeErr := m.revokeAllSessions(ctx, row.UserID); revokeErr != nil {
				customLog.Warnf("AuthManager: Failed revoking sessions for user %s: %v", row.UserID, revokeErr)
			}
			return nil, nil, ErrTokenRevoked
		}
		return nil, nil, err
	}

	if time.Now().After(row.ExpiresAt) {
		return nil, nil, ErrTokenExpired
	}

	user, err := storage.FindUserByID(ctx, m.db, row.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, nil, ErrTokenInvalid
		}
		return nil, nil, err
	}

	pair, err := m.issueTokens(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Logout revokes the presented refresh token. Already-spent or unknown
// tokens are not an error: the session is gone either way.
func (m *Manager) Logout(ctx context.Context, refreshToken string) error {
	row, err := storage.FindRefreshToken(ctx, m.db, refreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return nil
		}
		return err
	}
	if err := storage.SpendRefreshToken(ctx, m.db, row.ID); err != nil && !errors.Is(err, storage.ErrTokenSpent) {
		return err
	}
	return nil
}

// LogoutAll ends every session: all refresh tokens are revoked and the
// token key rotated so outstanding access tokens stop validating.
func (m *Manager) LogoutAll(ctx context.Context, userID string) error {
	return m.revokeAllSessions(ctx, userID)
}

// ChangePassword verifies the current password, stores the new hash and
// rotates the token key. Every existing session is invalidated.
func (m *Manager) ChangePassword(ctx context.Context, user *domain.User, oldPassword, newPassword string) error {
	if !CheckPasswordHash(oldPassword, user.PasswordHash) {
		return storage.ErrInvalidCredentials
	}
	if err := ValidatePasswordPolicy(newPassword); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword, m.cfg.BcryptCost)
	if err != nil {
		return err
	}
	tokenKey, err := newTokenKey()
	if err != nil {
		return err
	}
	if err := storage.UpdateUserCredentials(ctx, m.db, user.ID, hash, tokenKey); err != nil {
		return err
	}
	if err := storage.RevokeAllForUser(ctx, m.db, user.ID); err != nil {
		return err
	}
	customLog.Printf("AuthManager: Password changed for user %s, sessions revoked", user.ID)
	return nil
}

// UpdateProfile applies the non-nil fields of the update to the user row.
func (m *Manager) UpdateProfile(ctx context.Context, user *domain.User, update ProfileUpdate) (*domain.User, error) {
	if update.Email != nil && *update.Email != user.Email {
		user.Email = *update.Email
		// A changed address has to be verified again.
		user.Verified = false
	}
	if update.Name != nil {
		user.Name = *update.Name
	}
	if update.Avatar != nil {
		user.Avatar = *update.Avatar
	}
	if update.EmailVisibility != nil {
		user.EmailVisibility = *update.EmailVisibility
	}
	if err := storage.UpdateUserProfile(ctx, m.db, user); err != nil {
		return nil, err
	}
	return storage.FindUserByID(ctx, m.db, user.ID)
}

// VerifyAccess validates an access token and loads its user. The claim's
// token key must match the stored one, otherwise the token was minted
// before a rotation and is dead.
func (m *Manager) VerifyAccess(ctx context.Context, tokenString string) (*domain.User, error) {
	claims, err := ParseAccessToken(tokenString, m.cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	user, err := storage.FindUserByID(ctx, m.db, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	if claims.TokenKey != user.TokenKey {
		return nil, ErrTokenRevoked
	}
	return user, nil
}

// PurgeExpiredTokens deletes refresh token rows past their expiry. Meant to
// run periodically from the server loop.
func (m *Manager) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	return storage.DeleteExpiredTokens(ctx, m.db, time.Now())
}

func (m *Manager) issueTokens(ctx context.Context, user *domain.User) (*TokenPair, error) {
	access, err := GenerateAccessToken(user, m.cfg.JWTSecret, m.cfg.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	refresh, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}
	row := &domain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     refresh,
		ExpiresAt: time.Now().Add(m.cfg.RefreshTokenTTL),
	}
	if err := storage.InsertRefreshToken(ctx, m.db, row); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(m.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

func (m *Manager) revokeAllSessions(ctx context.Context, userID string) error {
	tokenKey, err := newTokenKey()
	if err != nil {
		return err
	}
	if err := storage.RotateTokenKey(ctx, m.db, userID, tokenKey); err != nil {
		return err
	}
	return storage.RevokeAllForUser(ctx, m.db, userID)
}

func newOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func newTokenKey() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
