// internal/auth/manager_test.go
package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/vertabase/verta-backend/config"
	"github.com/vertabase/verta-backend/internal/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := &config.Config{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 30 * 24 * time.Hour,
		BcryptCost:      bcrypt.MinCost, // keep the test fast
		DataDir:         t.TempDir(),
		DBFile:          "test.db",
	}
	db, err := storage.ConnectDB(cfg)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewManager(db, cfg)
}

func TestValidatePasswordPolicy(t *testing.T) {
	testCases := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid", "hunter2hunter2", false},
		{"valid minimal", "abcdefg1", false},
		{"too short", "abc1234", true},
		{"no digit", "abcdefgh", true},
		{"no letter", "12345678", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePasswordPolicy(tc.password)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidatePasswordPolicy(%q) = %v; wantErr %v", tc.password, err, tc.wantErr)
			}
		})
	}
}

func TestRegister(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	user, err := manager.Register(ctx, "a@b.com", "secret1234", "Alice")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if user.ID == "" || user.TokenKey == "" {
		t.Errorf("registered user missing id or token key")
	}
	if user.PasswordHash == "secret1234" {
		t.Errorf("password stored in plaintext")
	}

	if _, err := manager.Register(ctx, "a@b.com", "secret1234", ""); !errors.Is(err, storage.ErrEmailExists) {
		t.Errorf("duplicate Register = %v; want ErrEmailExists", err)
	}
	if _, err := manager.Register(ctx, "weak@b.com", "short1", ""); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("weak password Register = %v; want ErrWeakPassword", err)
	}
}

func TestLoginAndVerifyAccess(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	if _, err := manager.Register(ctx, "a@b.com", "secret1234", "Alice"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	user, pair, err := manager.Login(ctx, "a@b.com", "secret1234")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" || pair.TokenType != "Bearer" {
		t.Errorf("incomplete token pair: %+v", pair)
	}

	verified, err := manager.VerifyAccess(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess failed: %v", err)
	}
	if verified.ID != user.ID {
		t.Errorf("VerifyAccess resolved user %s; want %s", verified.ID, user.ID)
	}

	if _, _, err := manager.Login(ctx, "a@b.com", "wrongpass1"); !errors.Is(err, storage.ErrInvalidCredentials) {
		t.Errorf("wrong password Login = %v; want ErrInvalidCredentials", err)
	}
	if _, _, err := manager.Login(ctx, "x@b.com", "secret1234"); !errors.Is(err, storage.ErrInvalidCredentials) {
		t.Errorf("unknown email Login = %v; want ErrInvalidCredentials", err)
	}
	if _, err := manager.VerifyAccess(ctx, "garbage"); err == nil {
		t.Errorf("VerifyAccess accepted a garbage token")
	}
}

func TestRefreshRotation(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	if _, err := manager.Register(ctx, "a@b.com", "secret1234", ""); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	_, pair, err := manager.Login(ctx, "a@b.com", "secret1234")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	_, next, err := manager.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Errorf("Refresh handed back the same refresh token")
	}

	// Replaying the spent token is theft: the whole session family dies.
	if _, _, err := manager.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("replayed Refresh = %v; want ErrTokenRevoked", err)
	}
	if _, _, err := manager.Refresh(ctx, next.RefreshToken); err == nil {
		t.Errorf("rotated descendant survived replay revocation")
	}
	// Token key rotation also kills outstanding access tokens.
	if _, err := manager.VerifyAccess(ctx, next.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("access token survived replay revocation: %v", err)
	}

	if _, _, err := manager.Refresh(ctx, "nonexistent"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("unknown token Refresh = %v; want ErrTokenInvalid", err)
	}
}

func TestLogout(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	if _, err := manager.Register(ctx, "a@b.com", "secret1234", ""); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	_, pair, err := manager.Login(ctx, "a@b.com", "secret1234")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := manager.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, _, err := manager.Refresh(ctx, pair.RefreshToken); err == nil {
		t.Errorf("refresh token usable after logout")
	}
	// Logout is idempotent.
	if err := manager.Logout(ctx, pair.RefreshToken); err != nil {
		t.Errorf("repeated Logout = %v; want nil", err)
	}
	if err := manager.Logout(ctx, "nonexistent"); err != nil {
		t.Errorf("Logout of unknown token = %v; want nil", err)
	}
}

func TestLogoutAll(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	user, err := manager.Register(ctx, "a@b.com", "secret1234", "")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	_, first, err := manager.Login(ctx, "a@b.com", "secret1234")
	if err != nil {
		t.Fatalf("first Login failed: %v", err)
	}
	_, second, err := manager.Login(ctx, "a@b.com", "secret1234")
	if err != nil {
		t.Fatalf("second Login failed: %v", err)
	}

	if err := manager.LogoutAll(ctx, user.ID); err != nil {
		t.Fatalf("LogoutAll failed: %v", err)
	}

	for i, pair := range []*TokenPair{first, second} {
		if _, _, err := manager.Refresh(ctx, pair.RefreshToken); err == nil {
			t.Errorf("session %d refresh token survived LogoutAll", i)
		}
		if _, err := manager.VerifyAccess(ctx, pair.AccessToken); !errors.Is(err, ErrTokenRevoked) {
			t.Errorf("session %d access token survived LogoutAll: %v", i, err)
		}
	}
}

func TestChangePassword(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	if _, err := manager.Register(ctx, "a@b.com", "secret1234", ""); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	user, pair, err := manager.Login(ctx, "a@b.com", "secret1234")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := manager.ChangePassword(ctx, user, "wrongpass1", "newsecret1"); !errors.Is(err, storage.ErrInvalidCredentials) {
		t.Errorf("ChangePassword with bad old password = %v; want ErrInvalidCredentials", err)
	}
	if err := manager.ChangePassword(ctx, user, "secret1234", "short1"); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("ChangePassword with weak password = %v; want ErrWeakPassword", err)
	}

	if err := manager.ChangePassword(ctx, user, "secret1234", "newsecret1"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	if _, _, err := manager.Login(ctx, "a@b.com", "secret1234"); !errors.Is(err, storage.ErrInvalidCredentials) {
		t.Errorf("old password still valid after change")
	}
	if _, _, err := manager.Login(ctx, "a@b.com", "newsecret1"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
	if _, err := manager.VerifyAccess(ctx, pair.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("access token survived password change: %v", err)
	}
	if _, _, err := manager.Refresh(ctx, pair.RefreshToken); err == nil {
		t.Errorf("refresh token survived password change")
	}
}

func TestPurgeExpiredTokens(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	if _, err := manager.Register(ctx, "a@b.com", "secret1234", ""); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, _, err := manager.Login(ctx, "a@b.com", "secret1234"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// Nothing is expired yet.
	purged, err := manager.PurgeExpiredTokens(ctx)
	if err != nil {
		t.Fatalf("PurgeExpiredTokens failed: %v", err)
	}
	if purged != 0 {
		t.Errorf("purged %d tokens; want 0", purged)
	}

	// Everything is expired from tomorrow+TTL's point of view.
	future := time.Now().Add(manager.cfg.RefreshTokenTTL + time.Hour)
	purged, err = storage.DeleteExpiredTokens(ctx, manager.db, future)
	if err != nil {
		t.Fatalf("DeleteExpiredTokens failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged %d tokens; want 1", purged)
	}
}

func TestUpdateProfile(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	user, err := manager.Register(ctx, "a@b.com", "secret1234", "Alice")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	user.Verified = true
	if err := storage.UpdateUserProfile(ctx, manager.db, user); err != nil {
		t.Fatalf("Failed to mark user verified: %v", err)
	}

	name := "Alicia"
	visible := true
	updated, err := manager.UpdateProfile(ctx, user, ProfileUpdate{Name: &name, EmailVisibility: &visible})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if updated.Name != "Alicia" || !updated.EmailVisibility {
		t.Errorf("profile not applied: %+v", updated)
	}
	if !updated.Verified {
		t.Error("name change must not touch the verified flag")
	}

	// Changing the address drops verification.
	newEmail := "alice@b.com"
	updated, err = manager.UpdateProfile(ctx, updated, ProfileUpdate{Email: &newEmail})
	if err != nil {
		t.Fatalf("UpdateProfile with email failed: %v", err)
	}
	if updated.Email != newEmail {
		t.Errorf("email = %q; want %q", updated.Email, newEmail)
	}
	if updated.Verified {
		t.Error("email change must reset the verified flag")
	}

	// A taken address is a conflict.
	if _, err := manager.Register(ctx, "c@d.com", "secret1234", ""); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	taken := "c@d.com"
	if _, err := manager.UpdateProfile(ctx, updated, ProfileUpdate{Email: &taken}); !errors.Is(err, storage.ErrEmailExists) {
		t.Errorf("expected ErrEmailExists, got %v", err)
	}
}
