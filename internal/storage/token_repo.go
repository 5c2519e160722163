// internal/storage/token_repo.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vertabase/verta-backend/internal/domain"
)

// Specific errors for refresh-token operations
var (
	ErrTokenNotFound = errors.New("refresh token not found")
	ErrTokenSpent    = errors.New("refresh token already revoked")
)

// InsertRefreshToken persists a newly issued session token.
func InsertRefreshToken(ctx context.Context, db *sql.DB, token *domain.RefreshToken) error {
	sqlStatement := `INSERT INTO refresh_tokens (id, user_id, token, expires_at) VALUES (?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, sqlStatement, token.ID, token.UserID, token.Token, token.ExpiresAt)
	if err != nil {
		customLog.Warnf("Storage: Failed to insert refresh token for user %s: %v", token.UserID, err)
		return fmt.Errorf("database error storing refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken resolves an opaque token string to its session row.
func FindRefreshToken(ctx context.Context, db *sql.DB, token string) (*domain.RefreshToken, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, user_id, token, expires_at, revoked, created_at FROM refresh_tokens WHERE token = ? LIMIT 1`,
		token)
	var rt domain.RefreshToken
	err := row.Scan(&rt.ID, &rt.UserID, &rt.Token, &rt.ExpiresAt, &rt.Revoked, &rt.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		customLog.Warnf("Storage: Failed to find refresh token: %v", err)
		return nil, fmt.Errorf("database error finding refresh token: %w", err)
	}
	return &rt, nil
}

// SpendRefreshToken atomically marks an unrevoked token as revoked. When two
// redemptions race, the guarded UPDATE lets exactly one of them win; the
// loser gets ErrTokenSpent and must be treated as a replay.
func SpendRefreshToken(ctx context.Context, db *sql.DB, tokenID string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1 WHERE id = ? AND revoked = 0`, tokenID)
	if err != nil {
		customLog.Warnf("Storage: Failed to revoke refresh token %s: %v", tokenID, err)
		return fmt.Errorf("database error revoking refresh token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed confirming token revocation: %w", err)
	}
	if affected == 0 {
		return ErrTokenSpent
	}
	return nil
}

// RevokeAllForUser revokes every outstanding session of one user.
func RevokeAllForUser(ctx context.Context, db *sql.DB, userID string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1 WHERE user_id = ? AND revoked = 0`, userID)
	if err != nil {
		customLog.Warnf("Storage: Failed to revoke sessions for user %s: %v", userID, err)
		return fmt.Errorf("database error revoking sessions: %w", err)
	}
	return nil
}

// DeleteExpiredTokens removes rows whose expiry has passed. Housekeeping
// only; verification never relies on it.
func DeleteExpiredTokens(ctx context.Context, db *sql.DB, now time.Time) (int64, error) {
	result, err := db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < ?`, now)
	if err != nil {
		customLog.Warnf("Storage: Failed to purge expired refresh tokens: %v", err)
		return 0, fmt.Errorf("database error purging refresh tokens: %w", err)
	}
	return result.RowsAffected()
}
