// internal/storage/user_repo.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/vertabase/verta-backend/internal/domain"
)

// Specific errors for user operations
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailExists        = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

const userColumns = `id, email, password_hash, token_key, name, avatar, verified, admin, email_visibility, created_at, updated_at`

// CreateUser inserts a new user row.
func CreateUser(ctx context.Context, db *sql.DB, user *domain.User) error {
	sqlStatement := `INSERT INTO users (id, email, password_hash, token_key, name, avatar, verified, admin, email_visibility)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, sqlStatement,
		user.ID, user.Email, user.PasswordHash, user.TokenKey,
		user.Name, user.Avatar, user.Verified, user.Admin, user.EmailVisibility)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			if strings.Contains(sqliteErr.Error(), "users.email") {
				return ErrEmailExists
			}
		}
		customLog.Warnf("Storage: Failed to insert user %s: %v", user.Email, err)
		return fmt.Errorf("database error during user creation: %w", err)
	}
	return nil
}

// FindUserByEmail retrieves a user by email. The email column collates
// NOCASE, so the lookup is case-insensitive.
func FindUserByEmail(ctx context.Context, db *sql.DB, email string) (*domain.User, error) {
	row := db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ? LIMIT 1`, email)
	return scanUser(row)
}

// FindUserByID retrieves a user by id.
func FindUserByID(ctx context.Context, db *sql.DB, id string) (*domain.User, error) {
	row := db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ? LIMIT 1`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var user domain.User
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.TokenKey,
		&user.Name, &user.Avatar, &user.Verified, &user.Admin, &user.EmailVisibility,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		customLog.Warnf("Storage: Failed to scan user: %v", err)
		return nil, fmt.Errorf("database error finding user: %w", err)
	}
	return &user, nil
}

// UpdateUserProfile persists the mutable profile columns.
func UpdateUserProfile(ctx context.Context, db *sql.DB, user *domain.User) error {
	sqlStatement := `UPDATE users
		SET email = ?, name = ?, avatar = ?, verified = ?, email_visibility = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`
	result, err := db.ExecContext(ctx, sqlStatement,
		user.Email, user.Name, user.Avatar, user.Verified, user.EmailVisibility, user.ID)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrEmailExists
		}
		customLog.Warnf("Storage: Failed to update user %s: %v", user.ID, err)
		return fmt.Errorf("database error updating user: %w", err)
	}
	return requireOneRow(result, ErrUserNotFound)
}

// UpdateUserCredentials replaces the password hash and token key in one
// statement, immediately invalidating every outstanding access token.
func UpdateUserCredentials(ctx context.Context, db *sql.DB, userID, passwordHash, tokenKey string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, token_key = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		passwordHash, tokenKey, userID)
	if err != nil {
		customLog.Warnf("Storage: Failed to update credentials for user %s: %v", userID, err)
		return fmt.Errorf("database error updating credentials: %w", err)
	}
	return requireOneRow(result, ErrUserNotFound)
}

// RotateTokenKey bumps only the token key. Used by logout-all and replay
// detection.
func RotateTokenKey(ctx context.Context, db *sql.DB, userID, tokenKey string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE users SET token_key = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		tokenKey, userID)
	if err != nil {
		customLog.Warnf("Storage: Failed to rotate token key for user %s: %v", userID, err)
		return fmt.Errorf("database error rotating token key: %w", err)
	}
	return requireOneRow(result, ErrUserNotFound)
}

// DeleteUser removes a user; sessions cascade.
func DeleteUser(ctx context.Context, db *sql.DB, userID string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	if err != nil {
		customLog.Warnf("Storage: Failed to delete user %s: %v", userID, err)
		return fmt.Errorf("database error deleting user: %w", err)
	}
	return requireOneRow(result, ErrUserNotFound)
}

func requireOneRow(result sql.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed confirming write: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
