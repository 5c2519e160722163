// internal/domain/models.go
package domain

import "time"

// User is an account stored in the system users table. PasswordHash and
// TokenKey never leave the server; handlers must serialize through DTOs.
type User struct {
	ID              string
	Email           string
	PasswordHash    string
	TokenKey        string
	Name            string
	Avatar          string
	Verified        bool
	Admin           bool
	EmailVisibility bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RefreshToken is one server-side session. A token is single-use: redeeming
// it marks Revoked and mints a replacement (rotation).
type RefreshToken struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// Record is one row of a dynamic collection. Data holds only schema fields;
// id/created/updated are system columns and live on the struct.
type Record struct {
	ID        string
	Data      map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}
