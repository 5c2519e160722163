// internal/storage/collection_repo.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Specific errors for collection metadata operations
var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrCollectionExists   = errors.New("collection name already exists")
	ErrVersionNotFound    = errors.New("schema version not found")
)

// DBTX lets repo functions run against either the pool or an open
// transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CollectionRow is the persisted shape of a collection. Field definitions
// travel as a JSON document; the schema registry owns the typed view.
type CollectionRow struct {
	ID         string
	Name       string
	Type       string
	FieldsJSON string
	ListRule   *string
	ViewRule   *string
	CreateRule *string
	UpdateRule *string
	DeleteRule *string
	System     bool
	Version    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

const collectionColumns = `id, name, type, fields, list_rule, view_rule, create_rule, update_rule, delete_rule, system, version, created_at, updated_at`

// InsertCollection persists a new collection row.
func InsertCollection(ctx context.Context, db DBTX, row *CollectionRow) error {
	sqlStatement := `INSERT INTO collections (id, name, type, fields, list_rule, view_rule, create_rule, update_rule, delete_rule, system, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, sqlStatement,
		row.ID, row.Name, row.Type, row.FieldsJSON,
		row.ListRule, row.ViewRule, row.CreateRule, row.UpdateRule, row.DeleteRule,
		row.System, row.Version)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrCollectionExists
		}
		customLog.Warnf("Storage: Failed to insert collection '%s': %v", row.Name, err)
		return fmt.Errorf("database error creating collection: %w", err)
	}
	return nil
}

// UpdateCollectionRow replaces the mutable columns of a collection row.
func UpdateCollectionRow(ctx context.Context, db DBTX, row *CollectionRow) error {
	sqlStatement := `UPDATE collections
		SET name = ?, fields = ?, list_rule = ?, view_rule = ?, create_rule = ?, update_rule = ?, delete_rule = ?, version = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`
	result, err := db.ExecContext(ctx, sqlStatement,
		row.Name, row.FieldsJSON,
		row.ListRule, row.ViewRule, row.CreateRule, row.UpdateRule, row.DeleteRule,
		row.Version, row.ID)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrCollectionExists
		}
		customLog.Warnf("Storage: Failed to update collection '%s': %v", row.Name, err)
		return fmt.Errorf("database error updating collection: %w", err)
	}
	return requireOneRow(result, ErrCollectionNotFound)
}

// FindCollectionByName retrieves one collection row (name collates NOCASE).
func FindCollectionByName(ctx context.Context, db DBTX, name string) (*CollectionRow, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE name = ? LIMIT 1`, name)
	return scanCollection(row)
}

// ListCollections returns all collection rows ordered by name.
func ListCollections(ctx context.Context, db DBTX) ([]*CollectionRow, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+collectionColumns+` FROM collections ORDER BY name`)
	if err != nil {
		customLog.Warnf("Storage: Failed to list collections: %v", err)
		return nil, fmt.Errorf("database error listing collections: %w", err)
	}
	defer rows.Close()

	result := make([]*CollectionRow, 0)
	for rows.Next() {
		var cr CollectionRow
		if err := rows.Scan(&cr.ID, &cr.Name, &cr.Type, &cr.FieldsJSON,
			&cr.ListRule, &cr.ViewRule, &cr.CreateRule, &cr.UpdateRule, &cr.DeleteRule,
			&cr.System, &cr.Version, &cr.CreatedAt, &cr.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed reading collection row: %w", err)
		}
		result = append(result, &cr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading collection list: %w", err)
	}
	return result, nil
}

// DeleteCollection removes a collection row; its schema-version log cascades.
func DeleteCollection(ctx context.Context, db DBTX, id string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id)
	if err != nil {
		customLog.Warnf("Storage: Failed to delete collection %s: %v", id, err)
		return fmt.Errorf("database error deleting collection: %w", err)
	}
	return requireOneRow(result, ErrCollectionNotFound)
}

func scanCollection(row *sql.Row) (*CollectionRow, error) {
	var cr CollectionRow
	err := row.Scan(&cr.ID, &cr.Name, &cr.Type, &cr.FieldsJSON,
		&cr.ListRule, &cr.ViewRule, &cr.CreateRule, &cr.UpdateRule, &cr.DeleteRule,
		&cr.System, &cr.Version, &cr.CreatedAt, &cr.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCollectionNotFound
		}
		customLog.Warnf("Storage: Failed to scan collection: %v", err)
		return nil, fmt.Errorf("database error finding collection: %w", err)
	}
	return &cr, nil
}

// --- Schema version log (append-only) ---

// AppendSchemaVersion records one schema snapshot. Versions are never
// overwritten; the UNIQUE constraint guards the monotonic history.
func AppendSchemaVersion(ctx context.Context, db DBTX, collectionID string, version int, fieldsJSON string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO schema_versions (collection_id, version, fields) VALUES (?, ?, ?)`,
		collectionID, version, fieldsJSON)
	if err != nil {
		customLog.Warnf("Storage: Failed to append schema version %d for %s: %v", version, collectionID, err)
		return fmt.Errorf("database error appending schema version: %w", err)
	}
	return nil
}

// FindSchemaVersion retrieves the field set persisted for one version.
func FindSchemaVersion(ctx context.Context, db DBTX, collectionID string, version int) (string, error) {
	var fieldsJSON string
	err := db.QueryRowContext(ctx,
		`SELECT fields FROM schema_versions WHERE collection_id = ? AND version = ? LIMIT 1`,
		collectionID, version).Scan(&fieldsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrVersionNotFound
		}
		return "", fmt.Errorf("database error finding schema version: %w", err)
	}
	return fieldsJSON, nil
}

// DropSchemaVersion removes one version row. Only the migration rollback
// path uses this, to keep the log consistent after a failed synchronization.
func DropSchemaVersion(ctx context.Context, db DBTX, collectionID string, version int) error {
	_, err := db.ExecContext(ctx,
		`DELETE FROM schema_versions WHERE collection_id = ? AND version = ?`,
		collectionID, version)
	if err != nil {
		return fmt.Errorf("database error dropping schema version: %w", err)
	}
	return nil
}
