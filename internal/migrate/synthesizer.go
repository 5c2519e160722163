// internal/migrate/synthesizer.go
//
// Package migrate keeps collection storage tables in lockstep with their
// schema versions. It diffs two field sets, logs the resulting change set
// (column drops are destructive and irreversible), and applies every column
// change inside a single transaction.
package migrate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vertabase/verta-backend/internal/logger"
	"github.com/vertabase/verta-backend/internal/schema"
)

var customLog = logger.NewLogger()

// Error wraps any storage synchronization failure. By the time it surfaces,
// the transaction has been rolled back and the table still matches the prior
// schema version.
type Error struct {
	Collection string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("migration failed for collection '%s': %v", e.Collection, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ChangeSet is the structural difference between two schema versions.
// A type change of an existing field appears as a drop plus an add; no
// in-place coercion is ever attempted.
type ChangeSet struct {
	Collection  string
	FromVersion int
	ToVersion   int
	AddColumns  []schema.Field
	DropColumns []string
}

// Empty reports whether the change set carries no structural change.
func (cs *ChangeSet) Empty() bool {
	return len(cs.AddColumns) == 0 && len(cs.DropColumns) == 0
}

// Diff computes the column changes needed to move a table from the old field
// set to the new one. Field names compare case-insensitively.
func Diff(prev, next []schema.Field) (add []schema.Field, drop []string) {
	for _, f := range prev {
		n, ok := schema.FieldByName(next, f.Name)
		if !ok || n.Type != f.Type {
			drop = append(drop, f.Name)
		}
	}
	for _, f := range next {
		o, ok := schema.FieldByName(prev, f.Name)
		if !ok || o.Type != f.Type {
			add = append(add, f)
		}
	}
	return add, drop
}

// Synthesizer applies storage-shape changes for collections.
type Synthesizer struct {
	db *sql.DB
}

func NewSynthesizer(db *sql.DB) *Synthesizer {
	return &Synthesizer{db: db}
}

// CreateTable provisions the storage table for a freshly defined collection:
// system columns plus one column per field. Every field column is nullable;
// required is a write-time constraint, not a storage one.
func (s *Synthesizer) CreateTable(ctx context.Context, col *schema.Collection) error {
	defs := []string{
		"id TEXT PRIMARY KEY",
		"created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP",
		"updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP",
	}
	for _, f := range col.Fields {
		defs = append(defs, columnDef(f))
	}
	createSQL := fmt.Sprintf("CREATE TABLE %s (%s);", quoteIdent(col.Name), strings.Join(defs, ", "))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &Error{Collection: col.Name, Err: err}
	}
	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		tx.Rollback()
		customLog.Warnf("Migrate: CREATE TABLE failed for '%s': %v", col.Name, err)
		return &Error{Collection: col.Name, Err: err}
	}
	for _, f := range col.Fields {
		if !f.Validation.Unique {
			continue
		}
		if _, err := tx.ExecContext(ctx, uniqueIndexSQL(col.Name, f)); err != nil {
			tx.Rollback()
			customLog.Warnf("Migrate: unique index failed for '%s.%s': %v", col.Name, f.Name, err)
			return &Error{Collection: col.Name, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &Error{Collection: col.Name, Err: err}
	}

	customLog.Printf("Migrate: Created table '%s' with %d field column(s)", col.Name, len(col.Fields))
	return nil
}

// Synchronize moves a collection's table from the old snapshot's shape to
// the new one. The full column-change set commits atomically; any failure
// rolls everything back and reports a *Error.
func (s *Synthesizer) Synchronize(ctx context.Context, prev, next *schema.Collection) error {
	add, drop := Diff(prev.Fields, next.Fields)
	cs := &ChangeSet{
		Collection:  next.Name,
		FromVersion: prev.Version,
		ToVersion:   next.Version,
		AddColumns:  add,
		DropColumns: drop,
	}

	// The change set is logged before anything is applied: dropped columns
	// discard data irreversibly.
	logChangeSet(cs)

	if cs.Empty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &Error{Collection: next.Name, Err: err}
	}

	for _, name := range drop {
		// SQLite refuses to drop an indexed column, so any index covering
		// the column (unique fields get one at create time) goes first.
		if err := dropColumnIndexes(ctx, tx, next.Name, name); err != nil {
			tx.Rollback()
			customLog.Warnf("Migrate: dropping indexes on '%s.%s' failed: %v", next.Name, name, err)
			return &Error{Collection: next.Name, Err: err}
		}
		dropSQL := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;", quoteIdent(next.Name), quoteIdent(name))
		if _, err := tx.ExecContext(ctx, dropSQL); err != nil {
			tx.Rollback()
			customLog.Warnf("Migrate: DROP COLUMN '%s.%s' failed: %v", next.Name, name, err)
			return &Error{Collection: next.Name, Err: err}
		}
	}
	for _, f := range add {
		// Added columns are nullable regardless of the declared required
		// constraint: existing rows cannot be backfilled reliably.
		addSQL := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s;", quoteIdent(next.Name), columnDef(f))
		if _, err := tx.ExecContext(ctx, addSQL); err != nil {
			tx.Rollback()
			customLog.Warnf("Migrate: ADD COLUMN '%s.%s' failed: %v", next.Name, f.Name, err)
			return &Error{Collection: next.Name, Err: err}
		}
		if f.Validation.Unique {
			if _, err := tx.ExecContext(ctx, uniqueIndexSQL(next.Name, f)); err != nil {
				tx.Rollback()
				customLog.Warnf("Migrate: unique index failed for '%s.%s': %v", next.Name, f.Name, err)
				return &Error{Collection: next.Name, Err: err}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &Error{Collection: next.Name, Err: err}
	}

	customLog.Printf("Migrate: Synchronized '%s' from version %d to %d (+%d column(s), -%d column(s))",
		next.Name, prev.Version, next.Version, len(add), len(drop))
	return nil
}

// RenameTable follows a collection rename.
func (s *Synthesizer) RenameTable(ctx context.Context, oldName, newName string) error {
	renameSQL := fmt.Sprintf("ALTER TABLE %s RENAME TO %s;", quoteIdent(oldName), quoteIdent(newName))
	if _, err := s.db.ExecContext(ctx, renameSQL); err != nil {
		customLog.Warnf("Migrate: RENAME TABLE '%s' -> '%s' failed: %v", oldName, newName, err)
		return &Error{Collection: oldName, Err: err}
	}
	customLog.Printf("Migrate: Renamed table '%s' to '%s'", oldName, newName)
	return nil
}

// DropTable removes a collection's storage table and all of its records.
func (s *Synthesizer) DropTable(ctx context.Context, name string) error {
	dropSQL := fmt.Sprintf("DROP TABLE IF EXISTS %s;", quoteIdent(name))
	if _, err := s.db.ExecContext(ctx, dropSQL); err != nil {
		customLog.Warnf("Migrate: DROP TABLE '%s' failed: %v", name, err)
		return &Error{Collection: name, Err: err}
	}
	customLog.Printf("Migrate: Dropped table '%s'", name)
	return nil
}

func columnDef(f schema.Field) string {
	def := fmt.Sprintf("%s %s", quoteIdent(f.Name), schema.ColumnType(f.Type))
	if f.Validation.Unique && schema.ColumnType(f.Type) == "TEXT" {
		// Unique string fields compare case-insensitively (email being the
		// motivating case).
		def += " COLLATE NOCASE"
	}
	return def
}

// dropColumnIndexes removes every index covering the named column. Index
// names are looked up rather than derived, since they keep the table name
// they were created under across renames.
func dropColumnIndexes(ctx context.Context, tx *sql.Tx, table, column string) error {
	rows, err := tx.QueryContext(ctx, `SELECT name FROM pragma_index_list(?)`, table)
	if err != nil {
		return err
	}
	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		indexes = append(indexes, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, idx := range indexes {
		// Internal indexes (primary key autoindex) cannot be dropped and
		// never cover field columns.
		if strings.HasPrefix(idx, "sqlite_") {
			continue
		}
		covers, err := indexCovers(ctx, tx, idx, column)
		if err != nil {
			return err
		}
		if !covers {
			continue
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP INDEX IF EXISTS %s;", quoteIdent(idx))); err != nil {
			return err
		}
	}
	return nil
}

func indexCovers(ctx context.Context, tx *sql.Tx, index, column string) (bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT name FROM pragma_index_info(?)`, index)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}

func uniqueIndexSQL(table string, f schema.Field) string {
	return fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s);",
		table, f.Name, quoteIdent(table), quoteIdent(f.Name))
}

// quoteIdent wraps an already-validated identifier so names never splice
// into SQL unquoted.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, ``) + `"`
}

func logChangeSet(cs *ChangeSet) {
	encoded, err := json.Marshal(cs)
	if err != nil {
		customLog.Warnf("Migrate: change set for '%s' (v%d -> v%d) could not be encoded: %v",
			cs.Collection, cs.FromVersion, cs.ToVersion, err)
		return
	}
	customLog.Printf("Migrate: change set: %s", encoded)
}
