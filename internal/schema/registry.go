// internal/schema/registry.go
package schema

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/vertabase/verta-backend/internal/core"
	"github.com/vertabase/verta-backend/internal/logger"
	"github.com/vertabase/verta-backend/internal/storage"
)

var customLog = logger.NewLogger()

// systemTables are table names collections may never claim.
var systemTables = map[string]bool{
	"users": true, "collections": true, "schema_versions": true, "refresh_tokens": true,
}

// Registry owns collection metadata: definitions, rule texts and the
// append-only version log. It has no storage-shape side effects; column
// changes are the migration synthesizer's job.
//
// Collections handed out are immutable snapshots: every mutation builds a
// new value and swaps the cache entry, so concurrent readers keep whatever
// version they resolved.
type Registry struct {
	db *sql.DB

	mu    sync.RWMutex
	cache map[string]*Collection // keyed by lowercase name
}

// DefineInput is the payload for Registry.Define.
type DefineInput struct {
	Name   string
	Type   CollectionType
	Fields []Field
	Rules  RuleSet
}

// UpdateInput is the payload for Registry.Update. Nil members leave the
// corresponding part of the collection unchanged.
type UpdateInput struct {
	NewName *string
	Fields  []Field
	Rules   RuleSet
}

// NewRegistry loads every persisted collection into the in-memory cache,
// compiling all rule expressions up front.
func NewRegistry(ctx context.Context, db *sql.DB) (*Registry, error) {
	r := &Registry{db: db, cache: make(map[string]*Collection)}

	rows, err := storage.ListCollections(ctx, db)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		col, err := collectionFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("failed loading collection '%s': %w", row.Name, err)
		}
		r.cache[strings.ToLower(col.Name)] = col
	}

	customLog.Printf("Schema: Registry loaded %d collection(s)", len(r.cache))
	return r, nil
}

// Define validates and persists a brand new collection at version 1.
func (r *Registry) Define(ctx context.Context, in DefineInput) (*Collection, error) {
	if !core.IsValidIdentifier(in.Name) || core.IsReservedName(in.Name) ||
		systemTables[strings.ToLower(in.Name)] || strings.HasPrefix(strings.ToLower(in.Name), "sqlite_") {
		return nil, newSchemaError("invalid collection name '%s'", in.Name)
	}
	switch in.Type {
	case "":
		in.Type = Base
	case Base, Auth, View:
	default:
		return nil, newSchemaError("unsupported collection type '%s'", in.Type)
	}
	if err := ValidateFields(in.Fields); err != nil {
		return nil, err
	}

	col := &Collection{
		ID:         uuid.NewString(),
		Name:       in.Name,
		Type:       in.Type,
		Fields:     in.Fields,
		ListRule:   in.Rules.List,
		ViewRule:   in.Rules.View,
		CreateRule: in.Rules.Create,
		UpdateRule: in.Rules.Update,
		DeleteRule: in.Rules.Delete,
		Version:    1,
	}
	if err := col.compileRules(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.cache[strings.ToLower(in.Name)]; exists {
		return nil, storage.ErrCollectionExists
	}

	row, err := collectionToRow(col)
	if err != nil {
		return nil, err
	}
	if err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := storage.InsertCollection(ctx, tx, row); err != nil {
			return err
		}
		return storage.AppendSchemaVersion(ctx, tx, col.ID, col.Version, row.FieldsJSON)
	}); err != nil {
		return nil, err
	}

	// Read timestamps back so the returned snapshot matches storage.
	if persisted, err := storage.FindCollectionByName(ctx, r.db, col.Name); err == nil {
		col.CreatedAt = persisted.CreatedAt
		col.UpdatedAt = persisted.UpdatedAt
	}

	r.cache[strings.ToLower(col.Name)] = col
	customLog.Printf("Schema: Defined collection '%s' (version 1)", col.Name)
	return col, nil
}

// Get resolves a collection snapshot by name (case-insensitive).
func (r *Registry) Get(name string) (*Collection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	col, ok := r.cache[strings.ToLower(name)]
	if !ok {
		return nil, storage.ErrCollectionNotFound
	}
	return col, nil
}

// List returns every collection snapshot, ordered by name at load time.
func (r *Registry) List() []*Collection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Collection, 0, len(r.cache))
	for _, col := range r.cache {
		result = append(result, col)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Update builds and persists the next schema version. It returns both the
// previous and the new snapshot so the caller can synchronize storage; on
// migration failure the caller must invoke Restore with the old snapshot.
func (r *Registry) Update(ctx context.Context, name string, in UpdateInput) (old, updated *Collection, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.cache[strings.ToLower(name)]
	if !ok {
		return nil, nil, storage.ErrCollectionNotFound
	}
	if old.System {
		return nil, nil, newSchemaError("cannot modify system collection '%s'", old.Name)
	}

	next := *old
	next.Version = old.Version + 1

	if in.NewName != nil && !strings.EqualFold(*in.NewName, old.Name) {
		if !core.IsValidIdentifier(*in.NewName) || core.IsReservedName(*in.NewName) ||
			systemTables[strings.ToLower(*in.NewName)] || strings.HasPrefix(strings.ToLower(*in.NewName), "sqlite_") {
			return nil, nil, newSchemaError("invalid collection name '%s'", *in.NewName)
		}
		if _, exists := r.cache[strings.ToLower(*in.NewName)]; exists {
			return nil, nil, storage.ErrCollectionExists
		}
		next.Name = *in.NewName
	}

	if in.Fields != nil {
		if err := ValidateFields(in.Fields); err != nil {
			return nil, nil, err
		}
		next.Fields = in.Fields
	}
	if in.Rules.List != nil {
		next.ListRule = in.Rules.List
	}
	if in.Rules.View != nil {
		next.ViewRule = in.Rules.View
	}
	if in.Rules.Create != nil {
		next.CreateRule = in.Rules.Create
	}
	if in.Rules.Update != nil {
		next.UpdateRule = in.Rules.Update
	}
	if in.Rules.Delete != nil {
		next.DeleteRule = in.Rules.Delete
	}
	if err := next.compileRules(); err != nil {
		return nil, nil, err
	}

	row, err := collectionToRow(&next)
	if err != nil {
		return nil, nil, err
	}
	if err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := storage.UpdateCollectionRow(ctx, tx, row); err != nil {
			return err
		}
		return storage.AppendSchemaVersion(ctx, tx, next.ID, next.Version, row.FieldsJSON)
	}); err != nil {
		return nil, nil, err
	}

	delete(r.cache, strings.ToLower(old.Name))
	r.cache[strings.ToLower(next.Name)] = &next
	customLog.Printf("Schema: Updated collection '%s' to version %d", next.Name, next.Version)
	return old, &next, nil
}

// Restore rolls the metadata back to a previous snapshot after a failed
// storage synchronization, dropping the version row the failed update
// appended.
func (r *Registry) Restore(ctx context.Context, old *Collection, failedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, err := collectionToRow(old)
	if err != nil {
		return err
	}
	if err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := storage.UpdateCollectionRow(ctx, tx, row); err != nil {
			return err
		}
		return storage.DropSchemaVersion(ctx, tx, old.ID, failedVersion)
	}); err != nil {
		return err
	}

	for key, col := range r.cache {
		if col.ID == old.ID {
			delete(r.cache, key)
		}
	}
	r.cache[strings.ToLower(old.Name)] = old
	customLog.Warnf("Schema: Restored collection '%s' to version %d after failed migration", old.Name, old.Version)
	return nil
}

// Drop removes a collection's metadata and version log, returning the last
// snapshot so the caller can drop its storage table.
func (r *Registry) Drop(ctx context.Context, name string) (*Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	col, ok := r.cache[strings.ToLower(name)]
	if !ok {
		return nil, storage.ErrCollectionNotFound
	}
	if col.System {
		return nil, newSchemaError("cannot delete system collection '%s'", col.Name)
	}

	if err := storage.DeleteCollection(ctx, r.db, col.ID); err != nil {
		return nil, err
	}

	delete(r.cache, strings.ToLower(name))
	customLog.Printf("Schema: Dropped collection '%s'", col.Name)
	return col, nil
}

// FieldsAt loads the field set persisted for an arbitrary version, for
// callers diffing non-adjacent history.
func (r *Registry) FieldsAt(ctx context.Context, collectionID string, version int) ([]Field, error) {
	fieldsJSON, err := storage.FindSchemaVersion(ctx, r.db, collectionID, version)
	if err != nil {
		return nil, err
	}
	var fields []Field
	if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
		return nil, fmt.Errorf("corrupt schema version %d: %w", version, err)
	}
	return fields, nil
}

func (r *Registry) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin metadata transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			customLog.Warnf("Schema: rollback failed: %v", rbErr)
		}
		return err
	}
	return tx.Commit()
}

func collectionToRow(col *Collection) (*storage.CollectionRow, error) {
	fieldsJSON, err := json.Marshal(col.Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fields: %w", err)
	}
	return &storage.CollectionRow{
		ID:         col.ID,
		Name:       col.Name,
		Type:       string(col.Type),
		FieldsJSON: string(fieldsJSON),
		ListRule:   col.ListRule,
		ViewRule:   col.ViewRule,
		CreateRule: col.CreateRule,
		UpdateRule: col.UpdateRule,
		DeleteRule: col.DeleteRule,
		System:     col.System,
		Version:    col.Version,
	}, nil
}

func collectionFromRow(row *storage.CollectionRow) (*Collection, error) {
	var fields []Field
	if err := json.Unmarshal([]byte(row.FieldsJSON), &fields); err != nil {
		return nil, fmt.Errorf("corrupt field definitions: %w", err)
	}
	col := &Collection{
		ID:         row.ID,
		Name:       row.Name,
		Type:       CollectionType(row.Type),
		Fields:     fields,
		ListRule:   row.ListRule,
		ViewRule:   row.ViewRule,
		CreateRule: row.CreateRule,
		UpdateRule: row.UpdateRule,
		DeleteRule: row.DeleteRule,
		System:     row.System,
		Version:    row.Version,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
	if err := col.compileRules(); err != nil {
		return nil, err
	}
	return col, nil
}
