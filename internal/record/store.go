// internal/record/store.go
//
// Package record implements generic CRUD against a collection's storage
// table. There are no compiled models: every write is validated against the
// collection's current schema snapshot, and reads surface exactly the fields
// that snapshot declares (columns left behind by older versions are ignored,
// not purged).
package record

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/vertabase/verta-backend/internal/core"
	"github.com/vertabase/verta-backend/internal/domain"
	"github.com/vertabase/verta-backend/internal/logger"
	"github.com/vertabase/verta-backend/internal/schema"
)

var customLog = logger.NewLogger()

// Specific errors for record operations
var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrUniqueViolation = errors.New("a record with this value already exists")
)

// Store performs validated record CRUD for dynamic collections.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ListResult is one page of records.
type ListResult struct {
	Items      []*domain.Record
	Total      int
	Page       int
	PerPage    int
	TotalPages int
}

// Create validates data against the collection's current schema and inserts
// a new row. Unknown fields are rejected; declared defaults fill fields the
// payload omits.
func (s *Store) Create(ctx context.Context, col *schema.Collection, data map[string]any) (*domain.Record, error) {
	if data == nil {
		data = map[string]any{}
	}
	if err := schema.ValidateRecord(col.Fields, data, true); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	columns := []string{"id"}
	placeholders := []string{"?"}
	values := []any{id}

	for _, f := range col.Fields {
		v, ok := data[f.Name]
		if !ok {
			if f.Default == nil {
				continue
			}
			v = f.Default
		}
		encoded, err := encodeValue(f, v)
		if err != nil {
			return nil, err
		}
		columns = append(columns, quoteIdent(f.Name))
		placeholders = append(placeholders, "?")
		values = append(values, encoded)
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(col.Name), strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	if _, err := s.db.ExecContext(ctx, insertSQL, values...); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return nil, ErrUniqueViolation
		}
		customLog.Warnf("Record: INSERT into '%s' failed: %v", col.Name, err)
		return nil, fmt.Errorf("database error creating record: %w", err)
	}

	return s.Get(ctx, col, id)
}

// Get retrieves one record by id, shaped by the current schema.
func (s *Store) Get(ctx context.Context, col *schema.Collection, id string) (*domain.Record, error) {
	selectSQL := fmt.Sprintf("SELECT %s FROM %s WHERE id = ? LIMIT 1", selectColumns(col), quoteIdent(col.Name))
	rows, err := s.db.QueryContext(ctx, selectSQL, id)
	if err != nil {
		customLog.Warnf("Record: SELECT from '%s' failed: %v", col.Name, err)
		return nil, fmt.Errorf("database error getting record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed checking for record: %w", err)
		}
		return nil, ErrRecordNotFound
	}
	return scanRecord(rows, col)
}

// List returns one page of records with optional equality filters and
// sorting, plus the total match count so callers can page through lazily and
// restart from any page.
func (s *Store) List(ctx context.Context, col *schema.Collection, opts *core.ListQueryOptions) (*ListResult, error) {
	whereClauses := []string{}
	args := []any{}

	for key, raw := range opts.Filters {
		f, ok := schema.FieldByName(col.Fields, key)
		if !ok {
			verr := schema.NewValidationError()
			verr.Fields[key] = "unknown filter field"
			return nil, verr
		}
		converted, err := convertFilterValue(f, raw)
		if err != nil {
			verr := schema.NewValidationError()
			verr.Fields[key] = err.Error()
			return nil, verr
		}
		whereClauses = append(whereClauses, fmt.Sprintf("%s = ?", quoteIdent(f.Name)))
		args = append(args, converted)
	}

	where := ""
	if len(whereClauses) > 0 {
		where = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", quoteIdent(col.Name), where)
	var total int
	if err := s.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		customLog.Warnf("Record: COUNT on '%s' failed: %v", col.Name, err)
		return nil, fmt.Errorf("database error listing records: %w", err)
	}

	orderBy := "created_at"
	switch opts.SortBy {
	case "", "created":
	case "updated":
		orderBy = "updated_at"
	case "id":
		orderBy = "id"
	default:
		if _, ok := schema.FieldByName(col.Fields, opts.SortBy); !ok {
			verr := schema.NewValidationError()
			verr.Fields[opts.SortBy] = "unknown sort field"
			return nil, verr
		}
		orderBy = quoteIdent(opts.SortBy)
	}
	direction := "ASC"
	if opts.SortOrder == "desc" {
		direction = "DESC"
	}

	listSQL := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s %s LIMIT ? OFFSET ?",
		selectColumns(col), quoteIdent(col.Name), where, orderBy, direction)
	listArgs := append(append([]any{}, args...), opts.PerPage, (opts.Page-1)*opts.PerPage)

	rows, err := s.db.QueryContext(ctx, listSQL, listArgs...)
	if err != nil {
		customLog.Warnf("Record: SELECT list from '%s' failed: %v", col.Name, err)
		return nil, fmt.Errorf("database error listing records: %w", err)
	}
	defer rows.Close()

	items := make([]*domain.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows, col)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading record list: %w", err)
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + opts.PerPage - 1) / opts.PerPage
	}
	return &ListResult{
		Items:      items,
		Total:      total,
		Page:       opts.Page,
		PerPage:    opts.PerPage,
		TotalPages: totalPages,
	}, nil
}

// Update applies a partial patch. Only the supplied fields change; the row
// level is last-write-wins under concurrency.
func (s *Store) Update(ctx context.Context, col *schema.Collection, id string, patch map[string]any) (*domain.Record, error) {
	if err := schema.ValidateRecord(col.Fields, patch, false); err != nil {
		return nil, err
	}

	if len(patch) == 0 {
		return s.Get(ctx, col, id)
	}

	setClauses := []string{}
	values := []any{}
	for _, f := range col.Fields {
		v, ok := patch[f.Name]
		if !ok {
			continue
		}
		encoded, err := encodeValue(f, v)
		if err != nil {
			return nil, err
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = ?", quoteIdent(f.Name)))
		values = append(values, encoded)
	}
	setClauses = append(setClauses, "updated_at = CURRENT_TIMESTAMP")
	values = append(values, id)

	updateSQL := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?",
		quoteIdent(col.Name), strings.Join(setClauses, ", "))

	result, err := s.db.ExecContext(ctx, updateSQL, values...)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return nil, ErrUniqueViolation
		}
		customLog.Warnf("Record: UPDATE on '%s' failed: %v", col.Name, err)
		return nil, fmt.Errorf("database error updating record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed confirming update: %w", err)
	}
	if affected == 0 {
		return nil, ErrRecordNotFound
	}

	return s.Get(ctx, col, id)
}

// Delete removes one record by id.
func (s *Store) Delete(ctx context.Context, col *schema.Collection, id string) error {
	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE id = ?", quoteIdent(col.Name))
	result, err := s.db.ExecContext(ctx, deleteSQL, id)
	if err != nil {
		customLog.Warnf("Record: DELETE on '%s' failed: %v", col.Name, err)
		return fmt.Errorf("database error deleting record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed confirming delete: %w", err)
	}
	if affected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// selectColumns builds the projection for the current schema: system columns
// plus every declared field. Columns from dropped fields are never selected.
func selectColumns(col *schema.Collection) string {
	cols := []string{"id", "created_at", "updated_at"}
	for _, f := range col.Fields {
		cols = append(cols, quoteIdent(f.Name))
	}
	return strings.Join(cols, ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(rows rowScanner, col *schema.Collection) (*domain.Record, error) {
	rec := &domain.Record{Data: make(map[string]any, len(col.Fields))}

	fieldValues := make([]any, len(col.Fields))
	dest := []any{&rec.ID, &rec.CreatedAt, &rec.UpdatedAt}
	for i := range fieldValues {
		dest = append(dest, &fieldValues[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("failed reading record data: %w", err)
	}

	for i, f := range col.Fields {
		rec.Data[f.Name] = decodeValue(f, fieldValues[i])
	}
	return rec, nil
}

// encodeValue converts a validated payload value to its storage shape.
func encodeValue(f schema.Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if f.Type == schema.TypeFile {
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed encoding file ids for '%s': %w", f.Name, err)
		}
		return string(encoded), nil
	}
	return v, nil
}

// decodeValue converts a stored value back to its API shape.
func decodeValue(f schema.Field, v any) any {
	if v == nil {
		return nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch f.Type {
	case schema.TypeBool:
		switch n := v.(type) {
		case bool:
			return n
		case int64:
			return n != 0
		}
	case schema.TypeNumber:
		switch n := v.(type) {
		case float64:
			return n
		case int64:
			return float64(n)
		}
	case schema.TypeFile:
		if s, ok := v.(string); ok {
			var ids []any
			if err := json.Unmarshal([]byte(s), &ids); err == nil {
				return ids
			}
		}
	case schema.TypeDate:
		if t, ok := v.(time.Time); ok {
			return t.Format(time.RFC3339)
		}
	}
	return v
}

// convertFilterValue coerces a raw query-string filter to the field's type.
func convertFilterValue(f schema.Field, raw string) (any, error) {
	switch f.Type {
	case schema.TypeNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("expected a number")
		}
		return n, nil
	case schema.TypeBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("expected true or false")
		}
		return b, nil
	default:
		return raw, nil
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, ``) + `"`
}
