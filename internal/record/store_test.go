// internal/record/store_test.go
package record

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/vertabase/verta-backend/config"
	"github.com/vertabase/verta-backend/internal/core"
	"github.com/vertabase/verta-backend/internal/migrate"
	"github.com/vertabase/verta-backend/internal/schema"
	"github.com/vertabase/verta-backend/internal/storage"
)

func intPtr(v int) *int { return &v }

func newTestStore(t *testing.T) (*Store, *sql.DB, *migrate.Synthesizer) {
	t.Helper()
	db, err := storage.ConnectDB(&config.Config{DataDir: t.TempDir(), DBFile: "test.db"})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db), db, migrate.NewSynthesizer(db)
}

func postsCollection(fields ...schema.Field) *schema.Collection {
	return &schema.Collection{
		ID:      "col1",
		Name:    "posts",
		Type:    schema.Base,
		Fields:  fields,
		Version: 1,
	}
}

func defaultPosts(t *testing.T) (*Store, *schema.Collection, *migrate.Synthesizer) {
	t.Helper()
	store, _, synth := newTestStore(t)
	col := postsCollection(
		schema.Field{Name: "title", Type: schema.TypeText, Validation: schema.Validation{Required: true, MaxLength: intPtr(200)}},
		schema.Field{Name: "published", Type: schema.TypeBool},
		schema.Field{Name: "views", Type: schema.TypeNumber},
	)
	if err := synth.CreateTable(context.Background(), col); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	return store, col, synth
}

func TestCreateAndGet(t *testing.T) {
	store, col, _ := defaultPosts(t)
	ctx := context.Background()

	rec, err := store.Create(ctx, col, map[string]any{"title": "hello", "published": true})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if rec.ID == "" {
		t.Errorf("created record has no id")
	}
	if rec.Data["title"] != "hello" {
		t.Errorf("title = %v; want hello", rec.Data["title"])
	}
	if rec.Data["published"] != true {
		t.Errorf("published = %v; want true", rec.Data["published"])
	}
	// Unset nullable fields echo back as null.
	if rec.Data["views"] != nil {
		t.Errorf("views = %v; want nil", rec.Data["views"])
	}

	got, err := store.Get(ctx, col, rec.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Data["title"] != "hello" {
		t.Errorf("Get title = %v; want hello", got.Data["title"])
	}
}

func TestCreateValidation(t *testing.T) {
	store, col, _ := defaultPosts(t)
	ctx := context.Background()

	testCases := []struct {
		name      string
		data      map[string]any
		wantField string
	}{
		{"missing required", map[string]any{"published": true}, "title"},
		{"title too long", map[string]any{"title": strings.Repeat("a", 201)}, "title"},
		{"unknown field", map[string]any{"title": "x", "color": "red"}, "color"},
		{"wrong type", map[string]any{"title": "x", "views": "ten"}, "views"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := store.Create(ctx, col, tc.data)
			var verr *schema.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Create = %v (%T); want *ValidationError", err, err)
			}
			if _, ok := verr.Fields[tc.wantField]; !ok {
				t.Errorf("errors = %v; want an entry for %q", verr.Fields, tc.wantField)
			}
		})
	}
}

func TestCreateAppliesDefaults(t *testing.T) {
	store, _, synth := newTestStore(t)
	col := postsCollection(
		schema.Field{Name: "title", Type: schema.TypeText, Validation: schema.Validation{Required: true}},
		schema.Field{Name: "status", Type: schema.TypeSelect, Validation: schema.Validation{Values: []string{"draft", "live"}}, Default: "draft"},
	)
	ctx := context.Background()
	if err := synth.CreateTable(ctx, col); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}

	rec, err := store.Create(ctx, col, map[string]any{"title": "x"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if rec.Data["status"] != "draft" {
		t.Errorf("default not applied: status = %v", rec.Data["status"])
	}
}

func TestUniqueViolation(t *testing.T) {
	store, _, synth := newTestStore(t)
	col := postsCollection(
		schema.Field{Name: "slug", Type: schema.TypeText, Validation: schema.Validation{Required: true, Unique: true}},
	)
	ctx := context.Background()
	if err := synth.CreateTable(ctx, col); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}

	if _, err := store.Create(ctx, col, map[string]any{"slug": "a"}); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	if _, err := store.Create(ctx, col, map[string]any{"slug": "a"}); !errors.Is(err, ErrUniqueViolation) {
		t.Errorf("duplicate Create = %v; want ErrUniqueViolation", err)
	}
}

func TestUpdate(t *testing.T) {
	store, col, _ := defaultPosts(t)
	ctx := context.Background()

	rec, err := store.Create(ctx, col, map[string]any{"title": "hello"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	updated, err := store.Update(ctx, col, rec.ID, map[string]any{"published": true})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Data["published"] != true {
		t.Errorf("patched field not applied")
	}
	if updated.Data["title"] != "hello" {
		t.Errorf("untouched field changed: title = %v", updated.Data["title"])
	}

	// Patch validation still applies.
	_, err = store.Update(ctx, col, rec.ID, map[string]any{"title": nil})
	var verr *schema.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("nulling a required field = %v; want *ValidationError", err)
	}

	if _, err := store.Update(ctx, col, "missing", map[string]any{"published": false}); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Update on missing id = %v; want ErrRecordNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	store, col, _ := defaultPosts(t)
	ctx := context.Background()

	rec, err := store.Create(ctx, col, map[string]any{"title": "hello"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.Delete(ctx, col, rec.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, col, rec.ID); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Get after delete = %v; want ErrRecordNotFound", err)
	}
	if err := store.Delete(ctx, col, rec.ID); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("double Delete = %v; want ErrRecordNotFound", err)
	}
}

func TestList(t *testing.T) {
	store, col, _ := defaultPosts(t)
	ctx := context.Background()

	for i, item := range []map[string]any{
		{"title": "a", "published": true, "views": float64(3)},
		{"title": "b", "published": false, "views": float64(1)},
		{"title": "c", "published": true, "views": float64(2)},
	} {
		if _, err := store.Create(ctx, col, item); err != nil {
			t.Fatalf("seed %d failed: %v", i, err)
		}
	}

	parse := func(raw string) *core.ListQueryOptions {
		values, err := url.ParseQuery(raw)
		if err != nil {
			t.Fatalf("bad query %q: %v", raw, err)
		}
		opts, err := core.ParseListQueryOptions(values)
		if err != nil {
			t.Fatalf("ParseListQueryOptions(%q) failed: %v", raw, err)
		}
		return opts
	}

	all, err := store.List(ctx, col, parse(""))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if all.Total != 3 || len(all.Items) != 3 {
		t.Errorf("List total = %d, items = %d; want 3, 3", all.Total, len(all.Items))
	}

	published, err := store.List(ctx, col, parse("published=true"))
	if err != nil {
		t.Fatalf("filtered List failed: %v", err)
	}
	if published.Total != 2 {
		t.Errorf("filtered total = %d; want 2", published.Total)
	}

	sorted, err := store.List(ctx, col, parse("sort=views&order=desc"))
	if err != nil {
		t.Fatalf("sorted List failed: %v", err)
	}
	if sorted.Items[0].Data["title"] != "a" {
		t.Errorf("desc sort by views, first = %v; want a", sorted.Items[0].Data["title"])
	}

	paged, err := store.List(ctx, col, parse("perPage=2&page=2"))
	if err != nil {
		t.Fatalf("paged List failed: %v", err)
	}
	if len(paged.Items) != 1 || paged.TotalPages != 2 {
		t.Errorf("page 2 items = %d, totalPages = %d; want 1, 2", len(paged.Items), paged.TotalPages)
	}

	if _, err := store.List(ctx, col, parse("color=red")); err == nil {
		t.Errorf("filter on unknown field should fail")
	}
	if _, err := store.List(ctx, col, parse("sort=color")); err == nil {
		t.Errorf("sort on unknown field should fail")
	}
}

// After a column is dropped from the schema, reads shaped by the new
// snapshot must omit it even though SQLite may still hold stale data.
func TestReadAfterSchemaChange(t *testing.T) {
	store, _, synth := newTestStore(t)
	ctx := context.Background()

	title := schema.Field{Name: "title", Type: schema.TypeText, Validation: schema.Validation{Required: true}}
	published := schema.Field{Name: "published", Type: schema.TypeBool}

	v1 := postsCollection(title, published)
	if err := synth.CreateTable(ctx, v1); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	rec, err := store.Create(ctx, v1, map[string]any{"title": "hello", "published": true})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	v2 := postsCollection(title)
	v2.Version = 2

	got, err := store.Get(ctx, v2, rec.ID)
	if err != nil {
		t.Fatalf("Get with new snapshot failed: %v", err)
	}
	if _, present := got.Data["published"]; present {
		t.Errorf("dropped field still surfaces in reads")
	}

	if _, err := store.Create(ctx, v2, map[string]any{"title": "x", "published": true}); err == nil {
		t.Errorf("write against a dropped field should fail validation")
	}
}
