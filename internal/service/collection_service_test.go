// internal/service/collection_service_test.go
package service

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"testing"

	"github.com/vertabase/verta-backend/config"
	"github.com/vertabase/verta-backend/internal/core"
	"github.com/vertabase/verta-backend/internal/domain"
	"github.com/vertabase/verta-backend/internal/migrate"
	"github.com/vertabase/verta-backend/internal/record"
	"github.com/vertabase/verta-backend/internal/schema"
	"github.com/vertabase/verta-backend/internal/storage"
)

func strPtr(s string) *string { return &s }
func intPtr(v int) *int       { return &v }

func newTestService(t *testing.T) (*CollectionService, *sql.DB) {
	t.Helper()
	db, err := storage.ConnectDB(&config.Config{DataDir: t.TempDir(), DBFile: "test.db"})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	registry, err := schema.NewRegistry(context.Background(), db)
	if err != nil {
		t.Fatalf("Failed to build registry: %v", err)
	}
	return NewCollectionService(registry, migrate.NewSynthesizer(db), record.NewStore(db)), db
}

var (
	adminUser  = &domain.User{ID: "admin1", Email: "admin@x.com", Admin: true, Verified: true}
	normalUser = &domain.User{ID: "user1", Email: "user@x.com", Verified: true}
)

func postsInput() schema.DefineInput {
	return schema.DefineInput{
		Name: "posts",
		Fields: []schema.Field{
			{Name: "title", Type: schema.TypeText, Validation: schema.Validation{Required: true, MaxLength: intPtr(200)}},
			{Name: "published", Type: schema.TypeBool},
		},
		Rules: schema.RuleSet{
			List:   strPtr(""),
			View:   strPtr(""),
			Create: strPtr(`@request.auth.id != ''`),
			Update: strPtr(`@request.auth.id != ''`),
			// delete rule stays nil: admin only
		},
	}
}

func mustCreatePosts(t *testing.T, svc *CollectionService) *schema.Collection {
	t.Helper()
	col, err := svc.CreateCollection(context.Background(), adminUser, postsInput())
	if err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}
	return col
}

func emptyListOpts(t *testing.T) *core.ListQueryOptions {
	t.Helper()
	opts, err := core.ParseListQueryOptions(url.Values{})
	if err != nil {
		t.Fatalf("ParseListQueryOptions failed: %v", err)
	}
	return opts
}

func TestCollectionAdminGate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateCollection(ctx, normalUser, postsInput()); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("non-admin CreateCollection = %v; want ErrPermissionDenied", err)
	}
	if _, err := svc.CreateCollection(ctx, nil, postsInput()); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("anonymous CreateCollection = %v; want ErrPermissionDenied", err)
	}

	mustCreatePosts(t, svc)

	if _, err := svc.UpdateCollection(ctx, normalUser, "posts", schema.UpdateInput{}); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("non-admin UpdateCollection = %v; want ErrPermissionDenied", err)
	}
	if err := svc.DeleteCollection(ctx, normalUser, "posts"); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("non-admin DeleteCollection = %v; want ErrPermissionDenied", err)
	}
	if _, err := svc.ListCollections(ctx, normalUser); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("non-admin ListCollections = %v; want ErrPermissionDenied", err)
	}
}

func TestRecordRuleGate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustCreatePosts(t, svc)

	// Create rule requires an authenticated actor.
	if _, err := svc.CreateRecord(ctx, nil, "posts", map[string]any{"title": "x"}); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("anonymous CreateRecord = %v; want ErrPermissionDenied", err)
	}
	rec, err := svc.CreateRecord(ctx, normalUser, "posts", map[string]any{"title": "x"})
	if err != nil {
		t.Fatalf("authenticated CreateRecord failed: %v", err)
	}

	// List and view rules are empty strings: public.
	if _, err := svc.ListRecords(ctx, nil, "posts", emptyListOpts(t)); err != nil {
		t.Errorf("anonymous ListRecords = %v; want nil", err)
	}
	if _, err := svc.GetRecord(ctx, nil, "posts", rec.ID); err != nil {
		t.Errorf("anonymous GetRecord = %v; want nil", err)
	}

	// Delete rule is nil: admin only.
	if err := svc.DeleteRecord(ctx, normalUser, "posts", rec.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("user DeleteRecord = %v; want ErrPermissionDenied", err)
	}
	if err := svc.DeleteRecord(ctx, adminUser, "posts", rec.ID); err != nil {
		t.Errorf("admin DeleteRecord = %v; want nil", err)
	}

	if _, err := svc.CreateRecord(ctx, normalUser, "nope", map[string]any{}); !errors.Is(err, storage.ErrCollectionNotFound) {
		t.Errorf("CreateRecord on unknown collection = %v; want ErrCollectionNotFound", err)
	}
}

func TestRuleSeesRequestData(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	input := postsInput()
	input.Name = "drafts"
	input.Rules.Create = strPtr(`@request.data.published = false`)
	if _, err := svc.CreateCollection(ctx, adminUser, input); err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}

	if _, err := svc.CreateRecord(ctx, normalUser, "drafts", map[string]any{"title": "x", "published": true}); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("rule on payload did not deny: %v", err)
	}
	if _, err := svc.CreateRecord(ctx, normalUser, "drafts", map[string]any{"title": "x", "published": false}); err != nil {
		t.Errorf("rule on payload denied a valid write: %v", err)
	}
}

func TestUpdateCollectionMigratesStorage(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustCreatePosts(t, svc)

	if _, err := svc.CreateRecord(ctx, normalUser, "posts", map[string]any{"title": "x", "published": true}); err != nil {
		t.Fatalf("seed CreateRecord failed: %v", err)
	}

	updated, err := svc.UpdateCollection(ctx, adminUser, "posts", schema.UpdateInput{
		Fields: []schema.Field{
			{Name: "title", Type: schema.TypeText, Validation: schema.Validation{Required: true, MaxLength: intPtr(200)}},
			{Name: "views", Type: schema.TypeNumber},
		},
	})
	if err != nil {
		t.Fatalf("UpdateCollection failed: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("updated version = %d; want 2", updated.Version)
	}

	// The new column is writable, the dropped one rejected.
	if _, err := svc.CreateRecord(ctx, normalUser, "posts", map[string]any{"title": "y", "views": float64(3)}); err != nil {
		t.Errorf("write to migrated schema failed: %v", err)
	}
	if _, err := svc.CreateRecord(ctx, normalUser, "posts", map[string]any{"title": "z", "published": true}); err == nil {
		t.Errorf("write to dropped field succeeded")
	}
}

func TestRenameCollectionMovesTable(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustCreatePosts(t, svc)

	if _, err := svc.UpdateCollection(ctx, adminUser, "posts", schema.UpdateInput{NewName: strPtr("articles")}); err != nil {
		t.Fatalf("rename failed: %v", err)
	}

	if _, err := svc.CreateRecord(ctx, normalUser, "articles", map[string]any{"title": "x"}); err != nil {
		t.Errorf("write to renamed collection failed: %v", err)
	}
	if _, err := svc.CreateRecord(ctx, normalUser, "posts", map[string]any{"title": "x"}); !errors.Is(err, storage.ErrCollectionNotFound) {
		t.Errorf("old collection name still accepts writes: %v", err)
	}
}

// A migration that cannot apply must leave the registry on the previous
// version with its version log intact.
func TestUpdateCollectionRollsBackOnMigrationFailure(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	col := mustCreatePosts(t, svc)

	// Sabotage the storage table so the next ALTER fails.
	if _, err := db.Exec(`DROP TABLE posts`); err != nil {
		t.Fatalf("sabotage failed: %v", err)
	}

	_, err := svc.UpdateCollection(ctx, adminUser, "posts", schema.UpdateInput{
		Fields: []schema.Field{
			{Name: "title", Type: schema.TypeText, Validation: schema.Validation{Required: true}},
			{Name: "views", Type: schema.TypeNumber},
		},
	})
	var migrateErr *migrate.Error
	if !errors.As(err, &migrateErr) {
		t.Fatalf("UpdateCollection = %v (%T); want *migrate.Error", err, err)
	}

	got, err := svc.GetCollection(ctx, adminUser, "posts")
	if err != nil {
		t.Fatalf("GetCollection after failed migration: %v", err)
	}
	if got.Version != col.Version {
		t.Errorf("version after rollback = %d; want %d", got.Version, col.Version)
	}
	if _, ok := schema.FieldByName(got.Fields, "views"); ok {
		t.Errorf("failed migration leaked its field into the registry")
	}
}
