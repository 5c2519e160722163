// internal/service/collection_service.go
//
// Package service wires the schema registry, migration synthesizer, record
// store and rule engine into the operations the API exposes. Handlers talk
// to this layer only; they never touch storage directly.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/vertabase/verta-backend/internal/core"
	"github.com/vertabase/verta-backend/internal/domain"
	"github.com/vertabase/verta-backend/internal/logger"
	"github.com/vertabase/verta-backend/internal/migrate"
	"github.com/vertabase/verta-backend/internal/record"
	"github.com/vertabase/verta-backend/internal/rules"
	"github.com/vertabase/verta-backend/internal/schema"
)

var (
	ErrPermissionDenied = errors.New("you are not allowed to perform this request")
	ErrAdminRequired    = errors.New("admin privileges required")
	customLog           = logger.NewLogger()
)

// CollectionService orchestrates schema mutations and rule-gated record
// access. Schema mutations on the same collection are serialized with a
// per-collection lock; record operations run concurrently.
type CollectionService struct {
	registry *schema.Registry
	synth    *migrate.Synthesizer
	records  *record.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewCollectionService(registry *schema.Registry, synth *migrate.Synthesizer, records *record.Store) *CollectionService {
	return &CollectionService{
		registry: registry,
		synth:    synth,
		records:  records,
		locks:    map[string]*sync.Mutex{},
	}
}

// --- Collection Administration (admin only) ---

// CreateCollection registers a new collection and creates its storage
// table. If the table cannot be created the metadata is rolled back so the
// registry never points at a missing table.
func (s *CollectionService) CreateCollection(ctx context.Context, actor *domain.User, in schema.DefineInput) (*schema.Collection, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	col, err := s.registry.Define(ctx, in)
	if err != nil {
		return nil, err
	}

	if err := s.synth.CreateTable(ctx, col); err != nil {
		customLog.Warnf("Service: Table creation for '%s' failed, rolling back metadata: %v", col.Name, err)
		if _, dropErr := s.registry.Drop(ctx, col.Name); dropErr != nil {
			customLog.Errorf("Service: Metadata rollback for '%s' failed: %v", col.Name, dropErr)
		}
		return nil, err
	}

	customLog.Printf("Service: Collection '%s' created by user %s", col.Name, actor.ID)
	return col, nil
}

// UpdateCollection applies a schema change: metadata first, then the
// synthesized table migration. If the migration fails, the previous
// metadata version is restored before the error surfaces, so registry and
// table stay consistent.
func (s *CollectionService) UpdateCollection(ctx context.Context, actor *domain.User, name string, in schema.UpdateInput) (*schema.Collection, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	unlock := s.lockCollection(name)
	defer unlock()

	old, updated, err := s.registry.Update(ctx, name, in)
	if err != nil {
		return nil, err
	}

	renamed := old.Name != updated.Name
	if renamed {
		if err := s.synth.RenameTable(ctx, old.Name, updated.Name); err != nil {
			s.restoreMetadata(ctx, old, updated.Version)
			return nil, err
		}
	}

	if err := s.synth.Synchronize(ctx, old, updated); err != nil {
		if renamed {
			if renameErr := s.synth.RenameTable(ctx, updated.Name, old.Name); renameErr != nil {
				customLog.Errorf("Service: Rename rollback for '%s' failed: %v", updated.Name, renameErr)
			}
		}
		s.restoreMetadata(ctx, old, updated.Version)
		return nil, err
	}

	customLog.Printf("Service: Collection '%s' updated to version %d by user %s", updated.Name, updated.Version, actor.ID)
	return updated, nil
}

// DeleteCollection drops the collection's metadata and its storage table.
func (s *CollectionService) DeleteCollection(ctx context.Context, actor *domain.User, name string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}

	unlock := s.lockCollection(name)
	defer unlock()

	col, err := s.registry.Drop(ctx, name)
	if err != nil {
		return err
	}
	if err := s.synth.DropTable(ctx, col.Name); err != nil {
		return err
	}

	customLog.Printf("Service: Collection '%s' deleted by user %s", col.Name, actor.ID)
	return nil
}

// GetCollection returns a collection's schema snapshot. Admin only: rules
// may encode access logic that should not leak to regular users.
func (s *CollectionService) GetCollection(ctx context.Context, actor *domain.User, name string) (*schema.Collection, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.registry.Get(name)
}

// ListCollections returns all registered collections.
func (s *CollectionService) ListCollections(ctx context.Context, actor *domain.User) ([]*schema.Collection, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.registry.List(), nil
}

// --- Record Operations (rule gated) ---

// ListRecords returns a page of records if the collection's list rule
// allows the actor through.
func (s *CollectionService) ListRecords(ctx context.Context, actor *domain.User, name string, opts *core.ListQueryOptions) (*record.ListResult, error) {
	col, err := s.registry.Get(name)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(col, schema.OpList, actor, nil); err != nil {
		return nil, err
	}
	return s.records.List(ctx, col, opts)
}

// GetRecord fetches one record, gated by the view rule.
func (s *CollectionService) GetRecord(ctx context.Context, actor *domain.User, name, id string) (*domain.Record, error) {
	col, err := s.registry.Get(name)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(col, schema.OpView, actor, nil); err != nil {
		return nil, err
	}
	return s.records.Get(ctx, col, id)
}

// CreateRecord inserts a record, gated by the create rule. The incoming
// payload is visible to the rule as @request.data.
func (s *CollectionService) CreateRecord(ctx context.Context, actor *domain.User, name string, data map[string]any) (*domain.Record, error) {
	col, err := s.registry.Get(name)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(col, schema.OpCreate, actor, data); err != nil {
		return nil, err
	}
	return s.records.Create(ctx, col, data)
}

// UpdateRecord patches a record, gated by the update rule.
func (s *CollectionService) UpdateRecord(ctx context.Context, actor *domain.User, name, id string, patch map[string]any) (*domain.Record, error) {
	col, err := s.registry.Get(name)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(col, schema.OpUpdate, actor, patch); err != nil {
		return nil, err
	}
	return s.records.Update(ctx, col, id, patch)
}

// DeleteRecord removes a record, gated by the delete rule.
func (s *CollectionService) DeleteRecord(ctx context.Context, actor *domain.User, name, id string) error {
	col, err := s.registry.Get(name)
	if err != nil {
		return err
	}
	if err := s.authorize(col, schema.OpDelete, actor, nil); err != nil {
		return err
	}
	return s.records.Delete(ctx, col, id)
}

// --- Helpers ---

func (s *CollectionService) authorize(col *schema.Collection, op schema.Op, actor *domain.User, data map[string]any) error {
	ruleCtx := rules.Context{
		Auth:  authMap(actor),
		Data:  data,
		Admin: actor != nil && actor.Admin,
	}
	if !rules.Allow(col.Rule(op), ruleCtx) {
		return ErrPermissionDenied
	}
	return nil
}

// authMap exposes the actor to rule expressions as @request.auth.*.
// Anonymous requests get a nil map so every @request.auth path resolves to
// null.
func authMap(actor *domain.User) map[string]any {
	if actor == nil {
		return nil
	}
	return map[string]any{
		"id":       actor.ID,
		"email":    actor.Email,
		"name":     actor.Name,
		"verified": actor.Verified,
		"admin":    actor.Admin,
	}
}

func requireAdmin(actor *domain.User) error {
	if actor == nil || !actor.Admin {
		return fmt.Errorf("%w: %w", ErrPermissionDenied, ErrAdminRequired)
	}
	return nil
}

func (s *CollectionService) restoreMetadata(ctx context.Context, old *schema.Collection, failedVersion int) {
	if err := s.registry.Restore(ctx, old, failedVersion); err != nil {
		customLog.Errorf("Service: Metadata restore for '%s' failed: %v", old.Name, err)
	}
}

// lockCollection serializes schema mutations by lowercase collection name.
func (s *CollectionService) lockCollection(name string) func() {
	key := strings.ToLower(name)
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}
