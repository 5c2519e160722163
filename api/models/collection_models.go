// api/models/collection_models.go
package models

import (
	"time"

	"github.com/vertabase/verta-backend/internal/domain"
	"github.com/vertabase/verta-backend/internal/record"
	"github.com/vertabase/verta-backend/internal/schema"
)

// --- Collection Request/Response Structs ---

// CreateCollectionRequest defines the structure for registering a new
// collection. Field definitions are validated by the schema registry, not
// by binding tags.
type CreateCollectionRequest struct {
	Name       string         `json:"name" binding:"required"`
	Type       string         `json:"type" binding:"omitempty,oneof=base auth view"`
	Schema     []schema.Field `json:"schema" binding:"required,min=1"`
	ListRule   *string        `json:"list_rule"`
	ViewRule   *string        `json:"view_rule"`
	CreateRule *string        `json:"create_rule"`
	UpdateRule *string        `json:"update_rule"`
	DeleteRule *string        `json:"delete_rule"`
}

// UpdateCollectionRequest carries a partial collection update. Nil rule
// pointers leave the stored rule untouched; a pointer to "" clears it to
// public.
type UpdateCollectionRequest struct {
	Name       *string        `json:"name"`
	Schema     []schema.Field `json:"schema"`
	ListRule   *string        `json:"list_rule"`
	ViewRule   *string        `json:"view_rule"`
	CreateRule *string        `json:"create_rule"`
	UpdateRule *string        `json:"update_rule"`
	DeleteRule *string        `json:"delete_rule"`
}

// CollectionResponse is the public shape of a collection definition
type CollectionResponse struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Schema     []schema.Field `json:"schema"`
	ListRule   *string        `json:"list_rule"`
	ViewRule   *string        `json:"view_rule"`
	CreateRule *string        `json:"create_rule"`
	UpdateRule *string        `json:"update_rule"`
	DeleteRule *string        `json:"delete_rule"`
	System     bool           `json:"system"`
	Version    int            `json:"version"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func NewCollectionResponse(col *schema.Collection) CollectionResponse {
	return CollectionResponse{
		ID:         col.ID,
		Name:       col.Name,
		Type:       string(col.Type),
		Schema:     col.Fields,
		ListRule:   col.ListRule,
		ViewRule:   col.ViewRule,
		CreateRule: col.CreateRule,
		UpdateRule: col.UpdateRule,
		DeleteRule: col.DeleteRule,
		System:     col.System,
		Version:    col.Version,
		CreatedAt:  col.CreatedAt,
		UpdatedAt:  col.UpdatedAt,
	}
}

// --- Record Response Structs ---

// NewRecordResponse flattens a record into one JSON object: system fields
// first, then the schema fields.
func NewRecordResponse(rec *domain.Record) map[string]any {
	body := make(map[string]any, len(rec.Data)+3)
	for k, v := range rec.Data {
		body[k] = v
	}
	body["id"] = rec.ID
	body["created_at"] = rec.CreatedAt
	body["updated_at"] = rec.UpdatedAt
	return body
}

// ListRecordsResponse is one page of records plus paging metadata
type ListRecordsResponse struct {
	Page       int              `json:"page"`
	PerPage    int              `json:"per_page"`
	TotalItems int              `json:"total_items"`
	TotalPages int              `json:"total_pages"`
	Items      []map[string]any `json:"items"`
}

func NewListRecordsResponse(result *record.ListResult) ListRecordsResponse {
	items := make([]map[string]any, 0, len(result.Items))
	for _, rec := range result.Items {
		items = append(items, NewRecordResponse(rec))
	}
	return ListRecordsResponse{
		Page:       result.Page,
		PerPage:    result.PerPage,
		TotalItems: result.Total,
		TotalPages: result.TotalPages,
		Items:      items,
	}
}
