// api/handlers/collection_handler.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vertabase/verta-backend/api/middleware"
	"github.com/vertabase/verta-backend/api/models"
	"github.com/vertabase/verta-backend/internal/core"
	"github.com/vertabase/verta-backend/internal/schema"
	"github.com/vertabase/verta-backend/internal/service"
)

// CollectionHandler holds dependencies for collection administration.
type CollectionHandler struct {
	Service *service.CollectionService
}

func NewCollectionHandler(svc *service.CollectionService) *CollectionHandler {
	return &CollectionHandler{Service: svc}
}

// CreateCollection registers a new collection and provisions its table.
func (h *CollectionHandler) CreateCollection(c *gin.Context) {
	var req models.CreateCollectionRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		customLog.Warnf("CreateCollection binding error: %v", err)
		_ = c.Error(err)
		return
	}

	colType := schema.CollectionType(req.Type)
	if req.Type == "" {
		colType = schema.Base
	}

	col, err := h.Service.CreateCollection(c.Request.Context(), middleware.CurrentUser(c), schema.DefineInput{
		Name:   req.Name,
		Type:   colType,
		Fields: req.Schema,
		Rules: schema.RuleSet{
			List:   req.ListRule,
			View:   req.ViewRule,
			Create: req.CreateRule,
			Update: req.UpdateRule,
			Delete: req.DeleteRule,
		},
	})
	if err != nil {
		customLog.Warnf("Failed to create collection '%s': %v", req.Name, err)
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, models.NewCollectionResponse(col))
}

// ListCollections returns every registered collection.
func (h *CollectionHandler) ListCollections(c *gin.Context) {
	opts, err := core.ParseListQueryOptions(c.Request.URL.Query())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cols, err := h.Service.ListCollections(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	total := len(cols)
	start := (opts.Page - 1) * opts.PerPage
	if start > total {
		start = total
	}
	end := start + opts.PerPage
	if end > total {
		end = total
	}

	resp := make([]models.CollectionResponse, 0, end-start)
	for _, col := range cols[start:end] {
		resp = append(resp, models.NewCollectionResponse(col))
	}
	c.JSON(http.StatusOK, gin.H{
		"page":        opts.Page,
		"per_page":    opts.PerPage,
		"total_items": total,
		"items":       resp,
	})
}

// GetCollection returns one collection definition by name.
func (h *CollectionHandler) GetCollection(c *gin.Context) {
	col, err := h.Service.GetCollection(c.Request.Context(), middleware.CurrentUser(c), c.Param("collection"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, models.NewCollectionResponse(col))
}

// UpdateCollection applies a schema or rule change to a collection.
func (h *CollectionHandler) UpdateCollection(c *gin.Context) {
	var req models.UpdateCollectionRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		customLog.Warnf("UpdateCollection binding error: %v", err)
		_ = c.Error(err)
		return
	}

	name := c.Param("collection")
	col, err := h.Service.UpdateCollection(c.Request.Context(), middleware.CurrentUser(c), name, schema.UpdateInput{
		NewName: req.Name,
		Fields:  req.Schema,
		Rules: schema.RuleSet{
			List:   req.ListRule,
			View:   req.ViewRule,
			Create: req.CreateRule,
			Update: req.UpdateRule,
			Delete: req.DeleteRule,
		},
	})
	if err != nil {
		customLog.Warnf("Failed to update collection '%s': %v", name, err)
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, models.NewCollectionResponse(col))
}

// DeleteCollection drops a collection and all of its records.
func (h *CollectionHandler) DeleteCollection(c *gin.Context) {
	name := c.Param("collection")
	if err := h.Service.DeleteCollection(c.Request.Context(), middleware.CurrentUser(c), name); err != nil {
		customLog.Warnf("Failed to delete collection '%s': %v", name, err)
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Collection deleted successfully"})
}
