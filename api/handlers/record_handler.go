// api/handlers/record_handler.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vertabase/verta-backend/api/middleware"
	"github.com/vertabase/verta-backend/api/models"
	"github.com/vertabase/verta-backend/internal/core"
	"github.com/vertabase/verta-backend/internal/service"
)

// RecordHandler holds dependencies for record CRUD handlers. Access is
// decided per request by the collection's rules, so these routes accept
// anonymous callers.
type RecordHandler struct {
	Service *service.CollectionService
}

func NewRecordHandler(svc *service.CollectionService) *RecordHandler {
	return &RecordHandler{Service: svc}
}

// CreateRecord inserts a record into the named collection.
func (h *RecordHandler) CreateRecord(c *gin.Context) {
	var data map[string]any
	if err := c.ShouldBindJSON(&data); err != nil {
		customLog.Warnf("CreateRecord binding error: %v", err)
		_ = c.Error(err)
		return
	}

	collection := c.Param("collection")
	rec, err := h.Service.CreateRecord(c.Request.Context(), middleware.CurrentUser(c), collection, data)
	if err != nil {
		customLog.Warnf("Failed to create record in '%s': %v", collection, err)
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, models.NewRecordResponse(rec))
}

// ListRecords returns a filtered, sorted page of records.
func (h *RecordHandler) ListRecords(c *gin.Context) {
	opts, err := core.ParseListQueryOptions(c.Request.URL.Query())
	if err != nil {
		_ = c.Error(err)
		return
	}

	collection := c.Param("collection")
	result, err := h.Service.ListRecords(c.Request.Context(), middleware.CurrentUser(c), collection, opts)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, models.NewListRecordsResponse(result))
}

// GetRecord returns a single record by id.
func (h *RecordHandler) GetRecord(c *gin.Context) {
	collection := c.Param("collection")
	rec, err := h.Service.GetRecord(c.Request.Context(), middleware.CurrentUser(c), collection, c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, models.NewRecordResponse(rec))
}

// UpdateRecord applies a partial update to a record.
func (h *RecordHandler) UpdateRecord(c *gin.Context) {
	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil {
		customLog.Warnf("UpdateRecord binding error: %v", err)
		_ = c.Error(err)
		return
	}

	collection := c.Param("collection")
	rec, err := h.Service.UpdateRecord(c.Request.Context(), middleware.CurrentUser(c), collection, c.Param("id"), patch)
	if err != nil {
		customLog.Warnf("Failed to update record in '%s': %v", collection, err)
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, models.NewRecordResponse(rec))
}

// DeleteRecord removes a record by id.
func (h *RecordHandler) DeleteRecord(c *gin.Context) {
	collection := c.Param("collection")
	if err := h.Service.DeleteRecord(c.Request.Context(), middleware.CurrentUser(c), collection, c.Param("id")); err != nil {
		customLog.Warnf("Failed to delete record in '%s': %v", collection, err)
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Record deleted successfully"})
}
