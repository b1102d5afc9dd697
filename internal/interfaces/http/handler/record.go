package handler

import (
	"context"
	"sort"

	appintegration "github.com/erp/connector/internal/application/integration"
	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/shared"
	"github.com/erp/connector/internal/infrastructure/mapping"
	"github.com/erp/connector/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RecordStore is the CRUD surface of the local record store
type RecordStore interface {
	Create(ctx context.Context, in appintegration.CreateRecordInput) (*integration.LocalRecord, error)
	Update(ctx context.Context, id uuid.UUID, in appintegration.UpdateRecordInput) (*integration.LocalRecord, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*integration.LocalRecord, error)
	List(ctx context.Context, entityType integration.EntityType, filter shared.Filter) ([]integration.LocalRecord, int64, error)
}

// SchemaSource returns the local field schema of an entity type
type SchemaSource interface {
	Schema(entityType integration.EntityType) (mapping.Schema, error)
}

// RecordHandler exposes the local record store. Writes go through the store so
// that each one fires the change trigger.
type RecordHandler struct {
	BaseHandler
	store   RecordStore
	schemas SchemaSource
}

// NewRecordHandler creates a new RecordHandler
func NewRecordHandler(store RecordStore, schemas SchemaSource) *RecordHandler {
	return &RecordHandler{store: store, schemas: schemas}
}

// RecordListRequest filters the record list
type RecordListRequest struct {
	dto.ListRequest
	EntityType string `form:"entity_type" binding:"required,entity_type"`
}

// CreateRecord creates a local record
// POST /records
func (h *RecordHandler) CreateRecord(c *gin.Context) {
	var req appintegration.CreateRecordRequest
	if !h.BindJSON(c, &req) {
		return
	}
	entityType := integration.EntityType(req.EntityType)
	if !h.checkFields(c, entityType, req.Fields) {
		return
	}

	record, err := h.store.Create(c.Request.Context(), appintegration.CreateRecordInput{
		EntityType:  entityType,
		OwnerID:     req.OwnerID,
		Fields:      req.Fields,
		SyncEnabled: req.SyncEnabled,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, appintegration.ToRecordResponse(record))
}

// GetRecord returns one record
// GET /records/:id
func (h *RecordHandler) GetRecord(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	record, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToRecordResponse(record))
}

// ListRecords lists records of one entity type
// GET /records
func (h *RecordHandler) ListRecords(c *gin.Context) {
	req := RecordListRequest{ListRequest: dto.DefaultListRequest()}
	if !h.BindQuery(c, &req) {
		return
	}

	filter := req.Filter()
	records, total, err := h.store.List(c.Request.Context(), integration.EntityType(req.EntityType), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]appintegration.RecordResponse, len(records))
	for i := range records {
		out[i] = appintegration.ToRecordResponse(&records[i])
	}
	h.SuccessWithMeta(c, out, total, filter.Page, filter.PageSize)
}

// UpdateRecord merges fields into a record
// PATCH /records/:id
func (h *RecordHandler) UpdateRecord(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	var req appintegration.UpdateRecordRequest
	if !h.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	if len(req.Fields) > 0 {
		current, err := h.store.Get(ctx, id)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		if !h.checkFields(c, current.EntityType, req.Fields) {
			return
		}
	}

	record, err := h.store.Update(ctx, id, appintegration.UpdateRecordInput{
		Fields:      req.Fields,
		SyncEnabled: req.SyncEnabled,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToRecordResponse(record))
}

// DeleteRecord deletes a record; bound remote entities are deleted by a queued job
// DELETE /records/:id
func (h *RecordHandler) DeleteRecord(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// checkFields rejects field names outside the entity schema.
// Returns false when a response has already been written.
func (h *RecordHandler) checkFields(c *gin.Context, entityType integration.EntityType, fields map[string]string) bool {
	schema, err := h.schemas.Schema(entityType)
	if err != nil {
		h.HandleError(c, err)
		return false
	}
	var unknown []string
	for name := range fields {
		if !schema.Has(name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) == 0 {
		return true
	}
	sort.Strings(unknown)
	details := make([]dto.ValidationDetail, len(unknown))
	for i, name := range unknown {
		details[i] = dto.ValidationDetail{
			Field:   "fields." + name,
			Message: "Unknown field for " + entityType.String(),
		}
	}
	h.ValidationError(c, details)
	return false
}

// RegisterRoutes registers the record routes on rg
func (h *RecordHandler) RegisterRoutes(rg *gin.RouterGroup) {
	records := rg.Group("/records")
	records.POST("", h.CreateRecord)
	records.GET("", h.ListRecords)
	records.GET("/:id", h.GetRecord)
	records.PATCH("/:id", h.UpdateRecord)
	records.DELETE("/:id", h.DeleteRecord)
}
