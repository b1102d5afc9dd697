package handler

import (
	"context"

	appintegration "github.com/erp/connector/internal/application/integration"
	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/shared"
	"github.com/erp/connector/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SyncOperator is the operator surface of the sync engine
type SyncOperator interface {
	BindingStatus(ctx context.Context, localID uuid.UUID) (*appintegration.BindingStatusResponse, error)
	ListBindings(ctx context.Context, status integration.SyncStatus, filter shared.Filter) ([]appintegration.BindingStatusResponse, int64, error)
	ListJobs(ctx context.Context, status integration.JobStatus, filter shared.Filter) ([]appintegration.JobResponse, int64, error)
	GetJob(ctx context.Context, id uuid.UUID) (*appintegration.JobResponse, error)
	RetryJob(ctx context.Context, id uuid.UUID) (*appintegration.JobResponse, error)
	JobStats(ctx context.Context) (map[integration.JobStatus]int64, error)
	TriggerSync(ctx context.Context, req appintegration.TriggerSyncRequest) (appintegration.CycleStats, error)
	TriggerImport(ctx context.Context, principal uuid.UUID, entityType integration.EntityType, remoteID string) (bool, error)
	SaveSubscription(ctx context.Context, req appintegration.SubscriptionRequest) (*integration.SyncSubscription, error)
}

// SyncHandler serves binding status, the job queue and manual triggers
type SyncHandler struct {
	BaseHandler
	operator SyncOperator
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(operator SyncOperator) *SyncHandler {
	return &SyncHandler{operator: operator}
}

// BindingListRequest filters the binding list
type BindingListRequest struct {
	dto.ListRequest
	Status string `form:"status" binding:"omitempty,oneof=created synced conflict_deferred stale"`
}

// JobListRequest filters the job list
type JobListRequest struct {
	dto.ListRequest
	Status string `form:"status" binding:"omitempty,oneof=PENDING RUNNING DONE FAILED DEAD"`
}

// TriggerImportResponse reports whether an import job was queued
type TriggerImportResponse struct {
	Enqueued bool `json:"enqueued"`
}

// GetBindingStatus returns the binding and sync status of one local record
// GET /bindings/:local_id
func (h *SyncHandler) GetBindingStatus(c *gin.Context) {
	localID, err := pathUUID(c, "local_id")
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	status, err := h.operator.BindingStatus(c.Request.Context(), localID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, status)
}

// ListBindings lists bindings in one sync status, conflict_deferred by default
// GET /bindings
func (h *SyncHandler) ListBindings(c *gin.Context) {
	req := BindingListRequest{ListRequest: dto.DefaultListRequest()}
	if !h.BindQuery(c, &req) {
		return
	}
	status := integration.SyncStatus(req.Status)
	if status == "" {
		status = integration.SyncStatusConflictDeferred
	}

	filter := req.Filter()
	bindings, total, err := h.operator.ListBindings(c.Request.Context(), status, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, bindings, total, filter.Page, filter.PageSize)
}

// ListJobs lists jobs in one status, FAILED by default
// GET /jobs
func (h *SyncHandler) ListJobs(c *gin.Context) {
	req := JobListRequest{ListRequest: dto.DefaultListRequest()}
	if !h.BindQuery(c, &req) {
		return
	}
	status := integration.JobStatus(req.Status)
	if status == "" {
		status = integration.JobStatusFailed
	}

	filter := req.Filter()
	jobs, total, err := h.operator.ListJobs(c.Request.Context(), status, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, jobs, total, filter.Page, filter.PageSize)
}

// GetJob returns one job
// GET /jobs/:id
func (h *SyncHandler) GetJob(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	job, err := h.operator.GetJob(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, job)
}

// RetryJob requeues a failed or dead job
// POST /jobs/:id/retry
func (h *SyncHandler) RetryJob(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	job, err := h.operator.RetryJob(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, job)
}

// JobStats returns the number of jobs per status
// GET /jobs/stats
func (h *SyncHandler) JobStats(c *gin.Context) {
	counts, err := h.operator.JobStats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make(map[string]int64, len(counts))
	for status, n := range counts {
		out[string(status)] = n
	}
	h.Success(c, out)
}

// TriggerSync runs one sweep over every enabled subscription and returns its statistics
// POST /sync
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	var req appintegration.TriggerSyncRequest
	if !h.BindJSON(c, &req) {
		return
	}

	stats, err := h.operator.TriggerSync(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}

// TriggerImport queues the import of one remote entity
// POST /sync/import
func (h *SyncHandler) TriggerImport(c *gin.Context) {
	var req appintegration.TriggerImportRequest
	if !h.BindJSON(c, &req) {
		return
	}

	enqueued, err := h.operator.TriggerImport(c.Request.Context(), req.Principal, integration.EntityType(req.EntityType), req.RemoteID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, TriggerImportResponse{Enqueued: enqueued})
}

// SaveSubscription creates or updates a principal's sync flags for one entity type
// PUT /subscriptions
func (h *SyncHandler) SaveSubscription(c *gin.Context) {
	var req appintegration.SubscriptionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	sub, err := h.operator.SaveSubscription(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToSubscriptionResponse(sub))
}

// RegisterRoutes registers the sync routes on rg
func (h *SyncHandler) RegisterRoutes(rg *gin.RouterGroup) {
	bindings := rg.Group("/bindings")
	bindings.GET("", h.ListBindings)
	bindings.GET("/:local_id", h.GetBindingStatus)

	jobs := rg.Group("/jobs")
	jobs.GET("", h.ListJobs)
	jobs.GET("/stats", h.JobStats)
	jobs.GET("/:id", h.GetJob)
	jobs.POST("/:id/retry", h.RetryJob)

	rg.POST("/sync", h.TriggerSync)
	rg.POST("/sync/import", h.TriggerImport)
	rg.PUT("/subscriptions", h.SaveSubscription)
}
