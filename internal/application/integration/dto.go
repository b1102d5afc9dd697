package integration

import (
	"time"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Response DTOs
// ---------------------------------------------------------------------------

// BindingStatusResponse represents a binding in API responses
type BindingStatusResponse struct {
	LocalID      uuid.UUID              `json:"local_id"`
	BindingID    *uuid.UUID             `json:"binding_id,omitempty"`
	System       integration.SystemCode `json:"system"`
	EntityType   integration.EntityType `json:"entity_type,omitempty"`
	RemoteID     string                 `json:"remote_id,omitempty"`
	VersionToken string                 `json:"version_token,omitempty"`
	Status       integration.SyncStatus `json:"status"`
	LastSyncAt   *time.Time             `json:"last_sync_at,omitempty"`
}

func (r *BindingStatusResponse) fill(b *integration.Binding) {
	id := b.ID
	r.BindingID = &id
	r.System = b.System
	r.EntityType = b.EntityType
	r.RemoteID = b.RemoteID
	r.VersionToken = b.VersionToken.String()
	r.Status = b.Status
	r.LastSyncAt = b.LastSyncAt
}

// JobResponse represents a sync job in API responses
type JobResponse struct {
	ID            uuid.UUID              `json:"id"`
	Operation     string                 `json:"operation"`
	System        integration.SystemCode `json:"system"`
	EntityType    integration.EntityType `json:"entity_type"`
	Principal     uuid.UUID              `json:"principal"`
	LocalID       *uuid.UUID             `json:"local_id,omitempty"`
	RemoteID      string                 `json:"remote_id,omitempty"`
	Fields        []string               `json:"fields,omitempty"`
	Priority      int                    `json:"priority"`
	Status        string                 `json:"status"`
	RetryCount    int                    `json:"retry_count"`
	MaxRetries    int                    `json:"max_retries"`
	NotBefore     time.Time              `json:"not_before"`
	LastError     string                 `json:"last_error,omitempty"`
	FailedPayload map[string]string      `json:"failed_payload,omitempty"`
	Result        string                 `json:"result,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// ToJobResponse converts a domain job to its API form
func ToJobResponse(j *integration.SyncJob) JobResponse {
	return JobResponse{
		ID:            j.ID,
		Operation:     string(j.Operation),
		System:        j.System,
		EntityType:    j.EntityType,
		Principal:     j.Principal,
		LocalID:       j.LocalID,
		RemoteID:      j.RemoteID,
		Fields:        j.Fields,
		Priority:      j.Priority,
		Status:        string(j.Status),
		RetryCount:    j.RetryCount,
		MaxRetries:    j.MaxRetries,
		NotBefore:     j.NotBefore,
		LastError:     j.LastError,
		FailedPayload: j.FailedPayload,
		Result:        string(j.Result),
		CorrelationID: j.CorrelationID,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
	}
}

// RecordResponse represents a local record in API responses
type RecordResponse struct {
	ID          uuid.UUID              `json:"id"`
	EntityType  integration.EntityType `json:"entity_type"`
	OwnerID     uuid.UUID              `json:"owner_id"`
	Active      bool                   `json:"active"`
	SyncEnabled bool                   `json:"sync_enabled"`
	Fields      map[string]string      `json:"fields"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// ToRecordResponse converts a local record to its API form
func ToRecordResponse(r *integration.LocalRecord) RecordResponse {
	return RecordResponse{
		ID:          r.ID,
		EntityType:  r.EntityType,
		OwnerID:     r.OwnerID,
		Active:      r.Active,
		SyncEnabled: r.SyncEnabled,
		Fields:      r.Fields,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// SubscriptionResponse represents a principal's sync flags in API responses
type SubscriptionResponse struct {
	ID            uuid.UUID              `json:"id"`
	System        integration.SystemCode `json:"system"`
	Principal     uuid.UUID              `json:"principal"`
	EntityType    integration.EntityType `json:"entity_type"`
	ImportEnabled bool                   `json:"import_enabled"`
	ExportEnabled bool                   `json:"export_enabled"`
	Mailbox       string                 `json:"mailbox,omitempty"`
}

// ToSubscriptionResponse converts a subscription to its API form
func ToSubscriptionResponse(s *integration.SyncSubscription) SubscriptionResponse {
	return SubscriptionResponse{
		ID:            s.ID,
		System:        s.System,
		Principal:     s.Principal,
		EntityType:    s.EntityType,
		ImportEnabled: s.ImportEnabled,
		ExportEnabled: s.ExportEnabled,
		Mailbox:       s.Mailbox,
	}
}

// ---------------------------------------------------------------------------
// Request DTOs
// ---------------------------------------------------------------------------

// TriggerSyncRequest requests a manual sweep
type TriggerSyncRequest struct {
	Direction string `json:"direction" binding:"required,oneof=import export"`
	Full      bool   `json:"full"`
}

// TriggerImportRequest requests the import of one remote entity
type TriggerImportRequest struct {
	Principal  uuid.UUID `json:"principal" binding:"required"`
	EntityType string    `json:"entity_type" binding:"required,entity_type"`
	RemoteID   string    `json:"remote_id" binding:"required"`
}

// SubscriptionRequest sets a principal's sync flags for one entity type
type SubscriptionRequest struct {
	Principal     uuid.UUID `json:"principal" binding:"required"`
	EntityType    string    `json:"entity_type" binding:"required,entity_type"`
	ImportEnabled bool      `json:"import_enabled"`
	ExportEnabled bool      `json:"export_enabled"`
	Mailbox       string    `json:"mailbox"`
}

// CreateRecordRequest creates a local record
type CreateRecordRequest struct {
	EntityType  string            `json:"entity_type" binding:"required,entity_type"`
	OwnerID     uuid.UUID         `json:"owner_id" binding:"required"`
	Fields      map[string]string `json:"fields"`
	SyncEnabled bool              `json:"sync_enabled"`
}

// UpdateRecordRequest updates a local record
type UpdateRecordRequest struct {
	Fields      map[string]string `json:"fields"`
	SyncEnabled *bool             `json:"sync_enabled"`
}
