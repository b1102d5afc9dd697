package models

import (
	"time"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/google/uuid"
)

// SyncJobModel is the persistence model for the durable job queue
type SyncJobModel struct {
	ID            uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Operation     string            `gorm:"type:varchar(20);not null"`
	System        string            `gorm:"type:varchar(50);not null"`
	EntityType    string            `gorm:"type:varchar(50);not null"`
	Principal     uuid.UUID         `gorm:"type:uuid;not null"`
	LocalID       *uuid.UUID        `gorm:"type:uuid;index:idx_sync_jobs_local"`
	RemoteID      string            `gorm:"type:varchar(512)"`
	Fields        []string          `gorm:"type:jsonb;serializer:json"`
	Priority      int               `gorm:"not null;index:idx_sync_jobs_due,priority:2"`
	Status        string            `gorm:"type:varchar(20);not null;index:idx_sync_jobs_due,priority:1"`
	RetryCount    int               `gorm:"not null"`
	MaxRetries    int               `gorm:"not null"`
	NotBefore     time.Time         `gorm:"not null;index:idx_sync_jobs_due,priority:3"`
	LastError     string            `gorm:"type:text"`
	FailedPayload map[string]string `gorm:"type:jsonb;serializer:json"`
	Result        string            `gorm:"type:varchar(20)"`
	CorrelationID string            `gorm:"type:varchar(100)"`
	StartedAt     *time.Time
	FinishedAt    *time.Time
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncJobModel) TableName() string {
	return "sync_jobs"
}

// ToDomain converts the persistence model to a domain SyncJob
func (m *SyncJobModel) ToDomain() *integration.SyncJob {
	return &integration.SyncJob{
		ID:            m.ID,
		Operation:     integration.JobOperation(m.Operation),
		System:        integration.SystemCode(m.System),
		EntityType:    integration.EntityType(m.EntityType),
		Principal:     m.Principal,
		LocalID:       m.LocalID,
		RemoteID:      m.RemoteID,
		Fields:        m.Fields,
		Priority:      m.Priority,
		Status:        integration.JobStatus(m.Status),
		RetryCount:    m.RetryCount,
		MaxRetries:    m.MaxRetries,
		NotBefore:     m.NotBefore,
		LastError:     m.LastError,
		FailedPayload: m.FailedPayload,
		Result:        integration.SyncResult(m.Result),
		CorrelationID: m.CorrelationID,
		StartedAt:     m.StartedAt,
		FinishedAt:    m.FinishedAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain SyncJob
func (m *SyncJobModel) FromDomain(j *integration.SyncJob) {
	m.ID = j.ID
	m.Operation = string(j.Operation)
	m.System = string(j.System)
	m.EntityType = string(j.EntityType)
	m.Principal = j.Principal
	m.LocalID = j.LocalID
	m.RemoteID = j.RemoteID
	m.Fields = j.Fields
	m.Priority = j.Priority
	m.Status = string(j.Status)
	m.RetryCount = j.RetryCount
	m.MaxRetries = j.MaxRetries
	m.NotBefore = j.NotBefore
	m.LastError = j.LastError
	m.FailedPayload = j.FailedPayload
	m.Result = string(j.Result)
	m.CorrelationID = j.CorrelationID
	m.StartedAt = j.StartedAt
	m.FinishedAt = j.FinishedAt
	m.CreatedAt = j.CreatedAt
	m.UpdatedAt = j.UpdatedAt
}

// SyncJobModelFromDomain creates a new persistence model from a domain SyncJob
func SyncJobModelFromDomain(j *integration.SyncJob) *SyncJobModel {
	m := &SyncJobModel{}
	m.FromDomain(j)
	return m
}

// SyncCursorModel is the persistence model for a sweep high-water mark
type SyncCursorModel struct {
	System     string    `gorm:"type:varchar(50);primaryKey"`
	EntityType string    `gorm:"type:varchar(50);primaryKey"`
	Principal  uuid.UUID `gorm:"type:uuid;primaryKey"`
	Direction  string    `gorm:"type:varchar(10);primaryKey"`
	LastRunAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncCursorModel) TableName() string {
	return "sync_cursors"
}

// ToDomain converts the persistence model to a domain SyncCursor
func (m *SyncCursorModel) ToDomain() *integration.SyncCursor {
	return &integration.SyncCursor{
		System:     integration.SystemCode(m.System),
		EntityType: integration.EntityType(m.EntityType),
		Principal:  m.Principal,
		Direction:  integration.SyncDirection(m.Direction),
		LastRunAt:  m.LastRunAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// SyncCursorModelFromDomain creates a new persistence model from a domain SyncCursor
func SyncCursorModelFromDomain(c *integration.SyncCursor) *SyncCursorModel {
	return &SyncCursorModel{
		System:     string(c.System),
		EntityType: string(c.EntityType),
		Principal:  c.Principal,
		Direction:  string(c.Direction),
		LastRunAt:  c.LastRunAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

// SyncSubscriptionModel is the persistence model for per-principal sync flags
type SyncSubscriptionModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	System        string    `gorm:"type:varchar(50);not null;uniqueIndex:uq_sync_subscriptions,priority:1"`
	Principal     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_sync_subscriptions,priority:2"`
	EntityType    string    `gorm:"type:varchar(50);not null;uniqueIndex:uq_sync_subscriptions,priority:3"`
	ImportEnabled bool      `gorm:"not null"`
	ExportEnabled bool      `gorm:"not null"`
	Mailbox       string    `gorm:"type:varchar(255)"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncSubscriptionModel) TableName() string {
	return "sync_subscriptions"
}

// ToDomain converts the persistence model to a domain SyncSubscription
func (m *SyncSubscriptionModel) ToDomain() integration.SyncSubscription {
	return integration.SyncSubscription{
		ID:            m.ID,
		System:        integration.SystemCode(m.System),
		Principal:     m.Principal,
		EntityType:    integration.EntityType(m.EntityType),
		ImportEnabled: m.ImportEnabled,
		ExportEnabled: m.ExportEnabled,
		Mailbox:       m.Mailbox,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// SyncSubscriptionModelFromDomain creates a new persistence model from a domain SyncSubscription
func SyncSubscriptionModelFromDomain(s *integration.SyncSubscription) *SyncSubscriptionModel {
	return &SyncSubscriptionModel{
		ID:            s.ID,
		System:        string(s.System),
		Principal:     s.Principal,
		EntityType:    string(s.EntityType),
		ImportEnabled: s.ImportEnabled,
		ExportEnabled: s.ExportEnabled,
		Mailbox:       s.Mailbox,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}
