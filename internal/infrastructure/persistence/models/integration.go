package models

import (
	"time"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Binding
// ---------------------------------------------------------------------------

// BindingModel is the persistence model for a Binding.
// RemoteID is NULL while unbound so the unique index only constrains bound rows.
type BindingModel struct {
	BaseModel
	System          string     `gorm:"type:varchar(50);not null;uniqueIndex:uq_sync_bindings_remote,priority:1"`
	EntityType      string     `gorm:"type:varchar(50);not null;uniqueIndex:uq_sync_bindings_remote,priority:2"`
	LocalID         uuid.UUID  `gorm:"type:uuid;not null;index:idx_sync_bindings_local"`
	RemoteID        *string    `gorm:"type:varchar(512);uniqueIndex:uq_sync_bindings_remote,priority:3"`
	VersionToken    string     `gorm:"type:varchar(512)"`
	OwningPrincipal uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uq_sync_bindings_remote,priority:4"`
	Status          string     `gorm:"type:varchar(30);not null;index:idx_sync_bindings_status"`
	LastSyncAt      *time.Time
}

// TableName returns the table name for GORM
func (BindingModel) TableName() string {
	return "sync_bindings"
}

// ToDomain converts the persistence model to a domain Binding
func (m *BindingModel) ToDomain() *integration.Binding {
	b := &integration.Binding{
		BaseEntity:      m.BaseModel.entity(),
		System:          integration.SystemCode(m.System),
		EntityType:      integration.EntityType(m.EntityType),
		LocalID:         m.LocalID,
		VersionToken:    integration.VersionToken(m.VersionToken),
		OwningPrincipal: m.OwningPrincipal,
		Status:          integration.SyncStatus(m.Status),
		LastSyncAt:      m.LastSyncAt,
	}
	if m.RemoteID != nil {
		b.RemoteID = *m.RemoteID
	}
	return b
}

// FromDomain populates the persistence model from a domain Binding
func (m *BindingModel) FromDomain(b *integration.Binding) {
	m.BaseModel = newBaseModel(b.BaseEntity)
	m.System = string(b.System)
	m.EntityType = string(b.EntityType)
	m.LocalID = b.LocalID
	m.RemoteID = nil
	if b.RemoteID != "" {
		id := b.RemoteID
		m.RemoteID = &id
	}
	m.VersionToken = string(b.VersionToken)
	m.OwningPrincipal = b.OwningPrincipal
	m.Status = string(b.Status)
	m.LastSyncAt = b.LastSyncAt
}

// BindingModelFromDomain creates a new persistence model from a domain Binding
func BindingModelFromDomain(b *integration.Binding) *BindingModel {
	m := &BindingModel{}
	m.FromDomain(b)
	return m
}

// ---------------------------------------------------------------------------
// Local record
// ---------------------------------------------------------------------------

// LocalRecordModel is the persistence model for a LocalRecord
type LocalRecordModel struct {
	BaseModel
	EntityType  string            `gorm:"type:varchar(50);not null;index:idx_local_records_type_owner,priority:1"`
	OwnerID     uuid.UUID         `gorm:"type:uuid;not null;index:idx_local_records_type_owner,priority:2"`
	Active      bool              `gorm:"not null"`
	SyncEnabled bool              `gorm:"not null"`
	Fields      map[string]string `gorm:"type:jsonb;serializer:json;not null"`
}

// TableName returns the table name for GORM
func (LocalRecordModel) TableName() string {
	return "local_records"
}

// ToDomain converts the persistence model to a domain LocalRecord
func (m *LocalRecordModel) ToDomain() *integration.LocalRecord {
	fields := integration.Fields(m.Fields)
	if fields == nil {
		fields = integration.Fields{}
	}
	return &integration.LocalRecord{
		BaseEntity:  m.BaseModel.entity(),
		EntityType:  integration.EntityType(m.EntityType),
		OwnerID:     m.OwnerID,
		Active:      m.Active,
		SyncEnabled: m.SyncEnabled,
		Fields:      fields,
	}
}

// LocalRecordModelFromDomain creates a new persistence model from a domain LocalRecord
func LocalRecordModelFromDomain(r *integration.LocalRecord) *LocalRecordModel {
	m := &LocalRecordModel{
		EntityType:  string(r.EntityType),
		OwnerID:     r.OwnerID,
		Active:      r.Active,
		SyncEnabled: r.SyncEnabled,
		Fields:      map[string]string(r.Fields),
	}
	if m.Fields == nil {
		m.Fields = map[string]string{}
	}
	m.BaseModel = newBaseModel(r.BaseEntity)
	return m
}

// ---------------------------------------------------------------------------
// Occurrence
// ---------------------------------------------------------------------------

// OccurrenceModel is the persistence model for an Occurrence
type OccurrenceModel struct {
	BaseModel
	ParentID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_record_occurrences_key,priority:1"`
	OriginalStart time.Time `gorm:"not null;uniqueIndex:uq_record_occurrences_key,priority:2"`
	Start         time.Time `gorm:"column:starts_at;not null"`
	End           time.Time `gorm:"column:ends_at;not null"`
	Subject       string    `gorm:"type:varchar(500)"`
	Active        bool      `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OccurrenceModel) TableName() string {
	return "record_occurrences"
}

// ToDomain converts the persistence model to a domain Occurrence
func (m *OccurrenceModel) ToDomain() integration.Occurrence {
	return integration.Occurrence{
		BaseEntity:    m.BaseModel.entity(),
		ParentID:      m.ParentID,
		OriginalStart: m.OriginalStart.UTC(),
		Start:         m.Start.UTC(),
		End:           m.End.UTC(),
		Subject:       m.Subject,
		Active:        m.Active,
	}
}

// OccurrenceModelFromDomain creates a new persistence model from a domain Occurrence
func OccurrenceModelFromDomain(o *integration.Occurrence) *OccurrenceModel {
	m := &OccurrenceModel{
		ParentID:      o.ParentID,
		OriginalStart: o.OriginalStart,
		Start:         o.Start,
		End:           o.End,
		Subject:       o.Subject,
		Active:        o.Active,
	}
	m.BaseModel = newBaseModel(o.BaseEntity)
	return m
}

// ---------------------------------------------------------------------------
// Attachment
// ---------------------------------------------------------------------------

// AttachmentModel is the persistence model for attachment metadata
type AttachmentModel struct {
	BaseModel
	RecordID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_record_attachments_name,priority:1"`
	Name        string    `gorm:"type:varchar(255);not null;uniqueIndex:uq_record_attachments_name,priority:2"`
	ContentType string    `gorm:"type:varchar(100)"`
	Size        int64     `gorm:"not null"`
	ContentHash string    `gorm:"type:char(64);not null"`
	StorageKey  string    `gorm:"type:varchar(500);not null"`
}

// TableName returns the table name for GORM
func (AttachmentModel) TableName() string {
	return "record_attachments"
}

// ToDomain converts the persistence model to a domain Attachment
func (m *AttachmentModel) ToDomain() integration.Attachment {
	return integration.Attachment{
		BaseEntity:  m.BaseModel.entity(),
		RecordID:    m.RecordID,
		Name:        m.Name,
		ContentType: m.ContentType,
		Size:        m.Size,
		ContentHash: m.ContentHash,
		StorageKey:  m.StorageKey,
	}
}

// AttachmentModelFromDomain creates a new persistence model from a domain Attachment
func AttachmentModelFromDomain(a *integration.Attachment) *AttachmentModel {
	m := &AttachmentModel{
		RecordID:    a.RecordID,
		Name:        a.Name,
		ContentType: a.ContentType,
		Size:        a.Size,
		ContentHash: a.ContentHash,
		StorageKey:  a.StorageKey,
	}
	m.BaseModel = newBaseModel(a.BaseEntity)
	return m
}

