package persistence

import (
	"context"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/shared"
	"github.com/erp/connector/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormAttachmentRepository implements AttachmentRepository using GORM.
// It stores metadata only; content lives in the object store under StorageKey.
type GormAttachmentRepository struct {
	db *gorm.DB
}

// NewGormAttachmentRepository creates a new GormAttachmentRepository
func NewGormAttachmentRepository(db *gorm.DB) *GormAttachmentRepository {
	return &GormAttachmentRepository{db: db}
}

// FindByRecord returns the attachments of a record ordered by name
func (r *GormAttachmentRepository) FindByRecord(ctx context.Context, recordID uuid.UUID) ([]integration.Attachment, error) {
	var attachmentModels []models.AttachmentModel
	if err := r.db.WithContext(ctx).
		Where("record_id = ?", recordID).
		Order("name ASC").
		Find(&attachmentModels).Error; err != nil {
		return nil, err
	}

	attachments := make([]integration.Attachment, len(attachmentModels))
	for i := range attachmentModels {
		attachments[i] = attachmentModels[i].ToDomain()
	}
	return attachments, nil
}

// Save creates or updates attachment metadata
func (r *GormAttachmentRepository) Save(ctx context.Context, attachment *integration.Attachment) error {
	err := r.db.WithContext(ctx).Save(models.AttachmentModelFromDomain(attachment)).Error
	if isUniqueViolation(err) {
		return shared.ErrAlreadyExists
	}
	return err
}

// Delete removes attachment metadata by ID
func (r *GormAttachmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.AttachmentModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ integration.AttachmentRepository = (*GormAttachmentRepository)(nil)
