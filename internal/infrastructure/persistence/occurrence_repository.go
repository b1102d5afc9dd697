package persistence

import (
	"context"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormOccurrenceRepository implements OccurrenceRepository using GORM
type GormOccurrenceRepository struct {
	db *gorm.DB
}

// NewGormOccurrenceRepository creates a new GormOccurrenceRepository
func NewGormOccurrenceRepository(db *gorm.DB) *GormOccurrenceRepository {
	return &GormOccurrenceRepository{db: db}
}

// FindByParent returns all occurrences of a parent record, including inactive ones
func (r *GormOccurrenceRepository) FindByParent(ctx context.Context, parentID uuid.UUID) ([]integration.Occurrence, error) {
	var occurrenceModels []models.OccurrenceModel
	if err := r.db.WithContext(ctx).
		Where("parent_id = ?", parentID).
		Order("original_start ASC").
		Find(&occurrenceModels).Error; err != nil {
		return nil, err
	}

	occurrences := make([]integration.Occurrence, len(occurrenceModels))
	for i := range occurrenceModels {
		occurrences[i] = occurrenceModels[i].ToDomain()
	}
	return occurrences, nil
}

// Save creates or updates an occurrence
func (r *GormOccurrenceRepository) Save(ctx context.Context, occurrence *integration.Occurrence) error {
	return r.db.WithContext(ctx).Save(models.OccurrenceModelFromDomain(occurrence)).Error
}

var _ integration.OccurrenceRepository = (*GormOccurrenceRepository)(nil)
