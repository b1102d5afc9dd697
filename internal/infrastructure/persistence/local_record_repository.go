package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/shared"
	"github.com/erp/connector/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormLocalRecordRepository implements LocalRecordRepository using GORM
type GormLocalRecordRepository struct {
	db *gorm.DB
}

// NewGormLocalRecordRepository creates a new GormLocalRecordRepository
func NewGormLocalRecordRepository(db *gorm.DB) *GormLocalRecordRepository {
	return &GormLocalRecordRepository{db: db}
}

// FindByID finds a local record by its ID
func (r *GormLocalRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.LocalRecord, error) {
	var model models.LocalRecordModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrRecordNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindSyncEnabledModifiedSince lists active, sync-enabled records of an owner
// changed after since, oldest change first
func (r *GormLocalRecordRepository) FindSyncEnabledModifiedSince(ctx context.Context, entityType integration.EntityType, owner uuid.UUID, since time.Time, limit int) ([]integration.LocalRecord, error) {
	var recordModels []models.LocalRecordModel
	query := r.db.WithContext(ctx).
		Where("entity_type = ? AND owner_id = ?", entityType, owner).
		Where("sync_enabled = ? AND active = ?", true, true).
		Where("updated_at > ?", since).
		Order("updated_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&recordModels).Error; err != nil {
		return nil, err
	}
	return toLocalRecords(recordModels), nil
}

// List lists records of a type with pagination; an empty type lists all
func (r *GormLocalRecordRepository) List(ctx context.Context, entityType integration.EntityType, filter shared.Filter) ([]integration.LocalRecord, int64, error) {
	filter = filter.Normalize()
	scope := func(db *gorm.DB) *gorm.DB {
		if entityType != "" {
			db = db.Where("entity_type = ?", entityType)
		}
		if owner, ok := filter.Filters["owner_id"]; ok {
			db = db.Where("owner_id = ?", owner)
		}
		if active, ok := filter.Filters["active"]; ok {
			db = db.Where("active = ?", active)
		}
		return db
	}

	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.LocalRecordModel{}).
		Scopes(scope).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var recordModels []models.LocalRecordModel
	if err := r.db.WithContext(ctx).
		Scopes(scope).
		Order(orderClause(filter, LocalRecordSortFields, "updated_at")).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&recordModels).Error; err != nil {
		return nil, 0, err
	}
	return toLocalRecords(recordModels), total, nil
}

// Save creates or updates a local record
func (r *GormLocalRecordRepository) Save(ctx context.Context, record *integration.LocalRecord) error {
	return r.db.WithContext(ctx).Save(models.LocalRecordModelFromDomain(record)).Error
}

// Delete deletes a local record by ID
func (r *GormLocalRecordRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.LocalRecordModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrRecordNotFound
	}
	return nil
}

func toLocalRecords(recordModels []models.LocalRecordModel) []integration.LocalRecord {
	records := make([]integration.LocalRecord, len(recordModels))
	for i := range recordModels {
		records[i] = *recordModels[i].ToDomain()
	}
	return records
}

// Ensure GormLocalRecordRepository implements LocalRecordRepository
var _ integration.LocalRecordRepository = (*GormLocalRecordRepository)(nil)
