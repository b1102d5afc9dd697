package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/shared"
	"github.com/erp/connector/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormBindingRepository implements BindingRepository using GORM
type GormBindingRepository struct {
	db *gorm.DB
}

// NewGormBindingRepository creates a new GormBindingRepository
func NewGormBindingRepository(db *gorm.DB) *GormBindingRepository {
	return &GormBindingRepository{db: db}
}

// ---------------------------------------------------------------------------
// BindingReader implementation
// ---------------------------------------------------------------------------

// FindByID finds a binding by its ID
func (r *GormBindingRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.Binding, error) {
	var model models.BindingModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrBindingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByRemoteID finds the binding for a remote entity owned by a principal
func (r *GormBindingRepository) FindByRemoteID(ctx context.Context, key integration.BindingKey) (*integration.Binding, error) {
	var model models.BindingModel
	if err := r.db.WithContext(ctx).
		Where("system = ? AND entity_type = ? AND remote_id = ? AND owning_principal = ?",
			key.System, key.EntityType, key.RemoteID, key.Principal).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrBindingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByLocalID finds all bindings of a local record
func (r *GormBindingRepository) FindByLocalID(ctx context.Context, localID uuid.UUID) ([]integration.Binding, error) {
	var bindingModels []models.BindingModel
	if err := r.db.WithContext(ctx).
		Where("local_id = ?", localID).
		Order("system ASC").
		Find(&bindingModels).Error; err != nil {
		return nil, err
	}

	bindings := make([]integration.Binding, len(bindingModels))
	for i := range bindingModels {
		bindings[i] = *bindingModels[i].ToDomain()
	}
	return bindings, nil
}

// ---------------------------------------------------------------------------
// BindingFinder implementation
// ---------------------------------------------------------------------------

// ListRemoteIDs returns every bound remote id for a system, type and principal
func (r *GormBindingRepository) ListRemoteIDs(ctx context.Context, system integration.SystemCode, entityType integration.EntityType, principal uuid.UUID) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.BindingModel{}).
		Where("system = ? AND entity_type = ? AND owning_principal = ? AND remote_id IS NOT NULL",
			system, entityType, principal).
		Order("remote_id ASC").
		Pluck("remote_id", &ids).Error
	return ids, err
}

// FindByStatus lists bindings in a status with paging
func (r *GormBindingRepository) FindByStatus(ctx context.Context, status integration.SyncStatus, filter shared.Filter) ([]integration.Binding, int64, error) {
	filter = filter.Normalize()
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.BindingModel{}).
		Where("status = ?", status).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var bindingModels []models.BindingModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order(orderClause(filter, BindingSortFields, "updated_at")).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&bindingModels).Error; err != nil {
		return nil, 0, err
	}

	bindings := make([]integration.Binding, len(bindingModels))
	for i := range bindingModels {
		bindings[i] = *bindingModels[i].ToDomain()
	}
	return bindings, total, nil
}

// ---------------------------------------------------------------------------
// BindingWriter implementation
// ---------------------------------------------------------------------------

// Save creates or updates a binding; a duplicate bound key yields ErrBindingConflict
func (r *GormBindingRepository) Save(ctx context.Context, binding *integration.Binding) error {
	model := models.BindingModelFromDomain(binding)
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s/%s/%s", integration.ErrBindingConflict, binding.System, binding.EntityType, binding.RemoteID)
		}
		return err
	}
	return nil
}

// Delete deletes a binding by ID
func (r *GormBindingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.BindingModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrBindingNotFound
	}
	return nil
}

// Ensure GormBindingRepository implements BindingRepository
var _ integration.BindingRepository = (*GormBindingRepository)(nil)
