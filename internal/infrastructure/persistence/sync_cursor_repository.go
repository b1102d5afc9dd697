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
	"gorm.io/gorm/clause"
)

// GormSyncCursorRepository implements SyncCursorRepository using GORM
type GormSyncCursorRepository struct {
	db *gorm.DB
}

// NewGormSyncCursorRepository creates a new GormSyncCursorRepository
func NewGormSyncCursorRepository(db *gorm.DB) *GormSyncCursorRepository {
	return &GormSyncCursorRepository{db: db}
}

// Get returns the cursor or nil when none exists
func (r *GormSyncCursorRepository) Get(ctx context.Context, system integration.SystemCode, entityType integration.EntityType, principal uuid.UUID, direction integration.SyncDirection) (*integration.SyncCursor, error) {
	var model models.SyncCursorModel
	err := r.db.WithContext(ctx).
		Where("system = ? AND entity_type = ? AND principal = ? AND direction = ?",
			system, entityType, principal, direction).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

// Advance upserts the cursor to its LastRunAt
func (r *GormSyncCursorRepository) Advance(ctx context.Context, cursor *integration.SyncCursor) error {
	cursor.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "system"}, {Name: "entity_type"}, {Name: "principal"}, {Name: "direction"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"last_run_at", "updated_at"}),
		}).
		Create(models.SyncCursorModelFromDomain(cursor)).Error
}

var _ integration.SyncCursorRepository = (*GormSyncCursorRepository)(nil)

// GormSyncSubscriptionRepository implements SyncSubscriptionRepository using GORM
type GormSyncSubscriptionRepository struct {
	db *gorm.DB
}

// NewGormSyncSubscriptionRepository creates a new GormSyncSubscriptionRepository
func NewGormSyncSubscriptionRepository(db *gorm.DB) *GormSyncSubscriptionRepository {
	return &GormSyncSubscriptionRepository{db: db}
}

// FindEnabled lists subscriptions of a system with the given direction switched on
func (r *GormSyncSubscriptionRepository) FindEnabled(ctx context.Context, system integration.SystemCode, direction integration.SyncDirection) ([]integration.SyncSubscription, error) {
	column := "import_enabled"
	if direction == integration.DirectionExport {
		column = "export_enabled"
	}

	var rows []models.SyncSubscriptionModel
	if err := r.db.WithContext(ctx).
		Where("system = ?", system).
		Where(column+" = ?", true).
		Order("principal ASC, entity_type ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	subs := make([]integration.SyncSubscription, len(rows))
	for i := range rows {
		subs[i] = rows[i].ToDomain()
	}
	return subs, nil
}

// Find returns one subscription
func (r *GormSyncSubscriptionRepository) Find(ctx context.Context, system integration.SystemCode, principal uuid.UUID, entityType integration.EntityType) (*integration.SyncSubscription, error) {
	var model models.SyncSubscriptionModel
	if err := r.db.WithContext(ctx).
		Where("system = ? AND principal = ? AND entity_type = ?", system, principal, entityType).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	sub := model.ToDomain()
	return &sub, nil
}

// Save upserts a subscription by system, principal and entity type
func (r *GormSyncSubscriptionRepository) Save(ctx context.Context, subscription *integration.SyncSubscription) error {
	now := time.Now()
	if subscription.ID == uuid.Nil {
		subscription.ID = uuid.New()
	}
	if subscription.CreatedAt.IsZero() {
		subscription.CreatedAt = now
	}
	subscription.UpdatedAt = now

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "system"}, {Name: "principal"}, {Name: "entity_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"import_enabled", "export_enabled", "mailbox", "updated_at"}),
		}).
		Create(models.SyncSubscriptionModelFromDomain(subscription)).Error
}

var _ integration.SyncSubscriptionRepository = (*GormSyncSubscriptionRepository)(nil)
