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

// GormSyncJobRepository implements SyncJobRepository using GORM.
// Workers on several nodes claim from the same table; FOR UPDATE SKIP LOCKED
// keeps two claimers from taking the same row.
type GormSyncJobRepository struct {
	db *gorm.DB
}

// NewGormSyncJobRepository creates a new GormSyncJobRepository
func NewGormSyncJobRepository(db *gorm.DB) *GormSyncJobRepository {
	return &GormSyncJobRepository{db: db}
}

// WithTx returns a new repository with the given transaction
func (r *GormSyncJobRepository) WithTx(tx *gorm.DB) *GormSyncJobRepository {
	return &GormSyncJobRepository{db: tx}
}

// Enqueue persists one or more new jobs
func (r *GormSyncJobRepository) Enqueue(ctx context.Context, jobs ...*integration.SyncJob) error {
	if len(jobs) == 0 {
		return nil
	}
	rows := make([]*models.SyncJobModel, len(jobs))
	for i, j := range jobs {
		rows[i] = models.SyncJobModelFromDomain(j)
	}
	return r.db.WithContext(ctx).Create(rows).Error
}

// ClaimDue atomically marks up to limit due PENDING jobs as RUNNING and returns them,
// lowest priority value first
func (r *GormSyncJobRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*integration.SyncJob, error) {
	if limit <= 0 {
		return nil, nil
	}

	var rows []models.SyncJobModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Clauses(clause.Locking{
				Strength: "UPDATE",
				Options:  "SKIP LOCKED",
			}).
			Where("status = ? AND not_before <= ?", integration.JobStatusPending, now).
			Order("priority ASC, not_before ASC, created_at ASC").
			Limit(limit).
			Find(&rows).Error; err != nil {
			return err
		}

		if len(rows) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(rows))
		for i := range rows {
			ids[i] = rows[i].ID
		}

		if err := tx.Model(&models.SyncJobModel{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":     string(integration.JobStatusRunning),
				"started_at": now,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}

		for i := range rows {
			started := now
			rows[i].Status = string(integration.JobStatusRunning)
			rows[i].StartedAt = &started
			rows[i].UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	jobs := make([]*integration.SyncJob, len(rows))
	for i := range rows {
		jobs[i] = rows[i].ToDomain()
	}
	return jobs, nil
}

// Update persists the state of an existing job
func (r *GormSyncJobRepository) Update(ctx context.Context, job *integration.SyncJob) error {
	job.UpdatedAt = time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.SyncJobModel{}).
		Where("id = ?", job.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(models.SyncJobModelFromDomain(job))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrJobNotFound
	}
	return nil
}

// FindByID retrieves a job
func (r *GormSyncJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.SyncJob, error) {
	var model models.SyncJobModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrJobNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByStatus lists jobs in a status with pagination, ordered by the filter
func (r *GormSyncJobRepository) FindByStatus(ctx context.Context, status integration.JobStatus, filter shared.Filter) ([]*integration.SyncJob, int64, error) {
	filter = filter.Normalize()
	var total int64

	if err := r.db.WithContext(ctx).
		Model(&models.SyncJobModel{}).
		Where("status = ?", status).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.SyncJobModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order(orderClause(filter, SyncJobSortFields, "updated_at")).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	jobs := make([]*integration.SyncJob, len(rows))
	for i := range rows {
		jobs[i] = rows[i].ToDomain()
	}
	return jobs, total, nil
}

// RequeueStale puts RUNNING jobs whose lease expired back to PENDING.
// The retry counter is left alone; the crashed attempt never reported.
func (r *GormSyncJobRepository) RequeueStale(ctx context.Context, startedBefore time.Time) (int64, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.SyncJobModel{}).
		Where("status = ? AND started_at < ?", integration.JobStatusRunning, startedBefore).
		Updates(map[string]any{
			"status":     string(integration.JobStatusPending),
			"not_before": now,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}

// DeleteCompletedBefore purges DONE jobs finished before the given time
func (r *GormSyncJobRepository) DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND finished_at < ?", integration.JobStatusDone, before).
		Delete(&models.SyncJobModel{})
	return result.RowsAffected, result.Error
}

// CountByStatus returns count of jobs for each status
func (r *GormSyncJobRepository) CountByStatus(ctx context.Context) (map[integration.JobStatus]int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}

	var results []statusCount
	err := r.db.WithContext(ctx).
		Model(&models.SyncJobModel{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[integration.JobStatus]int64)
	for _, c := range results {
		counts[integration.JobStatus(c.Status)] = c.Count
	}
	return counts, nil
}

// Ensure GormSyncJobRepository implements SyncJobRepository
var _ integration.SyncJobRepository = (*GormSyncJobRepository)(nil)
