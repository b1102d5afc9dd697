//go:build integration

package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/infrastructure/migration"
	"github.com/erp/connector/migrations"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newPostgres starts a throwaway Postgres container and applies the embedded migrations
func newPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("connector_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	m, err := migration.New(sqlDB, migrations.FS, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, m.Up())
	// A second run finds nothing to apply
	require.NoError(t, m.Up())

	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.GreaterOrEqual(t, version, uint(4))

	return db
}

func seedRecord(t *testing.T, db *gorm.DB) *integration.LocalRecord {
	t.Helper()
	record, err := integration.NewLocalRecord(integration.EntityTypeContact, uuid.New(),
		integration.Fields{"given_name": "Ada"}, true)
	require.NoError(t, err)
	require.NoError(t, NewGormLocalRecordRepository(db).Save(context.Background(), record))
	return record
}

func TestPostgresLockManager_Integration(t *testing.T) {
	db := newPostgres(t)
	ctx := context.Background()

	t.Run("row lock held by another transaction is busy", func(t *testing.T) {
		record := seedRecord(t, db)

		holder := db.Begin()
		require.NoError(t, holder.Error)
		defer holder.Rollback()
		require.NoError(t, NewPostgresLockManager(holder).TryLockRow(ctx, record.ID))

		contender := db.Begin()
		require.NoError(t, contender.Error)
		defer contender.Rollback()

		start := time.Now()
		err := NewPostgresLockManager(contender).TryLockRow(ctx, record.ID)
		assert.ErrorIs(t, err, integration.ErrLockBusy)
		assert.Less(t, time.Since(start), 2*time.Second, "NOWAIT must not block")
	})

	t.Run("row lock on missing record", func(t *testing.T) {
		tx := db.Begin()
		defer tx.Rollback()

		err := NewPostgresLockManager(tx).TryLockRow(ctx, uuid.New())
		assert.ErrorIs(t, err, integration.ErrRecordNotFound)
	})

	t.Run("advisory lock waits then times out", func(t *testing.T) {
		key := integration.AdvisoryKey{System: "exchange", EntityType: integration.EntityTypeContact, RemoteID: "AAMk-1"}

		holder := db.Begin()
		defer holder.Rollback()
		require.NoError(t, NewPostgresLockManager(holder).AcquireAdvisory(ctx, key, time.Second))
		// Re-entrant within the holding transaction
		require.NoError(t, NewPostgresLockManager(holder).AcquireAdvisory(ctx, key, time.Second))

		contender := db.Begin()
		defer contender.Rollback()
		err := NewPostgresLockManager(contender).AcquireAdvisory(ctx, key, 100*time.Millisecond)
		assert.ErrorIs(t, err, integration.ErrLockTimeout)

		other := integration.AdvisoryKey{System: "exchange", EntityType: integration.EntityTypeContact, RemoteID: "AAMk-2"}
		assert.NoError(t, NewPostgresLockManager(contender).AcquireAdvisory(ctx, other, 100*time.Millisecond))
	})

	t.Run("advisory lock is released on commit", func(t *testing.T) {
		key := integration.AdvisoryKey{System: "exchange", EntityType: integration.EntityTypeCalendarEvent, RemoteID: "evt-9"}

		holder := db.Begin()
		require.NoError(t, NewPostgresLockManager(holder).AcquireAdvisory(ctx, key, time.Second))

		done := make(chan error, 1)
		go func() {
			contender := db.Begin()
			defer contender.Rollback()
			done <- NewPostgresLockManager(contender).AcquireAdvisory(ctx, key, 5*time.Second)
		}()

		time.Sleep(50 * time.Millisecond)
		require.NoError(t, holder.Commit().Error)

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("contender never acquired the advisory lock")
		}
	})
}

func TestGormSyncJobRepository_ClaimDue_Integration(t *testing.T) {
	db := newPostgres(t)
	ctx := context.Background()
	repo := NewGormSyncJobRepository(db)

	principal := uuid.New()
	jobs := make([]*integration.SyncJob, 0, 20)
	for range 20 {
		jobs = append(jobs, integration.NewImportJob("exchange", integration.EntityTypeContact, principal, uuid.NewString()))
	}
	require.NoError(t, repo.Enqueue(ctx, jobs...))

	now := time.Now().Add(time.Minute)
	var (
		mu      sync.Mutex
		claimed = map[uuid.UUID]int{}
		wg      sync.WaitGroup
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := repo.ClaimDue(ctx, now, 5)
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			for _, j := range got {
				claimed[j.ID]++
			}
		}()
	}
	wg.Wait()

	for id, n := range claimed {
		assert.Equal(t, 1, n, "job %s claimed more than once", id)
	}
	assert.NotEmpty(t, claimed)
	assert.LessOrEqual(t, len(claimed), 20)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(claimed)), counts[integration.JobStatusRunning])
	assert.Equal(t, int64(20-len(claimed)), counts[integration.JobStatusPending])
}
