package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/erp/connector/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type widget struct {
	ID   uint
	Name string
}

func TestDBMetrics_Plugin(t *testing.T) {
	reader, provider := newManualMeter(t)
	m, err := telemetry.NewDBMetrics(provider.Meter("db.client"), telemetry.DBMetricsConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&widget{}))
	require.NoError(t, db.Use(m))

	require.NoError(t, db.Create(&widget{Name: "a"}).Error)
	var found widget
	require.NoError(t, db.First(&found).Error)
	err = db.First(&found, 999).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Error(t, db.Exec("SELECT * FROM missing_table").Error)

	metrics := collect(t, reader)

	hist, ok := metrics["db_query_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	ops := map[string]uint64{}
	for _, dp := range hist.DataPoints {
		op, _ := dp.Attributes.Value(telemetry.AttrDBOperation)
		ops[op.AsString()] += dp.Count
	}
	assert.Equal(t, uint64(1), ops["INSERT"])
	assert.Equal(t, uint64(3), ops["SELECT"], "two queries plus one raw select")

	assert.Equal(t, int64(1), sumFor(t, metrics["db_query_errors_total"]), "not-found is not an error")
}

func TestDBMetrics_RecordQuerySlow(t *testing.T) {
	reader, provider := newManualMeter(t)
	m, err := telemetry.NewDBMetrics(provider.Meter("db.client"),
		telemetry.DBMetricsConfig{SlowQueryThreshold: 10 * time.Millisecond}, nil)
	require.NoError(t, err)

	m.RecordQuery(context.Background(), "SELECT", "sync_jobs", 50*time.Millisecond, nil)
	m.RecordQuery(context.Background(), "SELECT", "", time.Millisecond, nil)

	metrics := collect(t, reader)
	assert.Equal(t, int64(1), sumFor(t, metrics["db_slow_query_total"], telemetry.AttrDBTable.String("sync_jobs")))
}

func TestDBMetrics_PoolStats(t *testing.T) {
	reader, provider := newManualMeter(t)
	m, err := telemetry.NewDBMetrics(provider.Meter("db.client"),
		telemetry.DBMetricsConfig{PoolStatsInterval: time.Hour}, nil)
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(3)

	m.StartPoolStatsCollection(context.Background(), sqlDB)
	require.Eventually(t, func() bool {
		_, ok := collect(t, reader)["db_pool_connections_max"]
		return ok
	}, time.Second, 10*time.Millisecond)
	m.Stop()
	m.Stop()

	gauge, ok := collect(t, reader)["db_pool_connections_max"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(3), gauge.DataPoints[0].Value)
}

func TestNewDBMetrics_NilMeter(t *testing.T) {
	_, err := telemetry.NewDBMetrics(nil, telemetry.DBMetricsConfig{}, nil)
	assert.Error(t, err)
}
