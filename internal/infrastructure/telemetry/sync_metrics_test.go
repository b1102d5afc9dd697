package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	appintegration "github.com/erp/connector/internal/application/integration"
	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
)

func newManualMeter(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return reader, provider
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumFor(t *testing.T, m metricdata.Metrics, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	want := attribute.NewSet(attrs...)
	var total int64
	for _, dp := range sum.DataPoints {
		match := true
		for _, kv := range want.ToSlice() {
			v, ok := dp.Attributes.Value(kv.Key)
			if !ok || v != kv.Value {
				match = false
				break
			}
		}
		if match {
			total += dp.Value
		}
	}
	return total
}

func TestNewSyncMetrics_NilMeter(t *testing.T) {
	sm, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{})
	require.Error(t, err)
	assert.Nil(t, sm)
	assert.Equal(t, "NewSyncMetrics: meter cannot be nil", err.Error())
}

func TestSyncMetrics_RecordAttempt(t *testing.T) {
	reader, provider := newManualMeter(t)
	sm, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{
		Meter:  provider.Meter("test"),
		Logger: zaptest.NewLogger(t),
		System: "exchange",
	})
	require.NoError(t, err)

	ctx := context.Background()
	sm.RecordAttempt(ctx, integration.JobOperationExport, integration.EntityTypeContact,
		appintegration.OutcomeSuccess, integration.ResultCreated, 120*time.Millisecond)
	sm.RecordAttempt(ctx, integration.JobOperationExport, integration.EntityTypeContact,
		appintegration.OutcomeSuccess, integration.ResultUpdated, 80*time.Millisecond)
	sm.RecordAttempt(ctx, integration.JobOperationImport, integration.EntityTypeCalendarEvent,
		appintegration.OutcomeRetryable, "", 2*time.Second)

	metrics := collect(t, reader)

	attempts := metrics["connector_sync_attempts_total"]
	assert.Equal(t, int64(2), sumFor(t, attempts,
		telemetry.AttrOperation.String("export"), telemetry.AttrOutcome.String("SUCCESS")))
	assert.Equal(t, int64(1), sumFor(t, attempts,
		telemetry.AttrOperation.String("import"), telemetry.AttrOutcome.String("RETRYABLE")))
	assert.Equal(t, int64(3), sumFor(t, attempts, telemetry.AttrSystem.String("exchange")))

	hist, ok := metrics["connector_sync_job_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(3), count)
}

func TestSyncMetrics_RecordSweep(t *testing.T) {
	reader, provider := newManualMeter(t)
	sm, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{Meter: provider.Meter("test"), System: "exchange"})
	require.NoError(t, err)

	ctx := context.Background()
	sm.RecordSweep(ctx, integration.DirectionImport, false, 5, time.Second, nil)
	sm.RecordSweep(ctx, integration.DirectionImport, true, 2, time.Second, errors.New("remote down"))

	metrics := collect(t, reader)
	assert.Equal(t, int64(1), sumFor(t, metrics["connector_sync_sweeps_total"], telemetry.AttrOutcome.String("error")))
	assert.Equal(t, int64(7), sumFor(t, metrics["connector_sync_sweep_enqueued_total"],
		telemetry.AttrDirection.String("import")))
}

type staticJobStats map[integration.JobStatus]int64

func (s staticJobStats) CountByStatus(context.Context) (map[integration.JobStatus]int64, error) {
	return s, nil
}

func TestSyncMetrics_CollectQueueDepth(t *testing.T) {
	reader, provider := newManualMeter(t)
	sm, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{
		Meter:    provider.Meter("test"),
		System:   "exchange",
		JobStats: staticJobStats{integration.JobStatusPending: 4, integration.JobStatusDead: 1},
	})
	require.NoError(t, err)

	sm.CollectQueueDepth(context.Background())

	gauge, ok := collect(t, reader)["connector_sync_jobs"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	values := map[string]int64{}
	for _, dp := range gauge.DataPoints {
		status, _ := dp.Attributes.Value(telemetry.AttrJobStatus)
		values[status.AsString()] = dp.Value
	}
	assert.Equal(t, int64(4), values["PENDING"])
	assert.Equal(t, int64(1), values["DEAD"])
	assert.Equal(t, int64(0), values["RUNNING"])
	assert.Len(t, values, 5)
}

func TestSyncMetrics_PeriodicCollectionStops(t *testing.T) {
	_, provider := newManualMeter(t)
	sm, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{
		Meter:    provider.Meter("test"),
		JobStats: staticJobStats{},
	})
	require.NoError(t, err)

	sm.StartPeriodicCollection(context.Background(), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	sm.Stop()
	sm.Stop()
}
