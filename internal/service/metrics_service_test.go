package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hostwatch/hostwatch/internal/config"
	models "github.com/hostwatch/hostwatch/internal/model"
	"github.com/hostwatch/hostwatch/internal/repository"
)

func newTestService(t *testing.T) *MetricsService {
	t.Helper()
	return NewMetricsService(repository.NewMemStorage())
}

func TestMetricsService_Delegation(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)

	require.NoError(t, service.SetMetric(ctx, "cpu.usage_percent", 33.3, config.GaugeType))
	val, err := service.GetMetricByName(ctx, "cpu.usage_percent")
	require.NoError(t, err)
	assert.Equal(t, 33.3, val)

	require.NoError(t, service.SetMetrics(ctx, []models.Metric{
		{Name: "PollCount", Type: config.CounterType, Value: int64(2)},
	}))
	list, err := service.ListMetrics(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, service.DeleteMetric(ctx, "PollCount"))
	_, err = service.GetMetricByName(ctx, "PollCount")
	assert.Error(t, err)

	assert.NoError(t, service.Ping(ctx))
	assert.True(t, service.IsMemStorage())
}

func TestMetricsService_SaveAndRestore(t *testing.T) {
	ctx := context.Background()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	sugar := logger.Sugar()

	path := filepath.Join(t.TempDir(), "snapshot", "metrics.json")

	source := newTestService(t)
	require.NoError(t, source.SetMetric(ctx, "web-01:memory.used_percent", 71.5, config.GaugeType))
	require.NoError(t, source.SetMetric(ctx, "web-01:PollCount", int64(9), config.CounterType))
	require.NoError(t, source.SaveMetrics(ctx, path))

	restored := newTestService(t)
	require.NoError(t, restored.RestoreMetrics(ctx, path, sugar))

	gauge, err := restored.GetMetricByName(ctx, "web-01:memory.used_percent")
	require.NoError(t, err)
	assert.Equal(t, 71.5, gauge)

	// Counters survive the round trip as int64 even though JSON decodes
	// every number as float64
	counter, err := restored.GetMetricByName(ctx, "web-01:PollCount")
	require.NoError(t, err)
	assert.Equal(t, int64(9), counter)
}

func TestMetricsService_RestoreMissingFile(t *testing.T) {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	service := newTestService(t)
	assert.NoError(t, service.RestoreMetrics(context.Background(),
		filepath.Join(t.TempDir(), "does-not-exist.json"), logger.Sugar()))
}

func TestMetricsService_RunStoreTickerFinalSave(t *testing.T) {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	sugar := logger.Sugar()

	path := filepath.Join(t.TempDir(), "metrics.json")
	service := newTestService(t)
	require.NoError(t, service.SetMetric(context.Background(), "load.1m", 0.7, config.GaugeType))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		service.RunStoreTicker(ctx, 60, path, sugar)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("store ticker did not stop")
	}

	restored := newTestService(t)
	require.NoError(t, restored.RestoreMetrics(context.Background(), path, sugar))
	val, err := restored.GetMetricByName(context.Background(), "load.1m")
	require.NoError(t, err)
	assert.Equal(t, 0.7, val)
}

func TestMetricsService_RunStoreTickerZeroInterval(t *testing.T) {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	service := newTestService(t)
	// Returns immediately without a ticker
	service.RunStoreTicker(context.Background(), 0, "unused.json", logger.Sugar())
}
