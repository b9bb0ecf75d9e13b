package repository

import (
	"context"
	"sync"

	"github.com/hostwatch/hostwatch/internal/config"
	internalerrors "github.com/hostwatch/hostwatch/internal/errors"
	models "github.com/hostwatch/hostwatch/internal/model"
)

type memEntry struct {
	typ     string
	gauge   float64
	counter int64
}

// MemStorage implements the Repository interface using in-memory storage.
type MemStorage struct {
	// mu provides thread-safe access to the entries map
	mu      sync.RWMutex
	entries map[string]memEntry
}

// NewMemStorage creates a new in-memory storage instance.
func NewMemStorage() *MemStorage {
	return &MemStorage{
		entries: make(map[string]memEntry),
	}
}

func (ms *MemStorage) set(name string, value any, typ string) error {
	switch typ {
	case config.CounterType:
		val, ok := value.(int64)
		if !ok {
			return internalerrors.ErrInvalidMetricValue
		}
		entry := ms.entries[name]
		entry.typ = typ
		entry.counter += val
		ms.entries[name] = entry
	case config.GaugeType:
		val, ok := value.(float64)
		if !ok {
			return internalerrors.ErrInvalidMetricValue
		}
		ms.entries[name] = memEntry{typ: typ, gauge: val}
	default:
		return internalerrors.ErrUnknownMetricType
	}
	return nil
}

// SetMetric stores a single metric value in memory.
//
// For counters, it adds the value to the existing counter (or creates a new one).
// For gauges, it replaces the existing value (or creates a new one).
func (ms *MemStorage) SetMetric(ctx context.Context, name string, value any, typ string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.set(name, value, typ)
}

// SetMetrics stores multiple metrics in memory under a single lock.
func (ms *MemStorage) SetMetrics(ctx context.Context, metrics []models.Metric) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for _, metric := range metrics {
		if err := ms.set(metric.Name, metric.Value, metric.Type); err != nil {
			return err
		}
	}
	return nil
}

// DeleteMetric removes a metric from memory storage.
func (ms *MemStorage) DeleteMetric(ctx context.Context, name string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.entries, name)
	return nil
}

// ListMetrics returns all metrics stored in memory.
func (ms *MemStorage) ListMetrics(ctx context.Context) ([]models.Metric, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	var result []models.Metric
	for name, entry := range ms.entries {
		var value any
		switch entry.typ {
		case config.GaugeType:
			value = entry.gauge
		case config.CounterType:
			value = entry.counter
		default:
			continue
		}
		result = append(result, models.Metric{Name: name, Type: entry.typ, Value: value})
	}
	return result, nil
}

// GetMetric retrieves a single metric by its DTO.
func (ms *MemStorage) GetMetric(ctx context.Context, metrics models.MetricsDTO) (models.MetricsDTO, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	entry, exists := ms.entries[metrics.ID]
	if !exists {
		return models.MetricsDTO{}, internalerrors.ErrMetricNotFound
	}

	responseMetrics := models.MetricsDTO{
		ID:    metrics.ID,
		MType: entry.typ,
	}
	switch entry.typ {
	case config.GaugeType:
		val := entry.gauge
		responseMetrics.Value = &val
	case config.CounterType:
		val := entry.counter
		responseMetrics.Delta = &val
	default:
		return models.MetricsDTO{}, internalerrors.ErrUnknownMetricType
	}
	return responseMetrics, nil
}

// GetMetricByName retrieves a single metric by its name.
//
// It returns the raw value of the requested metric (float64 for gauges, int64 for counters).
func (ms *MemStorage) GetMetricByName(ctx context.Context, name string) (any, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	entry, exists := ms.entries[name]
	if !exists {
		return nil, internalerrors.ErrMetricNotFound
	}
	switch entry.typ {
	case config.GaugeType:
		return entry.gauge, nil
	case config.CounterType:
		return entry.counter, nil
	default:
		return nil, internalerrors.ErrUnknownMetricType
	}
}

// Close releases any resources held by the memory storage.
func (ms *MemStorage) Close() error {
	return nil
}

// Ping checks the health of the memory storage.
//
// For MemStorage, this always returns nil since there are no external dependencies.
func (ms *MemStorage) Ping(ctx context.Context) error {
	return nil
}
