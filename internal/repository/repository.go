// Package repository provides the storage backends of the central server.
package repository

import (
	"context"

	models "github.com/hostwatch/hostwatch/internal/model"
)

// Repository is the storage contract shared by the in-memory, PostgreSQL
// and Redis backends. Gauges replace the stored value, counters accumulate.
type Repository interface {
	SetMetric(ctx context.Context, name string, value any, typ string) error
	SetMetrics(ctx context.Context, metrics []models.Metric) error
	GetMetric(ctx context.Context, metrics models.MetricsDTO) (models.MetricsDTO, error)
	GetMetricByName(ctx context.Context, name string) (any, error)
	DeleteMetric(ctx context.Context, name string) error
	ListMetrics(ctx context.Context) ([]models.Metric, error)
	Ping(ctx context.Context) error
	Close() error
}
