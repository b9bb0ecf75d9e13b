package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/hostwatch/hostwatch/internal/config"
	internalerrors "github.com/hostwatch/hostwatch/internal/errors"
	models "github.com/hostwatch/hostwatch/internal/model"
)

// DBStorage implements the Repository interface on PostgreSQL.
type DBStorage struct {
	db *sql.DB
}

// NewDBStorage opens a connection pool for the given DSN.
func NewDBStorage(dsn string) (*DBStorage, error) {
	dbConnect, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerrors.ErrDatabaseConnection, err)
	}
	return &DBStorage{db: dbConnect}, nil
}

func (storage *DBStorage) Close() error {
	return storage.db.Close()
}

// isRetryablePgError reports whether the error is a transient PostgreSQL
// failure worth retrying.
func isRetryablePgError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgerrcode.IsConnectionException(pgErr.Code)
	}
	return false
}

var retryDelays = []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

// withRetry runs fn, retrying transient connection failures with the fixed
// delay schedule.
func withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= len(retryDelays); attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryDelays[attempt-1]):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		lastErr = fn()
		if lastErr == nil || !isRetryablePgError(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// SetMetrics stores a batch of metrics in one transaction.
//
// Counters accumulate into the stored value, gauges replace it.
func (storage *DBStorage) SetMetrics(ctx context.Context, metrics []models.Metric) error {
	return withRetry(ctx, func() error {
		tx, err := storage.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", internalerrors.ErrTransactionFailed, err)
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO metrics (name, type, value, created_at, updated_at)
			VALUES ($1, $2, $3, NOW(), NOW())
			ON CONFLICT (name) DO UPDATE SET
				value = CASE WHEN $2 = 'counter' THEN metrics.value + $3 ELSE $3 END,
				type = $2,
				updated_at = NOW()`)
		if err != nil {
			return fmt.Errorf("error preparing upsert: %w", err)
		}
		defer stmt.Close()

		for _, metric := range metrics {
			if _, err := stmt.ExecContext(ctx, metric.Name, metric.Type, metric.Value); err != nil {
				return fmt.Errorf("error saving metric %s: %w", metric.Name, err)
			}
		}
		return tx.Commit()
	})
}

// SetMetric stores a single metric.
func (storage *DBStorage) SetMetric(ctx context.Context, name string, value any, typ string) error {
	return storage.SetMetrics(ctx, []models.Metric{{Name: name, Type: typ, Value: value}})
}

// GetMetric retrieves a single metric by its DTO.
func (storage *DBStorage) GetMetric(ctx context.Context, metrics models.MetricsDTO) (models.MetricsDTO, error) {
	var metricType string
	var value float64

	query := "SELECT type, value FROM metrics WHERE name = $1"
	err := storage.db.QueryRowContext(ctx, query, metrics.ID).Scan(&metricType, &value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.MetricsDTO{}, internalerrors.ErrMetricNotFound
		}
		return models.MetricsDTO{}, fmt.Errorf("error retrieving metric: %w", err)
	}

	responseMetrics := models.MetricsDTO{
		ID:    metrics.ID,
		MType: metricType,
	}

	switch metricType {
	case config.GaugeType:
		responseMetrics.Value = &value
	case config.CounterType:
		intValue := int64(value)
		responseMetrics.Delta = &intValue
	default:
		return models.MetricsDTO{}, internalerrors.ErrUnknownMetricType
	}
	return responseMetrics, nil
}

// GetMetricByName retrieves a single metric by name.
func (storage *DBStorage) GetMetricByName(ctx context.Context, name string) (any, error) {
	var metricType string
	var value float64

	query := "SELECT type, value FROM metrics WHERE name = $1"
	err := storage.db.QueryRowContext(ctx, query, name).Scan(&metricType, &value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, internalerrors.ErrMetricNotFound
		}
		return nil, fmt.Errorf("error retrieving metric: %w", err)
	}
	switch metricType {
	case config.GaugeType:
		return value, nil
	case config.CounterType:
		return int64(value), nil
	default:
		return nil, internalerrors.ErrUnknownMetricType
	}
}

// DeleteMetric removes a metric row.
func (storage *DBStorage) DeleteMetric(ctx context.Context, name string) error {
	query := "DELETE FROM metrics WHERE name = $1"
	_, err := storage.db.ExecContext(ctx, query, name)
	if err != nil {
		return fmt.Errorf("error deleting metric: %w", err)
	}
	return nil
}

// ListMetrics returns every stored metric.
func (storage *DBStorage) ListMetrics(ctx context.Context) ([]models.Metric, error) {
	var formattedMetrics []models.Metric
	query := "SELECT name, type, value FROM metrics"
	rows, err := storage.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error retrieving metrics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, metricType string
		var value float64

		if err := rows.Scan(&name, &metricType, &value); err != nil {
			return nil, fmt.Errorf("error scanning metric: %w", err)
		}

		var metricValue any
		if metricType == config.CounterType {
			metricValue = int64(value)
		} else {
			metricValue = value
		}
		formattedMetrics = append(formattedMetrics, models.Metric{
			Name:  name,
			Type:  metricType,
			Value: metricValue,
		})
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over metrics: %w", err)
	}

	return formattedMetrics, nil
}

// Ping checks database connectivity.
func (storage *DBStorage) Ping(ctx context.Context) error {
	err := storage.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", internalerrors.ErrDatabaseConnection, err)
	}
	return nil
}
