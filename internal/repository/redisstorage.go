package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/hostwatch/hostwatch/internal/config"
	internalerrors "github.com/hostwatch/hostwatch/internal/errors"
	models "github.com/hostwatch/hostwatch/internal/model"
)

const (
	redisGaugesKey   = "metrics:gauges"
	redisCountersKey = "metrics:counters"
	redisTypesKey    = "metrics:types"
)

// RedisStorage implements the Repository interface on Redis hashes,
// for deployments that want persistence without PostgreSQL.
type RedisStorage struct {
	client *redis.Client
}

// NewRedisStorage connects a latest-value store to the given Redis instance.
func NewRedisStorage(addr, password string, db int) *RedisStorage {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStorage{client: client}
}

// SetMetric stores a single metric. Counters accumulate via HINCRBY,
// gauges replace via HSET.
func (rs *RedisStorage) SetMetric(ctx context.Context, name string, value any, typ string) error {
	return rs.SetMetrics(ctx, []models.Metric{{Name: name, Type: typ, Value: value}})
}

// SetMetrics stores a batch of metrics in one pipeline round-trip.
func (rs *RedisStorage) SetMetrics(ctx context.Context, metrics []models.Metric) error {
	pipe := rs.client.Pipeline()
	for _, metric := range metrics {
		switch metric.Type {
		case config.CounterType:
			val, ok := metric.Value.(int64)
			if !ok {
				return internalerrors.ErrInvalidMetricValue
			}
			pipe.HIncrBy(ctx, redisCountersKey, metric.Name, val)
		case config.GaugeType:
			val, ok := metric.Value.(float64)
			if !ok {
				return internalerrors.ErrInvalidMetricValue
			}
			pipe.HSet(ctx, redisGaugesKey, metric.Name, val)
		default:
			return internalerrors.ErrUnknownMetricType
		}
		pipe.HSet(ctx, redisTypesKey, metric.Name, metric.Type)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis exec: %w", err)
	}
	return nil
}

func (rs *RedisStorage) metricType(ctx context.Context, name string) (string, error) {
	typ, err := rs.client.HGet(ctx, redisTypesKey, name).Result()
	if err != nil {
		if err == redis.Nil {
			return "", internalerrors.ErrMetricNotFound
		}
		return "", fmt.Errorf("redis get type: %w", err)
	}
	return typ, nil
}

// GetMetric retrieves a single metric by its DTO.
func (rs *RedisStorage) GetMetric(ctx context.Context, metrics models.MetricsDTO) (models.MetricsDTO, error) {
	typ, err := rs.metricType(ctx, metrics.ID)
	if err != nil {
		return models.MetricsDTO{}, err
	}

	responseMetrics := models.MetricsDTO{ID: metrics.ID, MType: typ}
	switch typ {
	case config.GaugeType:
		raw, err := rs.client.HGet(ctx, redisGaugesKey, metrics.ID).Result()
		if err != nil {
			return models.MetricsDTO{}, fmt.Errorf("redis get gauge: %w", err)
		}
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.MetricsDTO{}, internalerrors.ErrInvalidMetricValue
		}
		responseMetrics.Value = &val
	case config.CounterType:
		raw, err := rs.client.HGet(ctx, redisCountersKey, metrics.ID).Result()
		if err != nil {
			return models.MetricsDTO{}, fmt.Errorf("redis get counter: %w", err)
		}
		val, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return models.MetricsDTO{}, internalerrors.ErrInvalidMetricValue
		}
		responseMetrics.Delta = &val
	default:
		return models.MetricsDTO{}, internalerrors.ErrUnknownMetricType
	}
	return responseMetrics, nil
}

// GetMetricByName retrieves the raw value of a single metric.
func (rs *RedisStorage) GetMetricByName(ctx context.Context, name string) (any, error) {
	dto, err := rs.GetMetric(ctx, models.MetricsDTO{ID: name})
	if err != nil {
		return nil, err
	}
	if dto.Value != nil {
		return *dto.Value, nil
	}
	if dto.Delta != nil {
		return *dto.Delta, nil
	}
	return nil, internalerrors.ErrMetricNotFound
}

// DeleteMetric removes a metric from all hashes.
func (rs *RedisStorage) DeleteMetric(ctx context.Context, name string) error {
	pipe := rs.client.Pipeline()
	pipe.HDel(ctx, redisGaugesKey, name)
	pipe.HDel(ctx, redisCountersKey, name)
	pipe.HDel(ctx, redisTypesKey, name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// ListMetrics returns every stored metric.
func (rs *RedisStorage) ListMetrics(ctx context.Context) ([]models.Metric, error) {
	types, err := rs.client.HGetAll(ctx, redisTypesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list: %w", err)
	}
	var result []models.Metric
	for name, typ := range types {
		switch typ {
		case config.GaugeType:
			raw, err := rs.client.HGet(ctx, redisGaugesKey, name).Result()
			if err != nil {
				continue
			}
			val, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				continue
			}
			result = append(result, models.Metric{Name: name, Type: typ, Value: val})
		case config.CounterType:
			raw, err := rs.client.HGet(ctx, redisCountersKey, name).Result()
			if err != nil {
				continue
			}
			val, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				continue
			}
			result = append(result, models.Metric{Name: name, Type: typ, Value: val})
		}
	}
	return result, nil
}

// Ping checks Redis connectivity.
func (rs *RedisStorage) Ping(ctx context.Context) error {
	if err := rs.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", internalerrors.ErrStorageUnavailable, err)
	}
	return nil
}

// Close releases the client connection pool.
func (rs *RedisStorage) Close() error {
	return rs.client.Close()
}
