// Package models defines the data structures shared by the agent and the server.
package models

const (
	Counter = "counter"
	Gauge   = "gauge"
)

// MetricSample is a single observation taken on a host.
//
// A sample is immutable once created: collectors build new samples every
// tick and never mutate ones already handed to the queue.
type MetricSample struct {
	// Timestamp is the collection time in unix seconds
	Timestamp int64

	// Host is the identifier of the machine the sample was taken on
	Host string

	// Name is the unique identifier for the metric
	Name string

	// Type is the type of the metric (either "counter" or "gauge")
	Type string

	// Value is the observed value (counter deltas are carried as whole floats)
	Value float64

	// Unit is the unit of measurement ("percent", "bytes", ...), may be empty
	Unit string
}

// Batch is a bounded group of samples transmitted together.
//
// The queue produces batches; the transmitter consumes each exactly once.
type Batch struct {
	Samples []MetricSample
}

// Len returns the number of samples in the batch.
func (b Batch) Len() int {
	return len(b.Samples)
}

// MetricsDTO represents a metric data transfer object for API requests and responses.
type MetricsDTO struct {
	// ID is the unique identifier for the metric
	ID string `json:"id"`

	// MType is the type of the metric (either "counter" or "gauge")
	MType string `json:"type"`

	// Delta is the increment value for counter metrics (omitted for gauge metrics)
	Delta *int64 `json:"delta,omitempty"`

	// Value is the value for gauge metrics (omitted for counter metrics)
	Value *float64 `json:"value,omitempty"`

	// Host is the identifier of the reporting machine
	Host string `json:"host,omitempty"`

	// TS is the collection timestamp in unix seconds
	TS int64 `json:"ts,omitempty"`

	// Unit is the unit of measurement, may be empty
	Unit string `json:"unit,omitempty"`
}

// Metric represents a single stored metric with its name, type, and value.
type Metric struct {
	// Name is the unique identifier for the metric
	Name string

	// Type is the type of the metric (either "counter" or "gauge")
	Type string

	// Value is the metric value (int64 for counters, float64 for gauges)
	Value any
}

// ToDTO converts a sample to its wire representation.
func (s MetricSample) ToDTO() MetricsDTO {
	dto := MetricsDTO{
		ID:    s.Name,
		MType: s.Type,
		Host:  s.Host,
		TS:    s.Timestamp,
		Unit:  s.Unit,
	}
	switch s.Type {
	case Counter:
		delta := int64(s.Value)
		dto.Delta = &delta
	default:
		value := s.Value
		dto.Value = &value
	}
	return dto
}

// AuditEvent represents an audit log entry for ingestion operations.
type AuditEvent struct {
	// TS is the timestamp of the event in ISO 8601 format
	TS string `json:"ts"`

	// Host is the reporting host named in the ingested batch
	Host string `json:"host,omitempty"`

	// Metrics is a list of metric names affected by the operation
	Metrics []string `json:"metrics"`

	// IPAddress is the IP address of the client that initiated the operation
	IPAddress string `json:"ip_address"`
}
