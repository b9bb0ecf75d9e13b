// Package hostwatch implements a host monitoring agent and the central
// server it reports to.
//
// The agent periodically samples host metrics (CPU, memory, disk, network,
// process count and its own Go runtime statistics), buffers them in a
// bounded queue and delivers them in batches to the central server over
// HTTP with bounded retry and exponential backoff. Samples are never
// dropped silently: backpressure evictions and retry-exhausted batches are
// counted and logged.
//
// The server supports two types of metrics:
//   - Gauge: represents float64 values, replaced on every update
//   - Counter: represents int64 values, accumulated across updates
//
// The server can store metrics in memory, in PostgreSQL or in Redis. When
// using in-memory storage it supports periodic snapshots to a JSON file.
//
// Features:
//   - REST API for batch and single metric updates and retrieval
//   - Data compression using gzip
//   - Data integrity validation using HMAC SHA256 hashing
//   - Graceful shutdown with a best-effort final flush on the agent side
//   - Structured logging
//   - Prometheus self-telemetry endpoint
//   - Audit logging to file or HTTP endpoint
//
// Both server and agent components support configuration via config files,
// command-line flags and environment variables.
package hostwatch
