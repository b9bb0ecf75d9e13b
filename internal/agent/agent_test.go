package agent

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	internalerrors "github.com/hostwatch/hostwatch/internal/errors"
	models "github.com/hostwatch/hostwatch/internal/model"
)

type stubCollector struct {
	name    string
	samples int
	err     error
	calls   int
}

func (c *stubCollector) Name() string { return c.name }

func (c *stubCollector) Collect(ctx context.Context) ([]models.MetricSample, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	out := make([]models.MetricSample, 0, c.samples)
	for i := 0; i < c.samples; i++ {
		out = append(out, models.MetricSample{
			Timestamp: time.Now().Unix(),
			Host:      "test-host",
			Name:      fmt.Sprintf("%s.%d.%d", c.name, c.calls, i),
			Type:      models.Gauge,
			Value:     float64(i),
		})
	}
	return out, nil
}

type stubSender struct {
	mu       sync.Mutex
	batches  []models.Batch
	err      error
	counters *Counters
}

func (s *stubSender) Send(ctx context.Context, batch models.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		s.counters.DroppedRetryExhausted.Add(int64(batch.Len()))
		return s.err
	}
	s.batches = append(s.batches, batch)
	s.counters.Sent.Add(int64(batch.Len()))
	return nil
}

func (s *stubSender) sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += b.Len()
	}
	return n
}

func countReceivedSamples(r *http.Request) (int, error) {
	gzipReader, err := gzip.NewReader(r.Body)
	if err != nil {
		return 0, err
	}
	defer gzipReader.Close()
	body, err := io.ReadAll(gzipReader)
	if err != nil {
		return 0, err
	}
	var dtos []models.MetricsDTO
	if err := json.Unmarshal(body, &dtos); err != nil {
		return 0, err
	}
	return len(dtos), nil
}

func testAgentConfig() *AgentConfig {
	return &AgentConfig{
		ServerURL:      "http://localhost:8080",
		ServerName:     "test-host",
		PollInterval:   1,
		ReportInterval: 1,
		BatchSize:      10,
		QueueCapacity:  100,
		RetryAttempts:  0,
		RetryBackoff:   1,
		RateLimit:      2,
	}
}

func newTestAgent(t *testing.T, collectors []Collector, sender *stubSender) *Agent {
	t.Helper()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	counters := sender.counters
	queue := NewQueue(100, 10, counters)
	return NewAgent(testAgentConfig(), collectors, queue, sender, logger.Sugar(), counters)
}

func TestAgent_StateTransitions(t *testing.T) {
	counters := &Counters{}
	sender := &stubSender{counters: counters}
	a := newTestAgent(t, []Collector{&stubCollector{name: "stub", samples: 3}}, sender)

	assert.Equal(t, StateStarting, a.State())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// The first tick runs immediately and moves the agent to Running
	assert.Eventually(t, func() bool {
		return a.State() == StateRunning
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, StateStopped, a.State())
}

func TestAgent_RunAfterStopFails(t *testing.T) {
	counters := &Counters{}
	sender := &stubSender{counters: counters}
	a := newTestAgent(t, []Collector{&stubCollector{name: "stub", samples: 1}}, sender)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	assert.Eventually(t, func() bool { return a.State() == StateRunning }, time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	err := a.Run(context.Background())
	assert.True(t, errors.Is(err, internalerrors.ErrAgentStopped))
}

func TestAgent_DrainDeliversRemainingSamples(t *testing.T) {
	counters := &Counters{}
	sender := &stubSender{counters: counters}
	collector := &stubCollector{name: "stub", samples: 5}
	a := newTestAgent(t, []Collector{collector}, sender)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	assert.Eventually(t, func() bool { return a.State() == StateRunning }, time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	// Every enqueued sample reached the sender via the final flush even
	// though no report tick ever fired.
	assert.Equal(t, collector.calls*5, sender.sent())
	snapshot := counters.Snapshot()
	assert.Equal(t, snapshot.Enqueued-snapshot.DroppedQueueFull,
		snapshot.Sent+snapshot.DroppedRetryExhausted)
}

func TestAgent_CollectorFailureIsIsolated(t *testing.T) {
	counters := &Counters{}
	sender := &stubSender{counters: counters}
	failing := &stubCollector{name: "broken", err: fmt.Errorf("%w: no such resource", internalerrors.ErrCollectionFailed)}
	healthy := &stubCollector{name: "ok", samples: 2}
	a := newTestAgent(t, []Collector{failing, healthy}, sender)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	assert.Eventually(t, func() bool { return a.State() == StateRunning }, time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	// The broken collector was counted but did not stop the healthy one
	assert.GreaterOrEqual(t, counters.CollectionErrors.Load(), int64(1))
	assert.Equal(t, healthy.calls*2, sender.sent())
}

func TestAgent_CancelledDispatchKeepsAccounting(t *testing.T) {
	counters := &Counters{}
	sender := &stubSender{counters: counters}
	a := newTestAgent(t, nil, sender)

	samples := sampleBatch("m", 5)
	a.counters.Collected.Add(int64(len(samples)))
	a.queue.Enqueue(samples)

	batch, ok := a.queue.NextBatch()
	require.True(t, ok)

	// Cancelled context and no worker draining the jobs channel: the batch
	// must go back into the queue without inflating the enqueued counter
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	jobs := make(chan models.Batch)
	assert.False(t, a.dispatch(ctx, jobs, batch))

	a.drain()

	snapshot := counters.Snapshot()
	assert.Equal(t, int64(5), snapshot.Enqueued)
	assert.Equal(t, 5, sender.sent())
	assert.Equal(t, snapshot.Enqueued-snapshot.DroppedQueueFull,
		snapshot.Sent+snapshot.DroppedRetryExhausted)
}

func TestAgent_ConservationEndToEnd(t *testing.T) {
	var mu sync.Mutex
	received := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, err := countReceivedSamples(r)
		require.NoError(t, err)
		mu.Lock()
		received += n
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	sugar := logger.Sugar()

	config := testAgentConfig()
	config.ServerURL = server.URL
	counters := &Counters{}
	queue := NewQueue(config.QueueCapacity, config.BatchSize, counters)
	transmitter := NewTransmitter(config, sugar, counters)
	a := NewAgent(config, []Collector{&stubCollector{name: "stub", samples: 4}}, queue, transmitter, sugar, counters)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// Let a couple of poll ticks and a report tick happen
	time.Sleep(2200 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	snapshot := counters.Snapshot()
	assert.Equal(t, snapshot.Collected, snapshot.Enqueued)
	assert.Equal(t, snapshot.Enqueued-snapshot.DroppedQueueFull,
		snapshot.Sent+snapshot.DroppedRetryExhausted)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int(snapshot.Sent), received)
}
