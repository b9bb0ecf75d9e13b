package agent

import (
	"sync"

	models "github.com/hostwatch/hostwatch/internal/model"
)

// Queue is a bounded buffer of samples between collection and transmission.
//
// Single-writer (the collection tick) and single-reader (the transmit
// workers) both go through the mutex, so the buffer never exceeds capacity
// and samples leave in arrival order. When the transmitter cannot keep up,
// the oldest samples are evicted and counted rather than blocking collection.
type Queue struct {
	mu        sync.Mutex
	buf       []models.MetricSample
	capacity  int
	batchSize int
	counters  *Counters
}

// NewQueue creates a queue with the given bounds. Capacity must be at least
// batchSize; config validation guarantees that.
func NewQueue(capacity, batchSize int, counters *Counters) *Queue {
	return &Queue{
		buf:       make([]models.MetricSample, 0, capacity),
		capacity:  capacity,
		batchSize: batchSize,
		counters:  counters,
	}
}

// Enqueue appends samples, evicting the oldest ones when capacity would be
// exceeded. Eviction is backpressure policy, not an error.
func (q *Queue) Enqueue(samples []models.MetricSample) {
	if len(samples) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	q.counters.Enqueued.Add(int64(len(samples)))

	// Samples newer than the whole capacity can never fit; only the tail survives.
	if len(samples) > q.capacity {
		q.counters.DroppedQueueFull.Add(int64(len(samples) - q.capacity))
		samples = samples[len(samples)-q.capacity:]
	}

	overflow := len(q.buf) + len(samples) - q.capacity
	if overflow > 0 {
		q.counters.DroppedQueueFull.Add(int64(overflow))
		q.buf = q.buf[:copy(q.buf, q.buf[overflow:])]
	}
	q.buf = append(q.buf, samples...)
}

// requeue puts samples taken out by NextBatch back into the buffer without
// counting them as enqueued again. Evictions on overflow are still counted,
// so every sample stays accounted for exactly once.
func (q *Queue) requeue(samples []models.MetricSample) {
	if len(samples) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(samples) > q.capacity {
		q.counters.DroppedQueueFull.Add(int64(len(samples) - q.capacity))
		samples = samples[len(samples)-q.capacity:]
	}
	overflow := len(q.buf) + len(samples) - q.capacity
	if overflow > 0 {
		q.counters.DroppedQueueFull.Add(int64(overflow))
		q.buf = q.buf[:copy(q.buf, q.buf[overflow:])]
	}
	q.buf = append(q.buf, samples...)
}

// NextBatch removes and returns up to batchSize samples. The boolean is
// false when the queue is empty.
func (q *Queue) NextBatch() (models.Batch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.buf) == 0 {
		return models.Batch{}, false
	}
	n := q.batchSize
	if n > len(q.buf) {
		n = len(q.buf)
	}
	batch := models.Batch{Samples: make([]models.MetricSample, n)}
	copy(batch.Samples, q.buf[:n])
	q.buf = q.buf[:copy(q.buf, q.buf[n:])]
	return batch, true
}

// DrainAll removes and returns every buffered sample for the final flush.
func (q *Queue) DrainAll() (models.Batch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.buf) == 0 {
		return models.Batch{}, false
	}
	batch := models.Batch{Samples: make([]models.MetricSample, len(q.buf))}
	copy(batch.Samples, q.buf)
	q.buf = q.buf[:0]
	return batch, true
}

// Len returns the number of buffered samples.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Full reports whether at least one batch worth of samples is buffered.
func (q *Queue) Full() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf) >= q.batchSize
}
