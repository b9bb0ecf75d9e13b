package agent

import "sync/atomic"

// Counters tracks the fate of every sample that enters the pipeline.
//
// Conservation law: Enqueued - DroppedQueueFull = Sent + DroppedRetryExhausted
// once the pipeline is fully drained. The struct is passed through the agent
// loop explicitly; there is no package-level state.
type Counters struct {
	Collected             atomic.Int64
	Enqueued              atomic.Int64
	DroppedQueueFull      atomic.Int64
	Sent                  atomic.Int64
	DroppedRetryExhausted atomic.Int64
	CollectionErrors      atomic.Int64
	TransmissionErrors    atomic.Int64
}

// CountersSnapshot is a point-in-time copy of Counters.
type CountersSnapshot struct {
	Collected             int64
	Enqueued              int64
	DroppedQueueFull      int64
	Sent                  int64
	DroppedRetryExhausted int64
	CollectionErrors      int64
	TransmissionErrors    int64
}

// Snapshot returns a consistent-enough copy for logging and tests.
func (c *Counters) Snapshot() CountersSnapshot {
	return CountersSnapshot{
		Collected:             c.Collected.Load(),
		Enqueued:              c.Enqueued.Load(),
		DroppedQueueFull:      c.DroppedQueueFull.Load(),
		Sent:                  c.Sent.Load(),
		DroppedRetryExhausted: c.DroppedRetryExhausted.Load(),
		CollectionErrors:      c.CollectionErrors.Load(),
		TransmissionErrors:    c.TransmissionErrors.Load(),
	}
}
