package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	internalerrors "github.com/hostwatch/hostwatch/internal/errors"
	models "github.com/hostwatch/hostwatch/internal/model"
)

// Sender delivers one batch to the central server.
type Sender interface {
	Send(ctx context.Context, batch models.Batch) error
}

// Agent wires collectors, the queue and the transmitter into the
// collection/transmission loop.
type Agent struct {
	config     *AgentConfig
	collectors []Collector
	queue      *Queue
	sender     Sender
	logger     *zap.SugaredLogger
	counters   *Counters

	state atomic.Int32
}

// NewAgent builds an agent from pre-constructed parts.
func NewAgent(
	config *AgentConfig,
	collectors []Collector,
	queue *Queue,
	sender Sender,
	logger *zap.SugaredLogger,
	counters *Counters,
) *Agent {
	a := &Agent{
		config:     config,
		collectors: collectors,
		queue:      queue,
		sender:     sender,
		logger:     logger,
		counters:   counters,
	}
	a.state.Store(int32(StateStarting))
	return a
}

// State returns the current lifecycle state.
func (a *Agent) State() State {
	return State(a.state.Load())
}

// Counters exposes the pipeline counters for logging and tests.
func (a *Agent) Counters() *Counters {
	return a.counters
}

func (a *Agent) setState(s State) {
	a.state.Store(int32(s))
	a.logger.Infof("agent state: %s", s)
}

// Run drives the agent until ctx is cancelled, then drains and returns.
//
// One ticker drives collection, another drives queue flushes; transmit
// workers consume batches from a jobs channel so transmission overlaps the
// next tick. All shared access goes through the queue.
func (a *Agent) Run(ctx context.Context) error {
	if a.State() == StateStopped {
		return internalerrors.ErrAgentStopped
	}

	jobs := make(chan models.Batch, a.config.RateLimit*2)
	var workers sync.WaitGroup
	for w := 1; w <= a.config.RateLimit; w++ {
		workers.Add(1)
		go a.worker(ctx, jobs, &workers)
	}

	pollTicker := time.NewTicker(time.Duration(a.config.PollInterval) * time.Second)
	defer pollTicker.Stop()
	reportTicker := time.NewTicker(time.Duration(a.config.ReportInterval) * time.Second)
	defer reportTicker.Stop()

	// First tick runs immediately so the agent leaves Starting promptly.
	a.tick(ctx)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-pollTicker.C:
			a.tick(ctx)
			// Size-triggered flush: do not wait for the report tick once a
			// full batch is buffered.
			for a.queue.Full() {
				batch, ok := a.queue.NextBatch()
				if !ok {
					break
				}
				if !a.dispatch(ctx, jobs, batch) {
					break loop
				}
			}
		case <-reportTicker.C:
			batch, ok := a.queue.NextBatch()
			if !ok {
				continue
			}
			if !a.dispatch(ctx, jobs, batch) {
				break loop
			}
		}
	}

	a.setState(StateDraining)
	close(jobs)
	workers.Wait()
	a.drain()
	a.setState(StateStopped)

	snapshot := a.counters.Snapshot()
	a.logger.Infow("agent stopped",
		"collected", snapshot.Collected,
		"enqueued", snapshot.Enqueued,
		"sent", snapshot.Sent,
		"dropped_queue_full", snapshot.DroppedQueueFull,
		"dropped_retry_exhausted", snapshot.DroppedRetryExhausted,
	)
	return nil
}

// tick runs every collector once. A failing collector is logged and skipped;
// the tick itself never fails.
func (a *Agent) tick(ctx context.Context) {
	var collected []models.MetricSample
	for _, collector := range a.collectors {
		samples, err := collector.Collect(ctx)
		if err != nil {
			a.counters.CollectionErrors.Add(1)
			if errors.Is(err, internalerrors.ErrCollectionFailed) {
				a.logger.Infof("collector %s: %v", collector.Name(), err)
			} else {
				a.logger.Errorf("collector %s: %v", collector.Name(), err)
			}
			continue
		}
		collected = append(collected, samples...)
	}
	a.counters.Collected.Add(int64(len(collected)))
	a.queue.Enqueue(collected)

	if a.State() == StateStarting {
		a.setState(StateRunning)
	}
}

// dispatch hands a batch to the workers. Returns false when the context is
// done, signalling the loop to start draining; the batch goes back into the
// queue so the final flush still covers it. The samples were already counted
// on their first Enqueue, so they are requeued without recounting.
func (a *Agent) dispatch(ctx context.Context, jobs chan<- models.Batch, batch models.Batch) bool {
	select {
	case jobs <- batch:
		return true
	case <-ctx.Done():
		a.queue.requeue(batch.Samples)
		return false
	}
}

func (a *Agent) worker(ctx context.Context, jobs <-chan models.Batch, wg *sync.WaitGroup) {
	defer wg.Done()
	for batch := range jobs {
		if err := a.sender.Send(ctx, batch); err != nil {
			a.logger.Errorf("error sending batch: %v", err)
		}
	}
}

// drain performs the best-effort final flush: one send attempt for whatever
// is left in the queue, with a short deadline detached from the cancelled
// run context.
func (a *Agent) drain() {
	batch, ok := a.queue.DrainAll()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.sender.Send(ctx, batch); err != nil {
		a.logger.Errorf("final flush failed: %v", err)
		return
	}
	a.logger.Infof("final flush delivered %d samples", batch.Len())
}
