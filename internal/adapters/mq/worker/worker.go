// Package worker drains queue partitions and records each interaction.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/showcase/internal/adapters/mq/queue"
	"github.com/okian/showcase/internal/domain/model"
	"github.com/okian/showcase/pkg/logger"
	"github.com/okian/showcase/pkg/metrics"
)

// Default worker configuration constants.
const (
	poolShutdownTimeout = 30 * time.Second
)

// Event abstracts what workers read off the queue.
type Event = queue.Event

// Recorder records one interaction on a user's profile at the event time.
type Recorder interface {
	RecordAt(ctx context.Context, userID, itemID string, action model.Action, at time.Time) error
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context, partition int) <-chan Event
	Partitions() int
}

// Worker processes the events of one partition.
type Worker interface {
	// Run processes events until the partition is closed and drained or ctx
	// is canceled.
	Run(ctx context.Context)

	// Shutdown waits for Run to return.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     Queue
	recorder  Recorder
	partition int
	name      string
	processed *atomic.Int64

	done chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker for one partition of queue.
func NewInMemoryWorker(q Queue, recorder Recorder, partition int, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		recorder:  recorder,
		partition: partition,
		name:      "worker",
		processed: &atomic.Int64{},
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	for event := range w.queue.Dequeue(ctx, w.partition) {
		if err := w.processEvent(ctx, event); err != nil {
			w.logger.Error(ctx, "error processing event", logger.Error(err))
		}
	}
}

// Shutdown waits for the worker to drain its partition.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Processed returns how many events the worker handled.
func (w *InMemoryWorker) Processed() int64 {
	return w.processed.Load()
}

func (w *InMemoryWorker) processEvent(ctx context.Context, event Event) error { //nolint:gocritic // hugeParam: Event must be passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
		w.processed.Add(1)
	}()

	if err := w.recorder.RecordAt(ctx, event.UserID, event.ItemID, event.Action, event.TS); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "record_rejected")
		return fmt.Errorf("record event %s: %w", event.EventID, err)
	}
	return nil
}

// Pool runs one worker per queue partition.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a worker for every partition of q.
func NewPool(q Queue, recorder Recorder, opts ...Option) *Pool {
	n := q.Partitions()
	pool := &Pool{
		workers: make([]*InMemoryWorker, n),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < n; i++ {
		workerOpts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		pool.workers[i] = NewInMemoryWorker(q, recorder, i, workerOpts...)
	}

	metrics.UpdateWorkerCount(n)
	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Processed returns how many events the pool handled.
func (p *Pool) Processed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Processed()
	}
	return n
}

// Shutdown closes the queue and waits for the workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			timedOut++
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerCount(0)
	if timedOut > 0 {
		return fmt.Errorf("%d workers did not stop: %w", timedOut, ErrShutdownTimeout)
	}
	return nil
}
