// Package queue buffers interaction events between the HTTP handlers and the
// workers that record them.
//
// The queue is split into partitions. Events of one user always land in the
// same partition, so each user's interactions are recorded in arrival order.
package queue

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/okian/showcase/internal/domain/model"
	"github.com/okian/showcase/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 10_000
	defaultPartitions    = 1
)

// Event represents the payload type flowing through the queue.
type Event = model.InteractionEvent

// Queue provides non-blocking enqueue and per-partition dequeue.
type Queue interface {
	// Enqueue adds an event to the partition of its user.
	// Returns false if the partition is full or the queue is closed.
	Enqueue(ctx context.Context, e Event) bool

	// Dequeue returns the events of one partition. The channel is closed
	// when the queue is closed and drained, or when ctx is done.
	Dequeue(ctx context.Context, partition int) <-chan Event

	// Partitions returns the number of partitions.
	Partitions() int

	// Len returns the current number of queued events.
	Len(ctx context.Context) int

	// Close stops accepting events. Queued events can still be dequeued.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue with one buffered channel per partition.
type InMemoryQueue struct {
	parts      []chan Event
	capacity   int
	partitions int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:   defaultQueueCapacity,
		partitions: defaultPartitions,
	}
	for _, opt := range opts {
		opt(q)
	}

	per := (q.capacity + q.partitions - 1) / q.partitions
	q.parts = make([]chan Event, q.partitions)
	for i := range q.parts {
		q.parts[i] = make(chan Event, per)
	}

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)
	return q
}

// PartitionFor returns the partition events of userID are routed to.
func (q *InMemoryQueue) PartitionFor(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(q.partitions))
}

// Enqueue adds an event to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Event) bool { //nolint:gocritic // hugeParam: Event must be passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.reject("closed")
		return false
	}

	select {
	case q.parts[q.PartitionFor(e.UserID)] <- e:
		metrics.RecordQueueEnqueue()
		q.updateGauges()
		return true
	case <-ctx.Done():
		q.reject("context_cancelled")
		return false
	default:
		q.reject("queue_full")
		return false
	}
}

func (q *InMemoryQueue) reject(reason string) {
	metrics.RecordQueueRejected(reason)
	metrics.RecordErrorByComponent("queue", reason)
}

// Dequeue returns a channel that receives the events of partition.
func (q *InMemoryQueue) Dequeue(ctx context.Context, partition int) <-chan Event {
	out := make(chan Event)
	if partition < 0 || partition >= len(q.parts) {
		close(out)
		return out
	}
	src := q.parts[partition]
	go func() {
		defer close(out)
		for {
			select {
			case e, ok := <-src:
				if !ok {
					return
				}
				select {
				case out <- e:
					metrics.RecordQueueDequeue()
					q.updateGauges()
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Partitions returns the number of partitions.
func (q *InMemoryQueue) Partitions() int {
	return q.partitions
}

// Len returns the current number of queued events.
func (q *InMemoryQueue) Len(_ context.Context) int {
	n := 0
	for _, p := range q.parts {
		n += len(p)
	}
	return n
}

func (q *InMemoryQueue) updateGauges() {
	size := q.Len(context.Background())
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Close stops accepting events.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	for _, p := range q.parts {
		close(p)
	}
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
