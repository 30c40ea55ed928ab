// Package notify delivers ProfileChanged notifications to in-process
// listeners and, through a watermill bridge, to asynchronous consumers.
package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/showcase/internal/domain/model"
	"github.com/okian/showcase/pkg/logger"
	"github.com/okian/showcase/pkg/metrics"
)

// Listener receives profile change notifications.
type Listener func(ctx context.Context, ev model.ProfileChanged)

type entry struct {
	id uint64
	fn Listener
}

// Broadcaster is a synchronous observer. Listeners registered at publish
// time run in registration order on the publishing goroutine.
type Broadcaster struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners []entry
	logger    logger.Logger
}

// Option applies a configuration option to the Broadcaster.
type Option func(*Broadcaster)

// WithLogger sets the broadcaster logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Broadcaster) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBroadcaster creates a broadcaster with no listeners.
func NewBroadcaster(opts ...Option) *Broadcaster {
	b := &Broadcaster{logger: logger.Nop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	b    *Broadcaster
	id   uint64
	once sync.Once
}

// Unsubscribe removes the listener. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() { s.b.remove(s.id) })
}

// Subscribe registers fn. A nil fn is ignored.
func (b *Broadcaster) Subscribe(fn Listener) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscription{b: b, id: b.nextID}
	if fn != nil {
		b.listeners = append(b.listeners, entry{id: sub.id, fn: fn})
	}
	metrics.UpdateListenerCount(len(b.listeners))
	return sub
}

func (b *Broadcaster) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.listeners {
		if e.id == id {
			b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
			break
		}
	}
	metrics.UpdateListenerCount(len(b.listeners))
}

// Len returns the number of registered listeners.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Publish invokes every listener with ev. With no listeners it is a no-op.
// A panicking listener is logged and skipped.
func (b *Broadcaster) Publish(ctx context.Context, ev model.ProfileChanged) {
	b.mu.RLock()
	snapshot := make([]entry, len(b.listeners))
	copy(snapshot, b.listeners)
	b.mu.RUnlock()

	metrics.RecordBroadcast(string(ev.Reason))
	for _, e := range snapshot {
		b.call(ctx, e, ev)
	}
}

func (b *Broadcaster) call(ctx context.Context, e entry, ev model.ProfileChanged) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordListenerPanic()
			b.logger.Error(ctx, "profile listener panicked",
				logger.UserID(ev.UserID),
				logger.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	e.fn(ctx, ev)
}
