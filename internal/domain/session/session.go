// Package session marks application loads on the persisted profile.
package session

import (
	"context"
	"time"

	"github.com/okian/showcase/internal/domain/model"
	"github.com/okian/showcase/pkg/logger"
	"github.com/okian/showcase/pkg/metrics"
)

// Store serializes read-modify-write cycles on one profile.
type Store interface {
	Update(ctx context.Context, userID string, reason model.ChangeReason, fn func(p *model.Profile)) model.Profile
}

// Option applies a configuration option to the Tracker.
type Option func(*Tracker)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithLogger sets the tracker logger.
func WithLogger(l logger.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// Tracker counts sessions.
type Tracker struct {
	store  Store
	now    func() time.Time
	logger logger.Logger
}

// New creates a Tracker writing through store.
func New(store Store, opts ...Option) *Tracker {
	t := &Tracker{store: store, now: time.Now, logger: logger.Nop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start increments the session count of userID, stamps the visit time and
// persists the profile. It must be called once per app load; repeated calls
// are counted again.
func (t *Tracker) Start(ctx context.Context, userID string) model.Profile {
	now := t.now()
	p := t.store.Update(ctx, userID, model.ChangeSession, func(p *model.Profile) {
		p.SessionCount++
		p.Touch(now)
	})
	metrics.RecordSessionStarted()
	t.logger.Debug(ctx, "session started", logger.UserID(userID), logger.Int("session_count", p.SessionCount))
	return p
}
