package repository

import (
	"time"

	"github.com/okian/showcase/internal/domain/model"
	"github.com/okian/showcase/pkg/logger"
)

// Option applies a configuration option to the ProfileStore.
type Option func(*ProfileStore)

// WithKey sets the base key profiles are stored under.
func WithKey(key string) Option {
	return func(s *ProfileStore) {
		if key != "" {
			s.key = key
		}
	}
}

// WithLimits sets the retention caps applied to loaded and saved profiles.
func WithLimits(l model.Limits) Option {
	return func(s *ProfileStore) {
		if l.History > 0 {
			s.limits.History = l.History
		}
		if l.Interactions > 0 {
			s.limits.Interactions = l.Interactions
		}
	}
}

// WithPublisher sets where ProfileChanged notifications go.
func WithPublisher(p Publisher) Option {
	return func(s *ProfileStore) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *ProfileStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBreaker configures the write circuit breaker: it opens after failures
// consecutive write errors and retries after cooldown.
func WithBreaker(failures int, cooldown time.Duration) Option {
	return func(s *ProfileStore) {
		if failures > 0 {
			s.breakerFailures = uint32(failures)
		}
		if cooldown > 0 {
			s.breakerCooldown = cooldown
		}
	}
}

// WithClock sets the time source used for notification timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *ProfileStore) {
		if now != nil {
			s.now = now
		}
	}
}
