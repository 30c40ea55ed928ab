package service

import (
	"time"

	"github.com/okian/showcase/internal/adapters/repository"
	"github.com/okian/showcase/internal/config"
	"github.com/okian/showcase/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBackend injects a profile backend instead of opening the configured one.
// The caller owns it: Stop leaves it open and a later Start reuses it.
func WithBackend(b repository.Backend) Option {
	return func(s *Service) {
		s.injected = b
	}
}

// WithClock sets the time source for profile timestamps and scoring.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
