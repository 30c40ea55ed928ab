package api

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/showcase/pkg/logger"
)

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithIngestLimit rate-limits interaction ingestion to perSec events with
// the given burst. perSec <= 0 disables the limit.
func WithIngestLimit(perSec float64, burst int) Option {
	return func(s *Server) {
		if perSec <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

// WithLogger sets the logger used by the handlers.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHeartbeat sets the keep-alive interval of profile streams.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}
