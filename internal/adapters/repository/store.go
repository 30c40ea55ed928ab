package repository

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/okian/showcase/internal/domain/model"
	"github.com/okian/showcase/pkg/logger"
	"github.com/okian/showcase/pkg/metrics"
)

// Default store configuration constants.
const (
	DefaultKey             = "ai_user_profile"
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 30 * time.Second
	lockStripes            = 64
)

// Publisher receives a notification after every save.
type Publisher interface {
	Publish(ctx context.Context, ev model.ProfileChanged)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, model.ProfileChanged) {}

// ProfileStore owns the persisted profiles. Load never fails and Save never
// returns an error: storage problems degrade to defaults and are only logged.
type ProfileStore struct {
	backend   Backend
	key       string
	limits    model.Limits
	publisher Publisher
	logger    logger.Logger
	now       func() time.Time

	breakerFailures uint32
	breakerCooldown time.Duration
	breaker         *gobreaker.CircuitBreaker[struct{}]

	// Per-user mutation locks, striped by user id hash.
	locks [lockStripes]sync.Mutex
}

// NewProfileStore creates a store on top of backend.
func NewProfileStore(backend Backend, opts ...Option) *ProfileStore {
	s := &ProfileStore{
		backend:         backend,
		key:             DefaultKey,
		limits:          model.DefaultLimits(),
		publisher:       nopPublisher{},
		logger:          logger.Nop(),
		now:             time.Now,
		breakerFailures: defaultBreakerFailures,
		breakerCooldown: defaultBreakerCooldown,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "profile-store",
		MaxRequests: 1,
		Timeout:     s.breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.UpdateBreakerState(name, int(to))
			s.logger.Warn(context.Background(), "store breaker state changed",
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	})
	metrics.UpdateBreakerState("profile-store", int(gobreaker.StateClosed))
	return s
}

// Key returns the backend key for userID. The empty user id maps to the
// bare profile key.
func (s *ProfileStore) Key(userID string) string {
	if userID == "" {
		return s.key
	}
	return s.key + ":" + userID
}

// Limits returns the retention caps applied by the store.
func (s *ProfileStore) Limits() model.Limits {
	return s.limits
}

// Load returns the persisted profile of userID or the empty default when it
// is absent, unreadable or not valid JSON.
func (s *ProfileStore) Load(ctx context.Context, userID string) model.Profile {
	metrics.RecordProfileLoad()

	raw, ok, err := s.backend.Get(ctx, s.Key(userID))
	if err != nil {
		metrics.RecordProfileLoadFallback("backend")
		s.logger.Warn(ctx, "profile read failed, using defaults", logger.UserID(userID), logger.Error(err))
		return model.NewProfile()
	}
	if !ok {
		return model.NewProfile()
	}

	var p model.Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		metrics.RecordProfileLoadFallback("parse")
		s.logger.Warn(ctx, "stored profile is corrupt, using defaults", logger.UserID(userID), logger.Error(err))
		return model.NewProfile()
	}
	p.Normalize(s.limits)
	return p
}

// Save writes p for userID and then broadcasts a ProfileChanged carrying p,
// whether or not the write succeeded.
func (s *ProfileStore) Save(ctx context.Context, userID string, reason model.ChangeReason, p model.Profile) {
	p.Normalize(s.limits)
	s.write(ctx, userID, p)
	s.publish(ctx, userID, reason, p)
}

// Update runs load, fn and write for userID under the user's lock, so
// concurrent mutations of one profile never interleave. The change is
// broadcast after the lock is released, so listeners may mutate profiles
// themselves. It returns the saved profile.
func (s *ProfileStore) Update(ctx context.Context, userID string, reason model.ChangeReason, fn func(p *model.Profile)) model.Profile {
	p := s.mutate(ctx, userID, fn)
	s.publish(ctx, userID, reason, p)
	return p.Clone()
}

func (s *ProfileStore) mutate(ctx context.Context, userID string, fn func(p *model.Profile)) model.Profile {
	mu := s.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	p := s.Load(ctx, userID)
	fn(&p)
	p.Normalize(s.limits)
	s.write(ctx, userID, p)
	return p
}

// Reset removes the persisted profile of userID and broadcasts the empty one.
func (s *ProfileStore) Reset(ctx context.Context, userID string) model.Profile {
	s.remove(ctx, userID)
	p := model.NewProfile()
	s.publish(ctx, userID, model.ChangeReset, p)
	return p
}

func (s *ProfileStore) remove(ctx context.Context, userID string) {
	mu := s.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	_, err := s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.backend.Delete(ctx, s.Key(userID))
	})
	if err != nil {
		s.recordWriteError(ctx, userID, "delete", err)
	}
}

// Close closes the backend.
func (s *ProfileStore) Close() error {
	return s.backend.Close()
}

func (s *ProfileStore) write(ctx context.Context, userID string, p model.Profile) {
	start := time.Now()
	defer func() {
		metrics.RecordProfileSaveLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
	}()

	data, err := json.Marshal(p)
	if err != nil {
		s.recordWriteError(ctx, userID, "encode", err)
		return
	}
	_, err = s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.backend.Set(ctx, s.Key(userID), string(data))
	})
	if err != nil {
		reason := "backend"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			reason = "breaker_open"
		}
		s.recordWriteError(ctx, userID, reason, err)
		return
	}
	metrics.RecordProfileSave()
}

func (s *ProfileStore) recordWriteError(ctx context.Context, userID, reason string, err error) {
	metrics.RecordProfileSaveError(reason)
	metrics.RecordErrorByComponent("repository", reason)
	s.logger.Error(ctx, "profile write failed",
		logger.UserID(userID),
		logger.String("reason", reason),
		logger.Error(err),
	)
}

func (s *ProfileStore) publish(ctx context.Context, userID string, reason model.ChangeReason, p model.Profile) {
	s.publisher.Publish(ctx, model.ProfileChanged{
		UserID:  userID,
		Reason:  reason,
		Profile: p.Clone(),
		At:      s.now(),
	})
}

func (s *ProfileStore) lockFor(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &s.locks[h.Sum32()%lockStripes]
}
