// Package service wires the personalization components behind the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	eventqueue "github.com/okian/showcase/internal/adapters/mq/queue"
	workerpool "github.com/okian/showcase/internal/adapters/mq/worker"
	"github.com/okian/showcase/internal/adapters/notify"
	"github.com/okian/showcase/internal/adapters/repository"
	"github.com/okian/showcase/internal/config"
	"github.com/okian/showcase/internal/domain/catalog"
	"github.com/okian/showcase/internal/domain/dedupe"
	"github.com/okian/showcase/internal/domain/model"
	"github.com/okian/showcase/internal/domain/recorder"
	"github.com/okian/showcase/internal/domain/scoring"
	"github.com/okian/showcase/internal/domain/session"
	"github.com/okian/showcase/pkg/logger"
	"github.com/okian/showcase/pkg/metrics"
)

const (
	badgerDirName  = "profiles"
	sqliteFileName = "profiles.db"
)

// Service owns the profile store and everything that reads or mutates it.
type Service struct {
	mu sync.RWMutex

	cfg    *config.Config
	logger logger.Logger
	now    func() time.Time

	// Core components
	injected    repository.Backend
	backend     repository.Backend
	store       *repository.ProfileStore
	broadcaster *notify.Broadcaster
	bridge      *notify.Bridge
	bridgeSub   *notify.Subscription
	catalog     *catalog.Catalog
	recorder    *recorder.Recorder
	sessions    *session.Tracker
	engine      *scoring.Engine
	deduper     dedupe.Deduper
	eventQueue  *eventqueue.InMemoryQueue
	workerPool  *workerpool.Pool

	started bool
}

// New constructs a Service. Components are built by Start.
func New(opts ...Option) *Service {
	s := &Service{
		cfg: config.New(context.Background()),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store and starts the ingestion workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting personalization service...")

	items, err := catalog.Load(ctx, s.cfg.CatalogFile)
	if err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	s.backend = s.injected
	if s.backend == nil {
		b, err := openBackend(s.cfg)
		if err != nil {
			return fmt.Errorf("start service: %w", err)
		}
		s.backend = b
	}
	limits := model.Limits{History: s.cfg.HistoryLimit, Interactions: s.cfg.InteractionLimit}

	s.catalog = items
	s.broadcaster = notify.NewBroadcaster(notify.WithLogger(s.logger.Named("broadcast")))
	s.bridge = notify.NewBridge(s.logger.Named("bridge"))
	s.bridgeSub = s.bridge.Attach(s.broadcaster)
	s.store = repository.NewProfileStore(s.backend,
		repository.WithKey(s.cfg.ProfileKey),
		repository.WithLimits(limits),
		repository.WithPublisher(s.broadcaster),
		repository.WithLogger(s.logger.Named("store")),
		repository.WithBreaker(s.cfg.BreakerFailures, s.cfg.BreakerCooldown()),
		repository.WithClock(s.now),
	)
	s.recorder = recorder.New(s.store,
		recorder.WithResolver(items),
		recorder.WithLimits(limits),
		recorder.WithClock(s.now),
		recorder.WithLogger(s.logger.Named("recorder")),
	)
	s.sessions = session.New(s.store,
		session.WithClock(s.now),
		session.WithLogger(s.logger.Named("session")),
	)
	s.engine = scoring.NewEngine(
		scoring.WithPopularItems(s.cfg.PopularItems),
		scoring.WithNewUserSessions(s.cfg.NewUserSessions),
		scoring.WithReturningAfter(s.cfg.ReturningAfter()),
		scoring.WithClock(s.now),
	)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.DedupeSize))
	s.eventQueue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.cfg.QueueSize),
		eventqueue.WithPartitions(s.cfg.WorkerCount),
	)
	s.workerPool = workerpool.NewPool(s.eventQueue, s.recorder,
		workerpool.WithLogger(s.logger.Named("worker")),
	)
	s.workerPool.Start(context.WithoutCancel(ctx))

	s.started = true
	metrics.UpdateWorkerCount(s.workerPool.Size())
	s.logger.Info(ctx, "personalization service started",
		logger.String("backend", s.cfg.StoreBackend),
		logger.Int("catalogItems", items.Len()),
		logger.Int("workers", s.workerPool.Size()),
		logger.Int("queueSize", s.cfg.QueueSize),
		logger.Int("dedupeSize", s.cfg.DedupeSize),
	)
	return nil
}

// Stop drains the queue, then closes the bridge and the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping personalization service...")

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	keep(s.workerPool.Shutdown(ctx))
	s.bridgeSub.Unsubscribe()
	keep(s.bridge.Close())
	if s.injected == nil {
		keep(s.store.Close())
	}

	s.started = false
	s.backend = nil
	s.logger.Info(ctx, "personalization service stopped")
	return firstErr
}

// openBackend opens the substrate selected by cfg.StoreBackend.
func openBackend(cfg *config.Config) (repository.Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return repository.NewMemoryBackend(), nil
	case config.BackendBadger:
		return repository.OpenBadgerBackend(filepath.Join(cfg.DataDir, badgerDirName))
	case config.BackendSQLite:
		return repository.OpenSQLiteBackend(filepath.Join(cfg.DataDir, sqliteFileName))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.StoreBackend)
	}
}

// running returns ErrNotStarted before Start and after Stop.
func (s *Service) running() error {
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// SeenAndRecord reports whether the interaction event id was already seen and
// records it if not.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.running() != nil {
		return false
	}
	seen := s.deduper.SeenAndRecord(ctx, id)
	if seen {
		metrics.RecordEventDuplicate()
	}
	return seen
}

// Unrecord forgets an event id so the submission can be retried.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.running() != nil {
		return
	}
	s.deduper.Unrecord(ctx, id)
}

// Size returns the number of remembered event ids.
func (s *Service) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}

// Enqueue submits an interaction for asynchronous recording. It returns false
// on backpressure or when the service is not running. A missing event id or
// timestamp is filled in.
func (s *Service) Enqueue(ctx context.Context, ev model.InteractionEvent) bool { //nolint:gocritic // hugeParam: events are passed by value into the queue
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.running() != nil {
		return false
	}
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.TS.IsZero() {
		ev.TS = s.now()
	}
	s.logger.Debug(ctx, "enqueueing interaction",
		logger.String("eventID", ev.EventID),
		logger.UserID(ev.UserID),
		logger.String("itemID", ev.ItemID),
		logger.String("action", string(ev.Action)),
	)
	return s.eventQueue.Enqueue(ctx, ev)
}

// Record records an interaction synchronously.
func (s *Service) Record(ctx context.Context, userID, itemID string, action model.Action) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.running(); err != nil {
		return err
	}
	return s.recorder.Record(ctx, userID, itemID, action)
}

// StartSession counts a new app session for userID.
func (s *Service) StartSession(ctx context.Context, userID string) (model.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.running(); err != nil {
		return model.Profile{}, err
	}
	return s.sessions.Start(ctx, userID), nil
}

// Profile returns the persisted profile of userID.
func (s *Service) Profile(ctx context.Context, userID string) (model.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.running(); err != nil {
		return model.Profile{}, err
	}
	return s.store.Load(ctx, userID), nil
}

// AddInterests adds declared interest tags to the profile of userID.
func (s *Service) AddInterests(ctx context.Context, userID string, tags []string) (model.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.running(); err != nil {
		return model.Profile{}, err
	}
	return s.store.Update(ctx, userID, model.ChangeInterests, func(p *model.Profile) {
		p.AddInterests(tags...)
		p.Touch(s.now())
	}), nil
}

// ResetProfile discards everything learned about userID.
func (s *Service) ResetProfile(ctx context.Context, userID string) (model.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.running(); err != nil {
		return model.Profile{}, err
	}
	return s.store.Reset(ctx, userID), nil
}

// Recommendations ranks the catalog for userID. limit <= 0 or above the
// configured maximum is capped to the maximum.
func (s *Service) Recommendations(ctx context.Context, userID string, limit int) ([]model.RecommendationScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.running(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.cfg.MaxRecommendations {
		limit = s.cfg.MaxRecommendations
	}

	p := s.store.Load(ctx, userID)
	start := time.Now()
	scores := s.engine.Top(s.catalog.Items(), p, limit)
	metrics.RecordScoringLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
	metrics.RecordRecommendationsServed()
	return scores, nil
}

// Catalog returns the catalog items in catalog order.
func (s *Service) Catalog() []model.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.catalog == nil {
		return []model.Item{}
	}
	return s.catalog.Items()
}

// Subscribe streams the profile changes of userID until ctx is done.
func (s *Service) Subscribe(ctx context.Context, userID string) (<-chan model.ProfileChanged, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.running(); err != nil {
		return nil, err
	}
	return s.bridge.Subscribe(ctx, userID)
}

// Listen registers an in-process listener for every profile change. Listeners
// run after the user's lock is released and may call back into the Service.
func (s *Service) Listen(fn notify.Listener) (*notify.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.running(); err != nil {
		return nil, err
	}
	return s.broadcaster.Subscribe(fn), nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":      s.started,
		"storeBackend": s.cfg.StoreBackend,
		"workerCount":  s.cfg.WorkerCount,
		"queueSize":    s.cfg.QueueSize,
		"dedupeSize":   s.cfg.DedupeSize,
	}

	if s.started {
		queueLen := s.eventQueue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["processed"] = s.workerPool.Processed()
		stats["listeners"] = s.broadcaster.Len()
		stats["catalogItems"] = s.catalog.Len()
		stats["dedupeEntries"] = s.deduper.Size()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.workerPool.Size())
	}

	return stats
}
