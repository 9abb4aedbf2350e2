// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	eventqueue "github.com/okian/medrank/internal/adapters/mq/queue"
	workerpool "github.com/okian/medrank/internal/adapters/mq/worker"
	"github.com/okian/medrank/internal/adapters/repository"
	"github.com/okian/medrank/internal/domain/apperr"
	"github.com/okian/medrank/internal/domain/dedupe"
	"github.com/okian/medrank/internal/domain/importer"
	"github.com/okian/medrank/internal/domain/profile"
	"github.com/okian/medrank/internal/domain/report"
	"github.com/okian/medrank/internal/domain/scoring"
	"github.com/okian/medrank/pkg/logger"
	"github.com/okian/medrank/pkg/metrics"
)

// Default service configuration.
const (
	defaultQueueSize        = 4096
	defaultMaxListLimit     = 500
	defaultMaxBatchFailures = 20
	defaultIdempotencySize  = 10000
	defaultIdempotencyTTL   = 10 * time.Minute
)

// Service implements the API dependencies for the evaluation engine.
type Service struct {
	mu sync.RWMutex

	// Core components
	store    repository.Store
	engine   *scoring.Engine
	queue    *eventqueue.InMemoryQueue
	pool     *workerpool.Pool
	importer *importer.Importer
	reports  *report.Builder
	deduper  dedupe.Deduper

	// Configuration
	workerCount       int
	queueSize         int
	parallelThreshold int
	engineOpts        []scoring.Option
	recThreshold      float64
	recLimit          int
	maxListLimit      int
	maxBatchFailures  int
	idempotencySize   int
	idempotencyTTL    time.Duration
	presets           []profile.Preset
	seedProfiles      bool
	now               func() time.Time
	newID             func() string

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore injects the persistence backend. Without it the service keeps
// everything in memory. The service closes the store on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithWorkerCount sets the number of scoring workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the scoring job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithParallelThreshold sets the batch size above which scoring fans out
// to the worker pool.
func WithParallelThreshold(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.parallelThreshold = n
		}
	}
}

// WithScoringParams sets the value-index constants. Non-positive values
// keep the engine defaults.
func WithScoringParams(maxFans, maxAvgPlay, basePrice float64) Option {
	return func(s *Service) {
		s.engineOpts = append(s.engineOpts,
			scoring.WithMaxFans(maxFans),
			scoring.WithMaxAvgPlay(maxAvgPlay),
			scoring.WithBasePrice(basePrice),
		)
	}
}

// WithRecommendation sets the default recommendation threshold and limit.
func WithRecommendation(threshold float64, limit int) Option {
	return func(s *Service) {
		s.recThreshold = threshold
		s.recLimit = limit
	}
}

// WithMaxListLimit caps page sizes of list operations.
func WithMaxListLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxListLimit = n
		}
	}
}

// WithMaxBatchFailures sets how many failures a batch error lists.
func WithMaxBatchFailures(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBatchFailures = n
		}
	}
}

// WithIdempotency sizes the Idempotency-Key cache.
func WithIdempotency(size int, ttl time.Duration) Option {
	return func(s *Service) {
		if size > 0 {
			s.idempotencySize = size
		}
		if ttl > 0 {
			s.idempotencyTTL = ttl
		}
	}
}

// WithPresets replaces the built-in weight presets.
func WithPresets(presets []profile.Preset) Option {
	return func(s *Service) {
		if len(presets) > 0 {
			s.presets = presets
		}
	}
}

// WithSeedProfiles stores every preset as a profile when the service
// starts on an empty profile store.
func WithSeedProfiles(enabled bool) Option {
	return func(s *Service) {
		s.seedProfiles = enabled
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides how profile ids are minted.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:       runtime.NumCPU(),
		queueSize:         defaultQueueSize,
		parallelThreshold: -1,
		recThreshold:      report.DefaultThreshold,
		recLimit:          report.DefaultLimit,
		maxListLimit:      defaultMaxListLimit,
		maxBatchFailures:  defaultMaxBatchFailures,
		idempotencySize:   defaultIdempotencySize,
		idempotencyTTL:    defaultIdempotencyTTL,
		presets:           profile.Presets(),
		now:               time.Now,
		newID:             uuid.NewString,
		logger:            nil, // Will be replaced when service starts
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes the components, starts the worker pool and makes sure
// a default profile exists.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting evaluation service...")

	if s.store == nil {
		s.store = repository.NewMemoryStore(ctx,
			repository.WithClock(s.now),
			repository.WithLogger(s.logger.Named("repository")),
		)
		s.logger.Info(ctx, "using in-memory store")
	}

	s.engine = scoring.NewEngine(append(append([]scoring.Option(nil), s.engineOpts...),
		scoring.WithClock(s.now),
		scoring.WithLogger(s.logger.Named("engine")),
	)...)

	s.queue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
		eventqueue.WithBufferSize(s.queueSize),
	)
	poolOpts := []workerpool.PoolOption{workerpool.WithPoolLogger(s.logger)}
	if s.parallelThreshold >= 0 {
		poolOpts = append(poolOpts, workerpool.WithParallelThreshold(s.parallelThreshold))
	}
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.engine, poolOpts...)

	imp, err := importer.New(
		importer.WithClock(s.now),
		importer.WithLogger(s.logger.Named("importer")),
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "start", err)
	}
	s.importer = imp

	s.reports = report.NewBuilder(
		report.WithScorer(s.pool),
		report.WithRecommendation(s.recThreshold, s.recLimit),
		report.WithClock(s.now),
		report.WithLogger(s.logger.Named("report")),
	)
	s.deduper = dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(s.idempotencySize),
		dedupe.WithTTL(s.idempotencyTTL),
		dedupe.WithClock(s.now),
	)

	def, err := s.ensureDefault(ctx)
	if err != nil {
		return err
	}
	if s.seedProfiles {
		if err := s.seedPresets(ctx); err != nil {
			return err
		}
	}

	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "evaluation service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.String("defaultProfile", def.ID),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping evaluation service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool did not stop cleanly", logger.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "error closing store", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "evaluation service stopped")
}

// ready fails fast when the service is not running.
func (s *Service) ready(op string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return apperr.Wrap(apperr.KindInternal, op, ErrNotStarted)
	}
	return nil
}

// seedPresets stores every preset as a profile when only the default exists.
func (s *Service) seedPresets(ctx context.Context) error {
	existing, err := s.store.ListProfiles(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 1 {
		return nil
	}
	for _, pr := range s.presets {
		p := pr.Profile(s.now())
		p.ID = s.newID()
		if err := s.store.CreateProfile(ctx, p); err != nil {
			return err
		}
	}
	s.logger.Info(ctx, "preset profiles seeded", logger.Int("count", len(s.presets)))
	return nil
}

// Stats is a point-in-time view of the service for monitoring.
type Stats struct {
	Started         bool  `json:"started"`
	Doctors         int   `json:"doctors"`
	Profiles        int   `json:"profiles"`
	Workers         int   `json:"workers"`
	QueueLength     int   `json:"queue_length"`
	IdempotencyKeys int64 `json:"idempotency_keys"`
}

// Stats returns service statistics and refreshes the matching gauges.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	if err := s.ready("stats"); err != nil {
		return Stats{Started: false}, err
	}

	doctors, err := s.store.CountDoctors(ctx)
	if err != nil {
		return Stats{}, err
	}
	profiles, err := s.store.ListProfiles(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{
		Started:         true,
		Doctors:         doctors,
		Profiles:        len(profiles),
		Workers:         s.pool.Size(),
		QueueLength:     s.queue.Len(ctx),
		IdempotencyKeys: s.deduper.Size(),
	}

	metrics.UpdateCatalogSize(st.Doctors)
	metrics.UpdateProfileCount(st.Profiles)
	metrics.UpdateQueueSize(st.QueueLength)

	return st, nil
}

// Deduper returns the Idempotency-Key guard shared by mutating routes.
func (s *Service) Deduper() dedupe.Deduper {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deduper
}

// MaxBatchFailures is how many failures a batch error lists.
func (s *Service) MaxBatchFailures() int { return s.maxBatchFailures }

// isNotFound reports whether err says an entity does not exist.
func isNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}
