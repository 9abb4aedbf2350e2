package repository

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/medrank/internal/domain/apperr"
	"github.com/okian/medrank/internal/domain/model"
	"github.com/okian/medrank/internal/domain/profile"
	"github.com/okian/medrank/pkg/logger"
	"github.com/okian/medrank/pkg/metrics"
)

// MemoryStore keeps everything in process memory. Each profile's scoring
// batch is indexed by a treap leaderboard that is rebuilt off-lock and
// swapped in whole.
type MemoryStore struct {
	mu       sync.RWMutex
	doctors  map[string]model.Doctor
	profiles map[string]model.WeightProfile
	boards   map[string]*board

	// def is the default profile as of the last committed change, so
	// readers never observe a moment without a default.
	def atomic.Pointer[model.WeightProfile]

	opts     options
	wg       sync.WaitGroup
	stopChan chan struct{}
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty store and starts its metrics updater.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		doctors:  make(map[string]model.Doctor),
		profiles: make(map[string]model.WeightProfile),
		boards:   make(map[string]*board),
		opts:     defaultOptions(),
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(&s.opts)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// Close stops the metrics updater.
func (s *MemoryStore) Close() error {
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
	s.wg.Wait()
	return nil
}

func (s *MemoryStore) PutDoctors(ctx context.Context, doctors []model.Doctor) error {
	const op = "put_doctors"
	if err := apperr.CheckContext(ctx, op); err != nil {
		return err
	}
	defer observe(op, time.Now())

	for i := range doctors {
		if err := doctors[i].Validate(); err != nil {
			return apperr.Errorf(apperr.KindValidation, op, "doctor %q: %w", doctors[i].ID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range doctors {
		s.doctors[d.ID] = d
	}
	return nil
}

func (s *MemoryStore) GetDoctor(ctx context.Context, id string) (model.Doctor, error) {
	const op = "get_doctor"
	if err := apperr.CheckContext(ctx, op); err != nil {
		return model.Doctor{}, err
	}
	s.mu.RLock()
	d, ok := s.doctors[id]
	s.mu.RUnlock()
	if !ok {
		return model.Doctor{}, apperr.Errorf(apperr.KindNotFound, op, "%w: %s", ErrDoctorNotFound, id)
	}
	return d, nil
}

func (s *MemoryStore) ListDoctors(ctx context.Context) ([]model.Doctor, error) {
	const op = "list_doctors"
	if err := apperr.CheckContext(ctx, op); err != nil {
		return nil, err
	}
	defer observe(op, time.Now())

	s.mu.RLock()
	out := make([]model.Doctor, 0, len(s.doctors))
	for _, d := range s.doctors {
		out = append(out, d)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CountDoctors(ctx context.Context) (int, error) {
	if err := apperr.CheckContext(ctx, "count_doctors"); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.doctors), nil
}

func (s *MemoryStore) CreateProfile(ctx context.Context, p model.WeightProfile) error {
	const op = "create_profile"
	if err := apperr.CheckContext(ctx, op); err != nil {
		return err
	}
	if p.ID == "" {
		return apperr.New(apperr.KindValidation, op, "profile id must not be empty")
	}
	state, err := profile.Transition(model.StateDraft, profile.EventCreate)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.ID]; ok {
		return apperr.Errorf(apperr.KindConflict, op, "%w: %s", ErrProfileExists, p.ID)
	}
	if p.IsDefault {
		if cur := s.def.Load(); cur != nil {
			return apperr.Errorf(apperr.KindConflict, op, "default profile %s already set", cur.ID)
		}
		state = model.StateDefault
	}
	p.State = state
	s.stamp(&p)
	s.profiles[p.ID] = p
	if p.IsDefault {
		s.publishDefault(p)
	}
	return nil
}

func (s *MemoryStore) UpdateProfile(ctx context.Context, p model.WeightProfile) (model.WeightProfile, error) {
	const op = "update_profile"
	if err := apperr.CheckContext(ctx, op); err != nil {
		return model.WeightProfile{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.liveProfile(op, p.ID)
	if err != nil {
		return model.WeightProfile{}, err
	}
	if _, err := profile.Transition(profile.StateOf(cur), profile.EventUpdate); err != nil {
		return model.WeightProfile{}, err
	}
	cur.Name = p.Name
	cur.Description = p.Description
	cur.Influence, cur.Activity, cur.Quality, cur.Price = p.Influence, p.Activity, p.Quality, p.Price
	cur.UpdatedAt = s.opts.now()
	s.profiles[cur.ID] = cur
	if cur.IsDefault {
		s.publishDefault(cur)
	}
	return cur, nil
}

func (s *MemoryStore) GetProfile(ctx context.Context, id string) (model.WeightProfile, error) {
	const op = "get_profile"
	if err := apperr.CheckContext(ctx, op); err != nil {
		return model.WeightProfile{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.liveProfile(op, id)
}

func (s *MemoryStore) ListProfiles(ctx context.Context) ([]model.WeightProfile, error) {
	if err := apperr.CheckContext(ctx, "list_profiles"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]model.WeightProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		if p.State != model.StateRetired {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()
	sortProfiles(out)
	return out, nil
}

// DefaultProfile reads the published snapshot without taking the lock.
func (s *MemoryStore) DefaultProfile(ctx context.Context) (model.WeightProfile, error) {
	const op = "default_profile"
	if err := apperr.CheckContext(ctx, op); err != nil {
		return model.WeightProfile{}, err
	}
	if p := s.def.Load(); p != nil {
		return *p, nil
	}
	return model.WeightProfile{}, apperr.Wrap(apperr.KindNotFound, op, ErrNoDefault)
}

func (s *MemoryStore) Activate(ctx context.Context, id string) (model.WeightProfile, error) {
	const op = "activate_profile"
	if err := apperr.CheckContext(ctx, op); err != nil {
		return model.WeightProfile{}, err
	}
	defer observe(op, time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	target, err := s.liveProfile(op, id)
	if err != nil {
		return model.WeightProfile{}, err
	}
	next, err := profile.Transition(profile.StateOf(target), profile.EventActivate)
	if err != nil {
		return model.WeightProfile{}, err
	}

	now := s.opts.now()
	if prev := s.def.Load(); prev != nil && prev.ID != id {
		old := s.profiles[prev.ID]
		demoted, err := profile.Transition(profile.StateOf(old), profile.EventDemote)
		if err != nil {
			return model.WeightProfile{}, err
		}
		old.State = demoted
		old.IsDefault = false
		old.UpdatedAt = now
		s.profiles[old.ID] = old
	}
	target.State = next
	target.IsDefault = true
	target.UpdatedAt = now
	s.profiles[id] = target
	s.publishDefault(target)

	s.opts.log.Info(ctx, "profile activated", logger.String("profile_id", id))
	return target, nil
}

func (s *MemoryStore) RetireProfile(ctx context.Context, id string) error {
	const op = "retire_profile"
	if err := apperr.CheckContext(ctx, op); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.liveProfile(op, id)
	if err != nil {
		return err
	}
	next, err := profile.Transition(profile.StateOf(p), profile.EventDelete)
	if err != nil {
		return err
	}
	p.State = next
	p.UpdatedAt = s.opts.now()
	s.profiles[id] = p
	delete(s.boards, id)
	return nil
}

func (s *MemoryStore) EnsureDefault(ctx context.Context, seed model.WeightProfile) (model.WeightProfile, error) {
	const op = "ensure_default"
	if err := apperr.CheckContext(ctx, op); err != nil {
		return model.WeightProfile{}, err
	}
	if p := s.def.Load(); p != nil {
		return *p, nil
	}
	if seed.ID == "" {
		return model.WeightProfile{}, apperr.New(apperr.KindValidation, op, "seed profile id must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check under the lock; another caller may have seeded first.
	if p := s.def.Load(); p != nil {
		return *p, nil
	}
	if _, ok := s.profiles[seed.ID]; ok {
		return model.WeightProfile{}, apperr.Errorf(apperr.KindConflict, op, "%w: %s", ErrProfileExists, seed.ID)
	}
	seed.IsDefault = true
	seed.State = model.StateDefault
	s.stamp(&seed)
	s.profiles[seed.ID] = seed
	s.publishDefault(seed)
	s.opts.log.Info(ctx, "default profile seeded", logger.String("profile_id", seed.ID))
	return seed, nil
}

func (s *MemoryStore) ReplaceScores(ctx context.Context, profileID string, records []model.ScoringRecord) error {
	const op = "replace_scores"
	if err := apperr.CheckContext(ctx, op); err != nil {
		return err
	}
	defer observe(op, time.Now())

	batch := make([]model.ScoringRecord, len(records))
	for i, r := range records {
		if r.ProfileID != "" && r.ProfileID != profileID {
			return apperr.Errorf(apperr.KindValidation, op, "record %s belongs to profile %s", r.DoctorID, r.ProfileID)
		}
		r.ProfileID = profileID
		batch[i] = r
	}
	b := newBoard(batch)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.liveProfile(op, profileID); err != nil {
		return err
	}
	s.boards[profileID] = b
	return nil
}

func (s *MemoryStore) GetScore(ctx context.Context, doctorID, profileID string) (model.ScoringRecord, error) {
	const op = "get_score"
	if err := apperr.CheckContext(ctx, op); err != nil {
		return model.ScoringRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.boards[profileID]; ok {
		if rec, ok := b.get(doctorID); ok {
			return rec, nil
		}
	}
	return model.ScoringRecord{}, apperr.Errorf(apperr.KindNotFound, op, "%w: doctor %s profile %s", ErrScoreNotFound, doctorID, profileID)
}

func (s *MemoryStore) TopScores(ctx context.Context, profileID string, n int) ([]model.ScoringRecord, error) {
	const op = "top_scores"
	if err := apperr.CheckContext(ctx, op); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, apperr.Errorf(apperr.KindValidation, op, "%w: %d", ErrInvalidLimit, n)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.boards[profileID]
	if !ok {
		return []model.ScoringRecord{}, nil
	}
	return b.top(n), nil
}

// liveProfile must be called with s.mu held.
func (s *MemoryStore) liveProfile(op, id string) (model.WeightProfile, error) {
	p, ok := s.profiles[id]
	if !ok || p.State == model.StateRetired {
		return model.WeightProfile{}, apperr.Errorf(apperr.KindNotFound, op, "%w: %s", ErrProfileNotFound, id)
	}
	return p, nil
}

func (s *MemoryStore) publishDefault(p model.WeightProfile) {
	s.def.Store(&p)
}

func (s *MemoryStore) stamp(p *model.WeightProfile) {
	now := s.opts.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
}

func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.opts.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics()
			}
		}
	}()
}

func (s *MemoryStore) updateMetrics() {
	s.mu.RLock()
	doctors := len(s.doctors)
	live := 0
	for _, p := range s.profiles {
		if p.State != model.StateRetired {
			live++
		}
	}
	s.mu.RUnlock()
	metrics.UpdateCatalogSize(doctors)
	metrics.UpdateProfileCount(live)
}

// sortProfiles orders the default first, then by creation time and id.
func sortProfiles(ps []model.WeightProfile) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].IsDefault != ps[j].IsDefault {
			return ps[i].IsDefault
		}
		if !ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].CreatedAt.Before(ps[j].CreatedAt)
		}
		return ps[i].ID < ps[j].ID
	})
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
}
