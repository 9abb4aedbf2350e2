package scoring

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/okian/medrank/internal/domain/apperr"
	"github.com/okian/medrank/internal/domain/model"
	"github.com/okian/medrank/internal/domain/normalize"
	"github.com/okian/medrank/internal/domain/profile"
	"github.com/okian/medrank/pkg/logger"
	"github.com/okian/medrank/pkg/metrics"
)

// Combine applies profile p to sub. The result is clamped to [0,100] and is
// 0 when the weights sum to 0.
func Combine(sub model.SubIndices, p model.WeightProfile) float64 {
	return normalize.Clamp(normalize.Finite(weighted(sub, p)), 0, 100)
}

func weighted(sub model.SubIndices, p model.WeightProfile) float64 {
	w := profile.Of(p)
	if w.Sum() == 0 {
		return 0
	}
	var composite float64
	for _, k := range Kinds() {
		composite += sub.Get(int(k)) * k.weight(w)
	}
	return composite
}

// Result is the scoring outcome of one doctor under one profile.
type Result struct {
	DoctorID   string
	SubIndices model.SubIndices
	Composite  float64
	Tier       model.Tier
	Influence  float64
	ValueIndex float64
	// Fallbacks lists sub-indices that were non-finite and replaced by 0.
	Fallbacks  []Kind
	ComputedAt time.Time
}

// Record converts r into a persistable, unranked scoring record.
func (r Result) Record(profileID string) model.ScoringRecord {
	return model.ScoringRecord{
		DoctorID:   r.DoctorID,
		ProfileID:  profileID,
		SubIndices: r.SubIndices,
		Composite:  r.Composite,
		Tier:       r.Tier,
		Influence:  r.Influence,
		ValueIndex: r.ValueIndex,
		ComputedAt: r.ComputedAt,
	}
}

// Scorer scores a single doctor.
type Scorer interface {
	// Score computes a doctor's result, honoring ctx for cancellation.
	Score(ctx context.Context, d model.Doctor, p model.WeightProfile) (Result, error)
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithMaxFans sets the follower saturation point of the value index.
func WithMaxFans(v float64) Option {
	return func(e *Engine) {
		if v > 0 {
			e.params.MaxFans = v
		}
	}
}

// WithMaxAvgPlay sets the play-count saturation point of the value index.
func WithMaxAvgPlay(v float64) Option {
	return func(e *Engine) {
		if v > 0 {
			e.params.MaxAvgPlay = v
		}
	}
}

// WithBasePrice sets the reference price of the value index.
func WithBasePrice(v float64) Option {
	return func(e *Engine) {
		if v > 0 {
			e.params.BasePrice = v
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// Engine runs the scoring pipeline. It is stateless apart from its options
// and safe for concurrent use.
type Engine struct {
	params Params
	now    func() time.Time
	log    logger.Logger
}

// NewEngine creates an engine with the given options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		params: DefaultParams(),
		now:    time.Now,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Params returns the value-index constants in use.
func (e *Engine) Params() Params { return e.params }

// Score computes every sub-index of d, combines them under p and labels the
// tier. An invalid profile is a Validation error; a non-finite composite is
// an Internal error and the record must be dropped.
func (e *Engine) Score(ctx context.Context, d model.Doctor, p model.WeightProfile) (Result, error) {
	const op = "score"
	if err := apperr.CheckContext(ctx, op); err != nil {
		return Result{}, err
	}
	if err := profile.Validate(p); err != nil {
		return Result{}, err
	}
	return e.ScoreOne(ctx, d, p)
}

func (e *Engine) score(ctx context.Context, d model.Doctor, p model.WeightProfile) (Result, error) {
	r := Result{DoctorID: d.ID, ComputedAt: e.now()}
	for _, k := range Kinds() {
		v, fellBack := guarded(k, &d)
		if fellBack {
			r.Fallbacks = append(r.Fallbacks, k)
			metrics.RecordSubIndexFallback(k.String())
			e.log.Warn(ctx, "sub-index not finite, using 0",
				logger.String("doctor_id", d.ID),
				logger.String("kind", k.String()),
			)
		}
		r.SubIndices.Set(int(k), v)
	}

	composite := weighted(r.SubIndices, p)
	if math.IsNaN(composite) || math.IsInf(composite, 0) {
		metrics.RecordRecordDropped()
		return Result{}, apperr.Errorf(apperr.KindInternal, "score", "doctor %s: %w", d.ID, ErrNonFiniteComposite)
	}
	r.Composite = normalize.Clamp(composite, 0, 100)
	r.Influence = Influence(d)
	r.Tier = TierOf(d, r.Influence)
	r.ValueIndex = ValueIndex(d, e.params)
	return r, nil
}

// ScoreAll scores doctors in order, checking ctx between doctors. Doctors
// that fail are left out of the results and reported together in a
// *apperr.BatchError next to the surviving results. Cancellation discards
// everything and returns a Cancelled error.
func (e *Engine) ScoreAll(ctx context.Context, doctors []model.Doctor, p model.WeightProfile) ([]Result, error) {
	const op = "score_all"
	if err := profile.Validate(p); err != nil {
		return nil, err
	}
	start := time.Now()
	results := make([]Result, 0, len(doctors))
	var failures []apperr.Failure
	for i := range doctors {
		if err := apperr.CheckContext(ctx, op); err != nil {
			return nil, err
		}
		r, err := e.ScoreOne(ctx, doctors[i], p)
		if err != nil {
			failures = append(failures, apperr.Failure{ID: doctors[i].ID, Message: err.Error()})
			continue
		}
		results = append(results, r)
	}
	metrics.RecordDoctorsScored(len(results))
	metrics.RecordScoringLatency(float64(time.Since(start).Milliseconds()))

	if len(failures) > 0 {
		e.log.Warn(ctx, "records dropped from scoring batch",
			logger.Int("dropped", len(failures)),
			logger.Int("scored", len(results)),
		)
		return results, &apperr.BatchError{Kind: apperr.KindInternal, Op: op, Failures: failures}
	}
	return results, nil
}

// ScoreOne scores a doctor under a profile the caller already validated.
// Malformed doctor records are rejected with a Validation error.
func (e *Engine) ScoreOne(ctx context.Context, d model.Doctor, p model.WeightProfile) (Result, error) {
	if err := d.Validate(); err != nil {
		return Result{}, apperr.Wrap(apperr.KindValidation, "score", fmt.Errorf("doctor %q: %w", d.ID, err))
	}
	return e.score(ctx, d, p)
}
