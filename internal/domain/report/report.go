// Package report projects a scored, ranked doctor set into the report kinds
// served to clients.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/medrank/internal/domain/apperr"
	"github.com/okian/medrank/internal/domain/model"
	"github.com/okian/medrank/internal/domain/ranking"
	"github.com/okian/medrank/internal/domain/scoring"
	"github.com/okian/medrank/pkg/logger"
	"github.com/okian/medrank/pkg/metrics"
)

// Kind names a report shape.
type Kind string

// Report kinds.
const (
	KindOverview       Kind = "overview"
	KindRanking        Kind = "ranking"
	KindAnalysis       Kind = "analysis"
	KindComparison     Kind = "comparison"
	KindRecommendation Kind = "recommendation"
	KindExportCSV      Kind = "export-csv"
)

// Kinds lists every supported kind.
func Kinds() []Kind {
	return []Kind{KindOverview, KindRanking, KindAnalysis, KindComparison, KindRecommendation, KindExportCSV}
}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	for _, v := range Kinds() {
		if k == v {
			return true
		}
	}
	return false
}

// Defaults for recommendation reports.
const (
	DefaultThreshold = 70.0
	DefaultLimit     = 10
)

// Request describes the report to build. Limit caps ranking and
// recommendation lists (0 uses the builder default for recommendations and
// no cap for rankings). Pair names the doctors of a comparison. Threshold
// overrides the recommendation cost-efficiency threshold when positive.
type Request struct {
	Kind      Kind      `json:"report_type"`
	Filter    Filter    `json:"filters"`
	ProfileID string    `json:"profile_id,omitempty"`
	Limit     int       `json:"limit,omitempty"`
	Pair      [2]string `json:"pair,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
}

// ProfileEcho identifies the profile a report was scored under.
type ProfileEcho struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Metadata describes how a report was produced.
type Metadata struct {
	TotalDoctors     int         `json:"total_doctors"`
	DroppedRecords   int         `json:"dropped_records"`
	Filters          Filter      `json:"filters_applied"`
	Profile          ProfileEcho `json:"profile"`
	GenerationTimeMs int64       `json:"generation_time_ms"`
}

// Data carries the sections of a report; only those of its kind are set.
type Data struct {
	Summary         *ranking.Summary `json:"summary,omitempty"`
	Rankings        []ranking.Entry  `json:"rankings,omitempty"`
	Analysis        *Analysis        `json:"analysis,omitempty"`
	Comparison      *Comparison      `json:"comparison,omitempty"`
	Recommendations []ranking.Entry  `json:"recommendations,omitempty"`
	Doctors         []ranking.Entry  `json:"doctors,omitempty"`
}

// Report is a built report. CSV is set for export-csv reports only.
type Report struct {
	ID          string    `json:"report_id"`
	Kind        Kind      `json:"report_type"`
	GeneratedAt time.Time `json:"generated_at"`
	Data        Data      `json:"data"`
	Metadata    Metadata  `json:"metadata"`
	CSV         []byte    `json:"-"`
}

// BatchScorer scores a doctor set under one profile. Both the scoring
// engine and the worker pool satisfy it.
type BatchScorer interface {
	ScoreAll(ctx context.Context, doctors []model.Doctor, p model.WeightProfile) ([]scoring.Result, error)
}

// Option configures a Builder.
type Option func(*Builder)

// WithScorer sets the batch scorer.
func WithScorer(s BatchScorer) Option {
	return func(b *Builder) {
		if s != nil {
			b.scorer = s
		}
	}
}

// WithRecommendation sets the default threshold and limit of
// recommendation reports.
func WithRecommendation(threshold float64, limit int) Option {
	return func(b *Builder) {
		if threshold >= 0 {
			b.threshold = threshold
		}
		if limit > 0 {
			b.limit = limit
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// WithLogger sets the builder logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.log = l
		}
	}
}

// Builder assembles reports. It is safe for concurrent use.
type Builder struct {
	scorer    BatchScorer
	threshold float64
	limit     int
	now       func() time.Time
	log       logger.Logger
}

// NewBuilder creates a builder scoring with a default engine unless
// WithScorer is given.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		scorer:    scoring.NewEngine(),
		threshold: DefaultThreshold,
		limit:     DefaultLimit,
		now:       time.Now,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build filters doctors, scores them under p, ranks them and projects the
// result into req.Kind. The deadline of ctx is checked between phases and
// an expired context yields a Cancelled error with no report. Doctors the
// scorer drops are left out and counted in the metadata.
func (b *Builder) Build(ctx context.Context, req Request, doctors []model.Doctor, p model.WeightProfile) (*Report, error) {
	const op = "report"
	start := time.Now()

	rep, err := b.build(ctx, req, doctors, p)
	outcome := "ok"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	metrics.RecordReport(string(req.Kind), outcome, float64(time.Since(start).Milliseconds()))
	if err != nil {
		b.log.Warn(ctx, "report failed",
			logger.String("kind", string(req.Kind)),
			logger.String("op", op),
			logger.Error(err),
		)
		return nil, err
	}
	rep.Metadata.GenerationTimeMs = time.Since(start).Milliseconds()
	b.log.Debug(ctx, "report built",
		logger.String("report_id", rep.ID),
		logger.Int("doctors", rep.Metadata.TotalDoctors),
		logger.Int64("elapsed_ms", rep.Metadata.GenerationTimeMs),
	)
	return rep, nil
}

func (b *Builder) build(ctx context.Context, req Request, doctors []model.Doctor, p model.WeightProfile) (*Report, error) {
	const op = "report"
	if !req.Kind.Valid() {
		return nil, apperr.Wrap(apperr.KindValidation, op, fmt.Errorf("%w: %q", ErrUnknownKind, req.Kind))
	}
	if req.Kind == KindComparison {
		if req.Pair[0] == "" || req.Pair[1] == "" || req.Pair[0] == req.Pair[1] {
			return nil, apperr.Wrap(apperr.KindValidation, op, ErrComparisonPair)
		}
	}
	m, err := req.Filter.compile()
	if err != nil {
		return nil, err
	}
	if err := apperr.CheckContext(ctx, op); err != nil {
		return nil, err
	}

	// filter
	selected := make([]model.Doctor, 0, len(doctors))
	for i := range doctors {
		if m.keepDoctor(&doctors[i]) {
			selected = append(selected, doctors[i])
		}
	}
	if err := apperr.CheckContext(ctx, op); err != nil {
		return nil, err
	}

	// score
	results, err := b.scorer.ScoreAll(ctx, selected, p)
	dropped := 0
	if err != nil {
		var batch *apperr.BatchError
		if !errors.As(err, &batch) {
			return nil, err
		}
		dropped = len(batch.Failures)
		b.log.Warn(ctx, "report excludes unscorable doctors", logger.Int("dropped", dropped))
	}
	if err := apperr.CheckContext(ctx, op); err != nil {
		return nil, err
	}

	// rank
	byID := make(map[string]*model.Doctor, len(selected))
	for i := range selected {
		byID[selected[i].ID] = &selected[i]
	}
	entries := make([]ranking.Entry, 0, len(results))
	for _, r := range results {
		d, ok := byID[r.DoctorID]
		if !ok {
			continue
		}
		e := ranking.Entry{Doctor: *d, Record: r.Record(p.ID)}
		keep, err := m.keepEntry(&e)
		if err != nil {
			return nil, err
		}
		if keep {
			entries = append(entries, e)
		}
	}
	ranked := ranking.Rank(entries)
	if err := apperr.CheckContext(ctx, op); err != nil {
		return nil, err
	}

	// project
	rep := &Report{
		ID:          fmt.Sprintf("%s_%s", req.Kind, uuid.NewString()),
		Kind:        req.Kind,
		GeneratedAt: b.now(),
		Metadata: Metadata{
			TotalDoctors:   len(ranked),
			DroppedRecords: dropped,
			Filters:        req.Filter,
			Profile:        ProfileEcho{ID: p.ID, Name: p.Name},
		},
	}
	if err := b.project(rep, req, ranked); err != nil {
		return nil, err
	}
	if err := apperr.CheckContext(ctx, op); err != nil {
		return nil, err
	}
	return rep, nil
}

func (b *Builder) project(rep *Report, req Request, ranked []ranking.Entry) error {
	const op = "report"
	switch req.Kind {
	case KindOverview:
		s := ranking.Summarize(ranked)
		rep.Data.Summary = &s
		rep.Data.Doctors = ranked
	case KindRanking:
		rep.Data.Rankings = capped(ranked, req.Limit)
	case KindAnalysis:
		s := ranking.Summarize(ranked)
		rep.Data.Summary = &s
		rep.Data.Analysis = analyze(ranked)
	case KindComparison:
		var pair [2]*ranking.Entry
		for i := range ranked {
			for j, id := range req.Pair {
				if ranked[i].Doctor.ID == id {
					pair[j] = &ranked[i]
				}
			}
		}
		for j, e := range pair {
			if e == nil {
				return apperr.Wrap(apperr.KindNotFound, op, fmt.Errorf("%w: %s", ErrDoctorNotInSet, req.Pair[j]))
			}
		}
		rep.Data.Comparison = compare(*pair[0], *pair[1])
	case KindRecommendation:
		threshold, limit := b.threshold, b.limit
		if req.Threshold > 0 {
			threshold = req.Threshold
		}
		if req.Limit > 0 {
			limit = req.Limit
		}
		rep.Data.Recommendations = ranking.Recommend(ranked, threshold, limit)
	case KindExportCSV:
		out, err := writeCSV(ranked)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, op, err)
		}
		rep.CSV = out
	}
	return nil
}

func capped(entries []ranking.Entry, limit int) []ranking.Entry {
	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}
