package service

import (
	"context"
	"errors"
	"time"

	"github.com/okian/medrank/internal/adapters/repository"
	"github.com/okian/medrank/internal/domain/apperr"
	"github.com/okian/medrank/internal/domain/model"
	"github.com/okian/medrank/internal/domain/ranking"
	"github.com/okian/medrank/internal/domain/report"
	"github.com/okian/medrank/internal/domain/scoring"
	"github.com/okian/medrank/pkg/logger"
	"github.com/okian/medrank/pkg/metrics"
)

// DoctorScore is a doctor scored on demand, with the rank of its last
// recalculation when there is one.
type DoctorScore struct {
	Doctor         model.Doctor        `json:"doctor"`
	Profile        report.ProfileEcho  `json:"profile"`
	Score          model.ScoringRecord `json:"scores"`
	Fallbacks      []string            `json:"fallbacks,omitempty"`
	CostEfficiency float64             `json:"cost_efficiency"`
	Quality        scoring.Assessment  `json:"quality_assessment"`
	Trends         scoring.TrendReport `json:"trends"`
}

// Recalculation summarises a recalculation.
type Recalculation struct {
	Updated     int    `json:"updated"`
	Total       int    `json:"total"`
	ProfileID   string `json:"profile_id"`
	ProfileName string `json:"profile_name"`
}

// ScoreDoctor scores one doctor under profileID (the default when empty).
func (s *Service) ScoreDoctor(ctx context.Context, doctorID, profileID string) (DoctorScore, error) {
	const op = "score_doctor"
	if err := s.ready(op); err != nil {
		return DoctorScore{}, err
	}
	d, err := s.store.GetDoctor(ctx, doctorID)
	if err != nil {
		return DoctorScore{}, err
	}
	p, err := s.resolveProfile(ctx, profileID)
	if err != nil {
		return DoctorScore{}, err
	}
	r, err := s.engine.Score(ctx, d, p)
	if err != nil {
		return DoctorScore{}, err
	}

	out := DoctorScore{
		Doctor:         d,
		Profile:        report.ProfileEcho{ID: p.ID, Name: p.Name},
		Score:          r.Record(p.ID),
		CostEfficiency: ranking.CostEfficiency(r.Composite, d.PriceOrZero()),
		Quality:        scoring.QualityAssessment(d),
		Trends:         scoring.Trends(d),
	}
	for _, k := range r.Fallbacks {
		out.Fallbacks = append(out.Fallbacks, k.String())
	}

	stored, err := s.store.GetScore(ctx, doctorID, p.ID)
	switch {
	case err == nil:
		out.Score.Rank = stored.Rank
	case !errors.Is(err, repository.ErrScoreNotFound):
		return DoctorScore{}, err
	}
	return out, nil
}

// RecalculateAll rescores the whole catalog under profileID (the default
// when empty) and replaces the profile's stored ranking. When any doctor
// fails to score nothing is stored and the failures are returned in a
// *apperr.BatchError.
func (s *Service) RecalculateAll(ctx context.Context, profileID string) (Recalculation, error) {
	const op = "recalculate"
	if err := s.ready(op); err != nil {
		return Recalculation{}, err
	}
	start := time.Now()
	fail := func(err error) (Recalculation, error) {
		outcome := "failed"
		if apperr.KindOf(err) == apperr.KindCancelled {
			outcome = "cancelled"
		}
		metrics.RecordRecalculation(outcome, float64(time.Since(start).Milliseconds()))
		s.logger.Warn(ctx, "recalculation failed",
			logger.String("profile_id", profileID),
			logger.Error(err),
		)
		return Recalculation{}, err
	}

	p, err := s.resolveProfile(ctx, profileID)
	if err != nil {
		return fail(err)
	}
	doctors, err := s.store.ListDoctors(ctx)
	if err != nil {
		return fail(err)
	}

	results, err := s.pool.ScoreAll(ctx, doctors, p)
	if err != nil {
		var batch *apperr.BatchError
		if errors.As(err, &batch) {
			batch.Op = op
			batch.Limit = s.maxBatchFailures
		}
		return fail(err)
	}

	records := make([]model.ScoringRecord, len(results))
	for i, r := range results {
		records[i] = r.Record(p.ID)
	}
	records = ranking.RankRecords(records)
	if err := s.store.ReplaceScores(ctx, p.ID, records); err != nil {
		return fail(err)
	}

	elapsed := time.Since(start)
	metrics.RecordRecalculation("success", float64(elapsed.Milliseconds()))
	s.logger.Info(ctx, "recalculation complete",
		logger.String("profile_id", p.ID),
		logger.Int("updated", len(records)),
		logger.Duration("elapsed", elapsed),
	)
	return Recalculation{
		Updated:     len(records),
		Total:       len(doctors),
		ProfileID:   p.ID,
		ProfileName: p.Name,
	}, nil
}

// TopScores returns the n best records of the last recalculation under
// profileID (the default when empty).
func (s *Service) TopScores(ctx context.Context, profileID string, n int) ([]model.ScoringRecord, error) {
	if err := s.ready("top_scores"); err != nil {
		return nil, err
	}
	p, err := s.resolveProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if n <= 0 || n > s.maxListLimit {
		n = s.maxListLimit
	}
	return s.store.TopScores(ctx, p.ID, n)
}
