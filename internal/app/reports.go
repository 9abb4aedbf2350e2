package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/okian/medrank/internal/domain/model"
	"github.com/okian/medrank/internal/domain/report"
)

// BuildReport loads the catalog and the requested profile side by side,
// then scores, ranks and builds the report. Scoring goes through the
// worker pool, which fans out for large catalogs.
func (s *Service) BuildReport(ctx context.Context, req report.Request) (*report.Report, error) {
	const op = "build_report"
	if err := s.ready(op); err != nil {
		return nil, err
	}

	var (
		doctors []model.Doctor
		p       model.WeightProfile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		doctors, err = s.store.ListDoctors(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		p, err = s.resolveProfile(gctx, req.ProfileID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return s.reports.Build(ctx, req, doctors, p)
}
