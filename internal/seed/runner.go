package seed

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/medrank/internal/domain/model"
	"github.com/okian/medrank/pkg/logger"
)

func (c *Config) withDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// Run generates the catalog, imports it, recalculates scores and, when
// Verify is set, checks the resulting ranking.
func Run(ctx context.Context, config Config, log logger.Logger) (Stats, error) {
	config.withDefaults()
	stats := Stats{StartTime: time.Now()}
	if config.Doctors <= 0 {
		return stats, fmt.Errorf("%w: doctors must be positive, got %d", ErrInvalidConfig, config.Doctors)
	}

	log.Info(ctx, "starting medrank seed",
		logger.String("baseURL", config.BaseURL),
		logger.Int("doctors", config.Doctors),
		logger.Int("batchSize", config.BatchSize),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout),
		logger.Bool("verify", config.Verify))

	client := NewClient(config.BaseURL, config.Timeout)
	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	doctors, err := NewGenerator(config.Seed).Doctors(config.Doctors)
	if err != nil {
		return stats, fmt.Errorf("generate catalog: %w", err)
	}
	stats.Generated = len(doctors)
	log.Info(ctx, "catalog generated", logger.Int("count", len(doctors)))

	if err := submit(ctx, client, config, doctors, &stats, log); err != nil {
		return stats, fmt.Errorf("import catalog: %w", err)
	}

	rec, err := client.Recalculate(ctx, config.ProfileID)
	if err != nil {
		return stats, fmt.Errorf("recalculate: %w", err)
	}
	stats.Updated = rec.Updated
	log.Info(ctx, "scores recalculated",
		logger.String("profile", rec.ProfileName),
		logger.Int("updated", rec.Updated),
		logger.Int("total", rec.Total))

	if config.Verify {
		entries, err := client.Ranking(ctx, config.ProfileID)
		if err != nil {
			return stats, fmt.Errorf("fetch ranking: %w", err)
		}
		stats.Ranked = len(entries)
		if err := VerifyRanking(entries); err != nil {
			return stats, err
		}
		if len(entries) < stats.Accepted {
			return stats, fmt.Errorf("%w: %d ranked, %d imported", ErrRankingBroken, len(entries), stats.Accepted)
		}
		log.Info(ctx, "ranking verified", logger.Int("ranked", len(entries)))
		logTop(ctx, log, entries)
	}

	stats.Duration = time.Since(stats.StartTime)
	log.Info(ctx, "seed completed",
		logger.Int("generated", stats.Generated),
		logger.Int("batches", stats.Batches),
		logger.Int("accepted", stats.Accepted),
		logger.Int("rejected", stats.Rejected),
		logger.Int("updated", stats.Updated),
		logger.Int("ranked", stats.Ranked),
		logger.Duration("duration", stats.Duration))
	return stats, nil
}

// submit imports doctors in batches over a bounded worker group.
func submit(ctx context.Context, client *Client, config Config, doctors []model.Doctor, stats *Stats, log logger.Logger) error {
	var accepted, rejected, batches atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Workers)
	for start := 0; start < len(doctors); start += config.BatchSize {
		batch := doctors[start:min(start+config.BatchSize, len(doctors))]
		g.Go(func() error {
			out, err := client.Import(gctx, batch)
			if err != nil {
				return err
			}
			batches.Add(1)
			accepted.Add(int64(out.Accepted))
			rejected.Add(int64(out.Rejected))
			if out.Rejected > 0 {
				log.Warn(gctx, "import batch had rejected rows", logger.Int("rejected", out.Rejected))
			}
			return nil
		})
	}
	err := g.Wait()

	stats.Batches = int(batches.Load())
	stats.Accepted = int(accepted.Load())
	stats.Rejected = int(rejected.Load())
	return err
}

func logTop(ctx context.Context, log logger.Logger, entries []Entry) {
	for _, e := range entries[:min(len(entries), 10)] {
		log.Info(ctx, "top doctor",
			logger.Int("rank", e.Rank),
			logger.String("doctor", e.DoctorID),
			logger.Float64("composite", e.Composite),
			logger.String("tier", e.Tier))
	}
}
