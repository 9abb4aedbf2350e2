// Package worker scores doctors of large batches on a fixed pool of
// goroutines fed by the job queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/medrank/internal/adapters/mq/queue"
	"github.com/okian/medrank/internal/domain/apperr"
	"github.com/okian/medrank/internal/domain/model"
	"github.com/okian/medrank/internal/domain/profile"
	"github.com/okian/medrank/internal/domain/scoring"
	"github.com/okian/medrank/pkg/logger"
	"github.com/okian/medrank/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultParallelThreshold = 200
	poolShutdownTimeout      = 30 * time.Second
)

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// JobQueue is the queue a Pool both feeds and drains.
type JobQueue interface {
	Queue
	Submit(ctx context.Context, j queue.Job) error
}

// Worker processes jobs until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current job.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker scores jobs read from a Queue.
type InMemoryWorker struct {
	queue  Queue
	scorer scoring.Scorer
	name   string
	active *atomic.Int64

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, scorer scoring.Scorer, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		scorer:   scorer,
		name:     "worker",
		active:   new(atomic.Int64),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			w.process(ctx, j)
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process answers exactly one Outcome per job.
func (w *InMemoryWorker) process(ctx context.Context, j queue.Job) { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	start := time.Now()
	metrics.UpdateWorkerActiveCount(int(w.active.Add(1)))
	defer func() {
		metrics.UpdateWorkerActiveCount(int(w.active.Add(-1)))
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	out := queue.Outcome{Index: j.Index}
	select {
	case <-j.Done:
		out.Err = apperr.FromContext("score", context.Canceled)
	default:
		out.Result, out.Err = w.scorer.Score(ctx, j.Doctor, j.Profile)
	}
	if out.Err != nil && apperr.KindOf(out.Err) != apperr.KindCancelled {
		metrics.RecordErrorByComponent("worker", "scoring_error")
		w.logger.Debug(ctx, "scoring failed",
			logger.String("doctor_id", j.Doctor.ID),
			logger.Error(out.Err),
		)
	}
	j.Reply <- out
}

// Pool manages multiple workers and fans scoring batches out to them.
type Pool struct {
	workers   []*InMemoryWorker
	queue     JobQueue
	scorer    scoring.Scorer
	threshold int
	active    atomic.Int64
	started   atomic.Bool
	running   atomic.Bool

	// stopped is closed when the pool stops taking work.
	stopped chan struct{}

	logger logger.Logger
}

// NewPool creates a pool of workerCount workers. A non-positive count uses
// one worker per CPU.
func NewPool(workerCount int, q JobQueue, scorer scoring.Scorer, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	p := &Pool{
		workers:   make([]*InMemoryWorker, workerCount),
		queue:     q,
		scorer:    scorer,
		threshold: defaultParallelThreshold,
		stopped:   make(chan struct{}),
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	for i := 0; i < workerCount; i++ {
		p.workers[i] = NewInMemoryWorker(q, scorer,
			WithName("worker-"+strconv.Itoa(i)),
			WithLogger(p.logger),
		)
		p.workers[i].active = &p.active
	}
	metrics.UpdateWorkerActiveCount(0)
	return p
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	p.running.Store(true)
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go func() {
		select {
		case <-ctx.Done():
			p.stop()
		case <-p.stopped:
		}
	}()
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

func (p *Pool) stop() {
	if p.running.CompareAndSwap(true, false) {
		close(p.stopped)
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// ScoreAll scores doctors under prof. Batches above the parallel threshold
// are spread over the workers; jobs the queue refuses are scored inline.
// Results keep the input order. Doctors that fail to score are left out and
// reported in a *apperr.BatchError alongside the surviving results.
func (p *Pool) ScoreAll(ctx context.Context, doctors []model.Doctor, prof model.WeightProfile) ([]scoring.Result, error) {
	const op = "score_all"
	if err := profile.Validate(prof); err != nil {
		return nil, err
	}
	start := time.Now()

	parallel := p.running.Load() && len(doctors) > p.threshold
	replies := make(chan queue.Outcome, len(doctors))
	done := make(chan struct{})
	defer close(done)

	outcomes := make([]queue.Outcome, len(doctors))
	pending, inline := 0, 0
	var refused error
	for i := range doctors {
		if err := apperr.CheckContext(ctx, op); err != nil {
			return nil, err
		}
		if parallel {
			err := p.queue.Submit(ctx, queue.Job{Index: i, Doctor: doctors[i], Profile: prof, Reply: replies, Done: done})
			if err == nil {
				pending++
				continue
			}
			refused = err
		}
		r, err := p.scorer.Score(ctx, doctors[i], prof)
		outcomes[i] = queue.Outcome{Index: i, Result: r, Err: err}
		inline++
	}
	if refused != nil {
		p.logger.Warn(ctx, "queue refused jobs, scored inline",
			logger.Int("inline", inline),
			logger.Error(refused),
		)
	}

	for pending > 0 {
		select {
		case <-ctx.Done():
			return nil, apperr.FromContext(op, ctx.Err())
		case <-p.stopped:
			return nil, apperr.FromContext(op, errors.New("worker pool stopped"))
		case o := <-replies:
			outcomes[o.Index] = o
			pending--
		}
	}

	results := make([]scoring.Result, 0, len(doctors))
	var failures []apperr.Failure
	for i, o := range outcomes {
		if o.Err != nil {
			if apperr.KindOf(o.Err) == apperr.KindCancelled {
				return nil, o.Err
			}
			failures = append(failures, apperr.Failure{ID: doctors[i].ID, Message: o.Err.Error()})
			continue
		}
		results = append(results, o.Result)
	}
	metrics.RecordDoctorsScored(len(results))
	metrics.RecordScoringLatency(float64(time.Since(start).Milliseconds()))

	if len(failures) > 0 {
		p.logger.Warn(ctx, "records dropped from scoring batch",
			logger.Int("dropped", len(failures)),
			logger.Int("scored", len(results)),
		)
		return results, &apperr.BatchError{Kind: apperr.KindInternal, Op: op, Failures: failures}
	}
	return results, nil
}

// Shutdown closes the queue and waits for the workers to finish.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	p.stop()
	if !p.started.Load() {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			timedOut++
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	if timedOut > 0 {
		return fmt.Errorf("%d workers did not stop: %w", timedOut, shutdownCtx.Err())
	}
	return nil
}
