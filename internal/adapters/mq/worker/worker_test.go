package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	queue "github.com/okian/medrank/internal/adapters/mq/queue"
	worker "github.com/okian/medrank/internal/adapters/mq/worker"
	"github.com/okian/medrank/internal/domain/apperr"
	model "github.com/okian/medrank/internal/domain/model"
	"github.com/okian/medrank/internal/domain/profile"
	"github.com/okian/medrank/internal/domain/scoring"
)

var fixedNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

// stubScorer scores a doctor by its follower count.
type stubScorer struct {
	mu    sync.Mutex
	fail  map[string]error
	calls int
}

func (s *stubScorer) Score(ctx context.Context, d model.Doctor, p model.WeightProfile) (scoring.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err, ok := s.fail[d.ID]; ok {
		return scoring.Result{}, err
	}
	return scoring.Result{DoctorID: d.ID, Composite: float64(d.TotalFollowers)}, nil
}

func doctors(n int) []model.Doctor {
	out := make([]model.Doctor, n)
	for i := range out {
		out[i] = model.Doctor{ID: fmt.Sprintf("doc_%04d", i+1), Name: "医生", TotalFollowers: int64(i * 1000)}
	}
	return out
}

func resultIDs(rs []scoring.Result) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.DoctorID
	}
	return out
}

func docIDs(ds []model.Doctor) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.ID
	}
	return out
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a running worker", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		scorer := &stubScorer{fail: map[string]error{"bad": errors.New("boom")}}
		w := worker.NewInMemoryWorker(q, scorer, worker.WithName("worker-test"))
		go w.Run(ctx)

		replies := make(chan queue.Outcome, 3)
		open := make(chan struct{})

		convey.Convey("When jobs are queued", func() {
			q.Enqueue(ctx, queue.Job{Index: 0, Doctor: model.Doctor{ID: "a", Name: "甲", TotalFollowers: 7}, Reply: replies, Done: open})
			q.Enqueue(ctx, queue.Job{Index: 1, Doctor: model.Doctor{ID: "bad", Name: "乙"}, Reply: replies, Done: open})

			convey.Convey("Then each gets exactly one reply", func() {
				got := map[int]queue.Outcome{}
				for i := 0; i < 2; i++ {
					select {
					case o := <-replies:
						got[o.Index] = o
					case <-time.After(time.Second):
						t.Fatal("timed out waiting for replies")
					}
				}
				convey.So(got[0].Err, convey.ShouldBeNil)
				convey.So(got[0].Result.Composite, convey.ShouldEqual, 7)
				convey.So(got[1].Err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When the batch has already given up", func() {
			closed := make(chan struct{})
			close(closed)
			q.Enqueue(ctx, queue.Job{Index: 4, Doctor: model.Doctor{ID: "a", Name: "甲"}, Reply: replies, Done: closed})

			convey.Convey("Then the job is answered without scoring", func() {
				select {
				case o := <-replies:
					convey.So(o.Index, convey.ShouldEqual, 4)
					convey.So(apperr.KindOf(o.Err), convey.ShouldEqual, apperr.KindCancelled)
					scorer.mu.Lock()
					convey.So(scorer.calls, convey.ShouldEqual, 0)
					scorer.mu.Unlock()
				case <-time.After(time.Second):
					t.Fatal("timed out waiting for reply")
				}
			})
		})

		convey.Convey("When the worker is shut down", func() {
			err := w.Shutdown(context.Background())
			convey.So(err, convey.ShouldBeNil)
			convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
		})
	})
}

func TestPoolScoreAll(t *testing.T) {
	prof := profile.DefaultProfile(fixedNow)

	convey.Convey("Given a started pool that always fans out", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		scorer := &stubScorer{fail: map[string]error{
			"doc_0003": apperr.New(apperr.KindValidation, "score", "bad record"),
		}}
		pool := worker.NewPool(4, queue.NewInMemoryQueue(), scorer, worker.WithParallelThreshold(0))
		pool.Start(ctx)
		defer func() { _ = pool.Shutdown(context.Background()) }()

		convey.Convey("When a batch is scored", func() {
			ds := doctors(50)
			results, err := pool.ScoreAll(ctx, ds, prof)

			convey.Convey("Then results keep input order and failures are reported", func() {
				var batch *apperr.BatchError
				convey.So(errors.As(err, &batch), convey.ShouldBeTrue)
				convey.So(len(batch.Failures), convey.ShouldEqual, 1)
				convey.So(batch.Failures[0].ID, convey.ShouldEqual, "doc_0003")

				convey.So(len(results), convey.ShouldEqual, 49)
				want := append(docIDs(ds[:2]), docIDs(ds[3:])...)
				convey.So(resultIDs(results), convey.ShouldResemble, want)
			})
		})

		convey.Convey("When the profile is invalid", func() {
			bad := prof
			bad.Influence = 0.9
			_, err := pool.ScoreAll(ctx, doctors(3), bad)
			convey.So(apperr.KindOf(err), convey.ShouldEqual, apperr.KindValidation)
		})

		convey.Convey("When the context is already cancelled", func() {
			cctx, ccancel := context.WithCancel(ctx)
			ccancel()
			_, err := pool.ScoreAll(cctx, doctors(10), prof)
			convey.So(apperr.KindOf(err), convey.ShouldEqual, apperr.KindCancelled)
		})
	})

	convey.Convey("Given a queue too small for the batch", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		scorer := &stubScorer{}
		q := queue.NewInMemoryQueue(queue.WithCapacity(1), queue.WithBufferSize(1))
		pool := worker.NewPool(1, q, scorer, worker.WithParallelThreshold(0))
		pool.Start(ctx)
		defer func() { _ = pool.Shutdown(context.Background()) }()

		results, err := pool.ScoreAll(ctx, doctors(40), prof)

		convey.Convey("Then refused jobs are scored inline", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(resultIDs(results), convey.ShouldResemble, docIDs(doctors(40)))
			convey.So(scorer.calls, convey.ShouldEqual, 40)
		})
	})

	convey.Convey("Given a pool that was never started", t, func() {
		scorer := &stubScorer{}
		pool := worker.NewPool(2, queue.NewInMemoryQueue(), scorer, worker.WithParallelThreshold(0))

		results, err := pool.ScoreAll(context.Background(), doctors(5), prof)

		convey.Convey("Then the batch is scored inline", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(results), convey.ShouldEqual, 5)
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given the real engine behind the pool", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		engine := scoring.NewEngine(scoring.WithClock(func() time.Time { return fixedNow }))
		pool := worker.NewPool(3, queue.NewInMemoryQueue(), engine, worker.WithParallelThreshold(10))
		pool.Start(ctx)
		defer func() { _ = pool.Shutdown(context.Background()) }()

		ds := doctors(64)
		for i := range ds {
			ds[i].Price = model.Float64(float64(5000 + i*100))
			ds[i].Likes7d = model.Int64(int64(i * 10))
		}

		convey.Convey("Then parallel scoring matches sequential scoring", func() {
			parallel, err := pool.ScoreAll(ctx, ds, prof)
			convey.So(err, convey.ShouldBeNil)
			sequential, err := engine.ScoreAll(ctx, ds, prof)
			convey.So(err, convey.ShouldBeNil)
			convey.So(parallel, convey.ShouldResemble, sequential)
			convey.So(pool.Size(), convey.ShouldEqual, 3)
		})
	})
}
