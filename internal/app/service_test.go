package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/medrank/internal/adapters/repository"
	service "github.com/okian/medrank/internal/app"
	"github.com/okian/medrank/internal/domain/apperr"
	"github.com/okian/medrank/internal/domain/model"
	"github.com/okian/medrank/internal/domain/profile"
	"github.com/okian/medrank/internal/domain/report"
	"github.com/okian/medrank/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func tickingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("p%02d", n)
	}
}

func catalog(n int) []model.Doctor {
	regions := []string{"北京", "上海", "广州"}
	out := make([]model.Doctor, n)
	for i := range out {
		out[i] = model.Doctor{
			ID:             fmt.Sprintf("doc_%04d", i+1),
			Name:           fmt.Sprintf("医生%d", i+1),
			Title:          "主任医师",
			Department:     "心内科",
			Region:         regions[i%len(regions)],
			TotalFollowers: int64(1000 * (i + 1)),
			TotalLikes:     int64(5000 * (i + 1)),
			TotalWorks:     int64(10 + i),
			Price:          model.Float64(float64(2000 + 500*i)),
			Likes7d:        model.Int64(int64(100 * (i + 1))),
			Likes15d:       model.Int64(int64(180 * (i + 1))),
			Likes30d:       model.Int64(int64(300 * (i + 1))),
		}
	}
	return out
}

func startService(opts ...service.Option) (*service.Service, context.Context, func()) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	opts = append([]service.Option{
		service.WithWorkerCount(2),
		service.WithClock(tickingClock()),
		service.WithIDGenerator(sequentialIDs()),
	}, opts...)
	svc := service.New(opts...)
	if err := svc.Start(ctx); err != nil {
		panic(err)
	}
	return svc, ctx, func() {
		svc.Stop()
		cancel()
	}
}

func seed(ctx context.Context, svc *service.Service, doctors []model.Doctor) {
	for _, d := range doctors {
		if _, err := svc.UpsertDoctor(ctx, d); err != nil {
			panic(err)
		}
	}
}

// brokenStore serves one extra doctor that never passed validation.
type brokenStore struct {
	repository.Store
	extra model.Doctor
}

func (b *brokenStore) ListDoctors(ctx context.Context) ([]model.Doctor, error) {
	ds, err := b.Store.ListDoctors(ctx)
	if err != nil {
		return nil, err
	}
	return append(ds, b.extra), nil
}

// failingScores refuses to write scores.
type failingScores struct {
	repository.Store
}

func (f *failingScores) ReplaceScores(ctx context.Context, profileID string, records []model.ScoringRecord) error {
	return apperr.Wrap(apperr.KindStore, "replace_scores", errors.New("disk full"))
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(service.WithWorkerCount(2))

		Convey("When it is used before Start", func() {
			_, err := svc.ListProfiles(context.Background())

			Convey("Then the call is refused", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})
		})

		Convey("When starting the service", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			defer svc.Stop()
			err := svc.Start(ctx)

			Convey("Then it should start successfully with a default profile", func() {
				So(err, ShouldBeNil)
				So(svc.Start(ctx), ShouldBeNil)

				def, err := svc.DefaultProfile(ctx)
				So(err, ShouldBeNil)
				So(def.IsDefault, ShouldBeTrue)
				So(def.Name, ShouldEqual, profile.DefaultName)

				stats, err := svc.Stats(ctx)
				So(err, ShouldBeNil)
				So(stats.Started, ShouldBeTrue)
				So(stats.Profiles, ShouldEqual, 1)
				So(stats.Workers, ShouldEqual, 2)
				So(svc.Deduper(), ShouldNotBeNil)
			})
		})
	})

	Convey("Given a service seeding preset profiles", t, func() {
		svc, ctx, stop := startService(service.WithSeedProfiles(true))
		defer stop()

		Convey("Then every preset is stored next to the default", func() {
			ps, err := svc.ListProfiles(ctx)
			So(err, ShouldBeNil)
			So(len(ps), ShouldEqual, len(profile.Presets())+1)
			So(ps[0].IsDefault, ShouldBeTrue)
		})
	})
}

func TestService_Profiles(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc, ctx, stop := startService()
		defer stop()
		base, err := svc.DefaultProfile(ctx)
		So(err, ShouldBeNil)

		Convey("When a profile is created", func() {
			p, err := svc.CreateProfile(ctx, model.WeightProfile{
				Name: "  品牌  ", Influence: 0.1, Activity: 0.2, Quality: 0.3, Price: 0.4,
			})

			Convey("Then it is stored with a fresh id and trimmed name", func() {
				So(err, ShouldBeNil)
				So(p.ID, ShouldNotEqual, base.ID)
				So(p.Name, ShouldEqual, "品牌")
				So(p.IsDefault, ShouldBeFalse)
				So(p.State, ShouldEqual, model.StateStored)
			})

			Convey("Then it can be updated", func() {
				p.Quality, p.Price = 0.4, 0.3
				up, err := svc.UpdateProfile(ctx, p.ID, p)
				So(err, ShouldBeNil)
				So(up.Quality, ShouldEqual, 0.4)
			})

			Convey("Then activating it moves the default", func() {
				act, err := svc.ActivateProfile(ctx, p.ID)
				So(err, ShouldBeNil)
				So(act.IsDefault, ShouldBeTrue)

				def, err := svc.DefaultProfile(ctx)
				So(err, ShouldBeNil)
				So(def.ID, ShouldEqual, p.ID)

				old, err := svc.GetProfile(ctx, base.ID)
				So(err, ShouldBeNil)
				So(old.IsDefault, ShouldBeFalse)
			})

			Convey("Then deleting it hides it", func() {
				So(svc.DeleteProfile(ctx, p.ID), ShouldBeNil)
				_, err := svc.GetProfile(ctx, p.ID)
				So(apperr.KindOf(err), ShouldEqual, apperr.KindNotFound)
			})
		})

		Convey("When a profile is created as default", func() {
			p, err := svc.CreateProfile(ctx, model.WeightProfile{
				Name: "积极", Influence: 0.4, Activity: 0.2, Quality: 0.2, Price: 0.2, IsDefault: true,
			})

			Convey("Then it replaces the default", func() {
				So(err, ShouldBeNil)
				So(p.IsDefault, ShouldBeTrue)
				ps, err := svc.ListProfiles(ctx)
				So(err, ShouldBeNil)
				defaults := 0
				for _, x := range ps {
					if x.IsDefault {
						defaults++
					}
				}
				So(defaults, ShouldEqual, 1)
			})
		})

		Convey("When the weights do not sum to one", func() {
			_, err := svc.CreateProfile(ctx, model.WeightProfile{
				Name: "坏", Influence: 0.5, Activity: 0.5, Quality: 0.5, Price: 0.5,
			})

			Convey("Then creation is a validation error", func() {
				So(apperr.KindOf(err), ShouldEqual, apperr.KindValidation)
				check := svc.ValidateWeights(profile.Weights{Influence: 0.5, Activity: 0.5, Quality: 0.5, Price: 0.5})
				So(check.Valid, ShouldBeFalse)
				So(check.Total, ShouldEqual, 2)
			})
		})

		Convey("When the default is deleted", func() {
			err := svc.DeleteProfile(ctx, base.ID)

			Convey("Then it conflicts and the default stays", func() {
				So(apperr.KindOf(err), ShouldEqual, apperr.KindConflict)
				So(errors.Is(err, profile.ErrDeleteDefault), ShouldBeTrue)
				def, err := svc.DefaultProfile(ctx)
				So(err, ShouldBeNil)
				So(def.ID, ShouldEqual, base.ID)
			})
		})

		Convey("When a preset is used", func() {
			p, err := svc.CreateFromPreset(ctx, profile.PresetConservative)
			_, unknownErr := svc.CreateFromPreset(ctx, "nope")

			Convey("Then a stored profile carries the preset weights", func() {
				So(err, ShouldBeNil)
				So(p.Price, ShouldEqual, 0.40)
				So(p.IsDefault, ShouldBeFalse)
				So(errors.Is(unknownErr, service.ErrUnknownPreset), ShouldBeTrue)
				So(apperr.KindOf(unknownErr), ShouldEqual, apperr.KindNotFound)
				So(len(svc.Presets()), ShouldEqual, len(profile.Presets()))
			})
		})

		Convey("When weights are analysed against a doctor", func() {
			seed(ctx, svc, catalog(1))
			w := profile.Weights{Influence: 0.7, Activity: 0.1, Quality: 0.1, Price: 0.1}
			withSample, err := svc.AnalyzeProfile(ctx, w, "doc_0001")
			bare, bareErr := svc.AnalyzeProfile(ctx, w, "")
			_, missingErr := svc.AnalyzeProfile(ctx, w, "missing")

			Convey("Then a composite is predicted only with a sample", func() {
				So(err, ShouldBeNil)
				So(withSample.Predicted, ShouldNotBeNil)
				So(bareErr, ShouldBeNil)
				So(bare.Predicted, ShouldBeNil)
				So(bare.RiskLevel, ShouldEqual, withSample.RiskLevel)
				So(apperr.KindOf(missingErr), ShouldEqual, apperr.KindNotFound)
			})
		})
	})
}

func TestService_ActivationIsAtomic(t *testing.T) {
	Convey("Given readers running while the default flips back and forth", t, func() {
		svc, ctx, stop := startService()
		defer stop()
		base, _ := svc.DefaultProfile(ctx)
		other, err := svc.CreateFromPreset(ctx, profile.PresetBalanced)
		So(err, ShouldBeNil)

		var wg sync.WaitGroup
		done := make(chan struct{})
		var readErr error
		var errMu sync.Mutex
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-done:
						return
					default:
					}
					p, err := svc.DefaultProfile(ctx)
					if err == nil && !p.IsDefault {
						err = fmt.Errorf("profile %s returned as default without the flag", p.ID)
					}
					if err == nil && p.ID != base.ID && p.ID != other.ID {
						err = fmt.Errorf("unexpected default %s", p.ID)
					}
					if err != nil {
						errMu.Lock()
						readErr = err
						errMu.Unlock()
						return
					}
				}
			}()
		}

		for i := 0; i < 50; i++ {
			target := other.ID
			if i%2 == 1 {
				target = base.ID
			}
			_, err := svc.ActivateProfile(ctx, target)
			So(err, ShouldBeNil)
		}
		close(done)
		wg.Wait()

		Convey("Then every read saw exactly one of the two profiles as default", func() {
			So(readErr, ShouldBeNil)
			ps, err := svc.ListProfiles(ctx)
			So(err, ShouldBeNil)
			defaults := 0
			for _, p := range ps {
				if p.IsDefault {
					defaults++
				}
			}
			So(defaults, ShouldEqual, 1)
		})
	})
}

func TestService_Doctors(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc, ctx, stop := startService(service.WithMaxListLimit(2))
		defer stop()

		Convey("When a doctor is stored twice", func() {
			d := catalog(1)[0]
			d.Region = " 北京 "
			first, err := svc.UpsertDoctor(ctx, d)
			So(err, ShouldBeNil)
			d.TotalFollowers = 99
			second, err := svc.UpsertDoctor(ctx, d)
			So(err, ShouldBeNil)

			Convey("Then the creation time is kept and labels are trimmed", func() {
				So(second.CreatedAt, ShouldEqual, first.CreatedAt)
				So(second.UpdatedAt.After(first.UpdatedAt), ShouldBeTrue)
				got, err := svc.GetDoctor(ctx, d.ID)
				So(err, ShouldBeNil)
				So(got.TotalFollowers, ShouldEqual, 99)
				So(got.Region, ShouldEqual, "北京")
			})
		})

		Convey("When a doctor is invalid", func() {
			_, err := svc.UpsertDoctor(ctx, model.Doctor{ID: "x", Name: "甲", TotalFollowers: -1})

			Convey("Then it is a validation error", func() {
				So(apperr.KindOf(err), ShouldEqual, apperr.KindValidation)
				_, err := svc.GetDoctor(ctx, "x")
				So(apperr.KindOf(err), ShouldEqual, apperr.KindNotFound)
			})
		})

		Convey("When the catalog is paged", func() {
			seed(ctx, svc, catalog(5))
			page, err := svc.ListDoctors(ctx, 4, 10)
			So(err, ShouldBeNil)
			beyond, err := svc.ListDoctors(ctx, 9, 0)
			So(err, ShouldBeNil)
			_, negErr := svc.ListDoctors(ctx, -1, 1)

			Convey("Then the limit is capped and offsets are honoured", func() {
				So(page.Total, ShouldEqual, 5)
				So(page.Limit, ShouldEqual, 2)
				So(len(page.Doctors), ShouldEqual, 1)
				So(page.Doctors[0].ID, ShouldEqual, "doc_0005")
				So(beyond.Doctors, ShouldBeEmpty)
				So(apperr.KindOf(negErr), ShouldEqual, apperr.KindValidation)
			})
		})

		Convey("When a CSV with a bad row is imported", func() {
			in := "id,name,total_followers,region\n" +
				"c1,甲,100,北京\n" +
				"c2,乙,-3,上海\n" +
				"c3,丙,300,广州\n"
			out, err := svc.ImportCSV(ctx, strings.NewReader(in))

			Convey("Then the good rows are stored and the bad one reported", func() {
				So(err, ShouldBeNil)
				So(out.Accepted, ShouldEqual, 2)
				So(out.Rejected, ShouldEqual, 1)
				page, err := svc.ListDoctors(ctx, 0, 0)
				So(err, ShouldBeNil)
				So(page.Total, ShouldEqual, 2)
			})
		})

		Convey("When JSON is imported", func() {
			out, err := svc.ImportJSON(ctx, strings.NewReader(`[{"id":"j1","name":"甲","total_followers":10}]`))

			Convey("Then the doctor is stored", func() {
				So(err, ShouldBeNil)
				So(out.Accepted, ShouldEqual, 1)
				_, err := svc.GetDoctor(ctx, "j1")
				So(err, ShouldBeNil)
				tpl, err := svc.ImportTemplate()
				So(err, ShouldBeNil)
				So(tpl.Headers, ShouldContain, "total_followers")
			})
		})
	})
}

func TestService_Scoring(t *testing.T) {
	Convey("Given a service with a small catalog", t, func() {
		svc, ctx, stop := startService()
		defer stop()
		seed(ctx, svc, catalog(6))

		Convey("When every doctor is recalculated", func() {
			res, err := svc.RecalculateAll(ctx, "")
			So(err, ShouldBeNil)

			Convey("Then the summary names the default profile", func() {
				def, _ := svc.DefaultProfile(ctx)
				So(res.Updated, ShouldEqual, 6)
				So(res.Total, ShouldEqual, 6)
				So(res.ProfileID, ShouldEqual, def.ID)
				So(res.ProfileName, ShouldEqual, def.Name)
			})

			Convey("Then stored ranks agree with on-demand scores", func() {
				top, err := svc.TopScores(ctx, "", 10)
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 6)
				for i, r := range top {
					So(r.Rank, ShouldEqual, i+1)
					if i > 0 {
						So(r.Composite, ShouldBeLessThanOrEqualTo, top[i-1].Composite)
					}
					got, err := svc.ScoreDoctor(ctx, r.DoctorID, "")
					So(err, ShouldBeNil)
					So(got.Score.Rank, ShouldEqual, r.Rank)
					So(got.Score.Composite, ShouldAlmostEqual, r.Composite, 1e-9)
					So(got.Score.Composite, ShouldBeBetweenOrEqual, 0, 100)
				}
			})

			Convey("Then a second run gives the same ranking", func() {
				before, _ := svc.TopScores(ctx, "", 10)
				_, err := svc.RecalculateAll(ctx, "")
				So(err, ShouldBeNil)
				after, _ := svc.TopScores(ctx, "", 10)
				So(len(after), ShouldEqual, len(before))
				for i := range before {
					So(after[i].DoctorID, ShouldEqual, before[i].DoctorID)
				}
			})
		})

		Convey("When a doctor is scored before any recalculation", func() {
			got, err := svc.ScoreDoctor(ctx, "doc_0002", "")

			Convey("Then it has no rank but carries the assessment", func() {
				So(err, ShouldBeNil)
				So(got.Score.Rank, ShouldEqual, 0)
				So(got.Profile.Name, ShouldEqual, profile.DefaultName)
				So(got.Quality.Advice, ShouldNotBeEmpty)
				So(got.CostEfficiency, ShouldBeGreaterThan, 0)
			})
		})

		Convey("When the profile is unknown", func() {
			_, err := svc.RecalculateAll(ctx, "missing")
			_, scoreErr := svc.ScoreDoctor(ctx, "doc_0001", "missing")

			Convey("Then both calls are not found", func() {
				So(apperr.KindOf(err), ShouldEqual, apperr.KindNotFound)
				So(apperr.KindOf(scoreErr), ShouldEqual, apperr.KindNotFound)
			})
		})

		Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := svc.RecalculateAll(cctx, "")

			Convey("Then the recalculation is cancelled", func() {
				So(apperr.KindOf(err), ShouldEqual, apperr.KindCancelled)
			})
		})
	})

	Convey("Given a catalog holding a record that cannot be scored", t, func() {
		mem := repository.NewMemoryStore(context.Background())
		broken := &brokenStore{Store: mem, extra: model.Doctor{ID: "zz_broken", Name: "", TotalFollowers: 1}}
		svc, ctx, stop := startService(service.WithStore(broken), service.WithMaxBatchFailures(5))
		defer stop()
		seed(ctx, svc, catalog(3))
		def, _ := svc.DefaultProfile(ctx)

		Convey("When every doctor is recalculated", func() {
			_, err := svc.RecalculateAll(ctx, "")

			Convey("Then the whole batch fails and nothing is stored", func() {
				var batch *apperr.BatchError
				So(errors.As(err, &batch), ShouldBeTrue)
				So(batch.Limit, ShouldEqual, 5)
				So(len(batch.Failures), ShouldEqual, 1)
				So(batch.Failures[0].ID, ShouldEqual, "zz_broken")
				So(err.Error(), ShouldContainSubstring, "zz_broken")

				top, err := mem.TopScores(ctx, def.ID, 10)
				So(err, ShouldBeNil)
				So(top, ShouldBeEmpty)
			})
		})
	})

	Convey("Given a store that cannot write scores", t, func() {
		mem := repository.NewMemoryStore(context.Background())
		svc, ctx, stop := startService(service.WithStore(&failingScores{Store: mem}))
		defer stop()
		seed(ctx, svc, catalog(2))

		Convey("Then the recalculation reports the store error", func() {
			_, err := svc.RecalculateAll(ctx, "")
			So(apperr.KindOf(err), ShouldEqual, apperr.KindStore)
		})
	})
}

func TestService_Reports(t *testing.T) {
	Convey("Given a service with a catalog", t, func() {
		svc, ctx, stop := startService()
		defer stop()
		seed(ctx, svc, catalog(6))

		Convey("When a ranking report is built for one region", func() {
			rep, err := svc.BuildReport(ctx, report.Request{
				Kind:   report.KindRanking,
				Filter: report.Filter{Regions: []string{"北京"}},
			})

			Convey("Then only that region is ranked under the default", func() {
				So(err, ShouldBeNil)
				So(rep.Metadata.TotalDoctors, ShouldEqual, 2)
				So(rep.Metadata.Profile.Name, ShouldEqual, profile.DefaultName)
				for i, e := range rep.Data.Rankings {
					So(e.Doctor.Region, ShouldEqual, "北京")
					So(e.Record.Rank, ShouldEqual, i+1)
				}
			})
		})

		Convey("When a CSV export is requested", func() {
			rep, err := svc.BuildReport(ctx, report.Request{Kind: report.KindExportCSV})

			Convey("Then the report carries CSV bytes", func() {
				So(err, ShouldBeNil)
				So(len(rep.CSV), ShouldBeGreaterThan, 0)
			})
		})

		Convey("When the profile does not exist", func() {
			_, err := svc.BuildReport(ctx, report.Request{Kind: report.KindOverview, ProfileID: "missing"})

			Convey("Then the report is not found", func() {
				So(apperr.KindOf(err), ShouldEqual, apperr.KindNotFound)
			})
		})
	})
}
