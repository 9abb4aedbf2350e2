package service_test

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/medrank/internal/adapters/repository"
	service "github.com/okian/medrank/internal/app"
	"github.com/okian/medrank/internal/domain/apperr"
	"github.com/okian/medrank/internal/domain/model"
	"github.com/okian/medrank/internal/domain/profile"
	"github.com/okian/medrank/internal/domain/report"
)

func TestServiceIntegration(t *testing.T) {
	Convey("Given a service on SQLite that fans scoring out to workers", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		store, err := repository.OpenSQLite(ctx, "")
		So(err, ShouldBeNil)

		svc := service.New(
			service.WithStore(store),
			service.WithWorkerCount(4),
			service.WithQueueSize(64),
			service.WithParallelThreshold(10),
			service.WithClock(tickingClock()),
			service.WithIDGenerator(sequentialIDs()),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		seed(ctx, svc, catalog(120))

		Convey("When the catalog is recalculated under two profiles", func() {
			base, err := svc.RecalculateAll(ctx, "")
			So(err, ShouldBeNil)

			brand, err := svc.CreateFromPreset(ctx, profile.PresetBrandFocused)
			So(err, ShouldBeNil)
			res, err := svc.RecalculateAll(ctx, brand.ID)
			So(err, ShouldBeNil)

			Convey("Then each profile keeps its own ranking of the whole catalog", func() {
				So(base.Updated, ShouldEqual, 120)
				So(res.Updated, ShouldEqual, 120)
				So(res.ProfileName, ShouldEqual, brand.Name)

				for _, id := range []string{base.ProfileID, brand.ID} {
					top, err := svc.TopScores(ctx, id, 500)
					So(err, ShouldBeNil)
					So(len(top), ShouldEqual, 120)
					seen := map[string]bool{}
					for i, r := range top {
						So(r.Rank, ShouldEqual, i+1)
						So(r.ProfileID, ShouldEqual, id)
						seen[r.DoctorID] = true
					}
					So(len(seen), ShouldEqual, 120)
				}
			})

			Convey("Then the ranking report agrees with the stored ranking", func() {
				rep, err := svc.BuildReport(ctx, report.Request{Kind: report.KindRanking, ProfileID: brand.ID})
				So(err, ShouldBeNil)
				top, err := svc.TopScores(ctx, brand.ID, 500)
				So(err, ShouldBeNil)
				So(len(rep.Data.Rankings), ShouldEqual, len(top))
				for i := range top {
					So(rep.Data.Rankings[i].Doctor.ID, ShouldEqual, top[i].DoctorID)
				}
			})

			Convey("Then retiring a profile drops its ranking", func() {
				So(svc.DeleteProfile(ctx, brand.ID), ShouldBeNil)
				_, err := svc.TopScores(ctx, brand.ID, 5)
				So(apperr.KindOf(err), ShouldEqual, apperr.KindNotFound)
			})
		})

		Convey("When a doctor changes and the catalog is recalculated", func() {
			_, err := svc.RecalculateAll(ctx, "")
			So(err, ShouldBeNil)

			d, err := svc.GetDoctor(ctx, "doc_0001")
			So(err, ShouldBeNil)
			d.TotalFollowers = 5_000_000
			d.AvgPlayCount = model.Int64(800_000)
			_, err = svc.UpsertDoctor(ctx, d)
			So(err, ShouldBeNil)
			_, err = svc.RecalculateAll(ctx, "")
			So(err, ShouldBeNil)

			Convey("Then the stored record matches an on-demand score", func() {
				got, err := svc.ScoreDoctor(ctx, "doc_0001", "")
				So(err, ShouldBeNil)
				So(got.Doctor.TotalFollowers, ShouldEqual, 5_000_000)
				So(got.Score.Rank, ShouldBeGreaterThan, 0)

				top, err := svc.TopScores(ctx, "", 500)
				So(err, ShouldBeNil)
				stored := top[got.Score.Rank-1]
				So(stored.DoctorID, ShouldEqual, "doc_0001")
				So(stored.Composite, ShouldAlmostEqual, got.Score.Composite, 1e-9)
			})
		})
	})
}
