package normalize_test

import (
	"math"
	"testing"

	"github.com/okian/medrank/internal/domain/normalize"
	. "github.com/smartystreets/goconvey/convey"
)

func TestStepwise(t *testing.T) {
	Convey("Given the follower tier table", t, func() {
		cases := []struct {
			followers float64
			want      float64
		}{
			{2e6, 90}, {1e6, 90}, {999999, 80}, {5e5, 80}, {150000, 70},
			{1e5, 70}, {50000, 60}, {10000, 50}, {9999, 30}, {0, 30},
		}
		for _, c := range cases {
			So(normalize.Stepwise(normalize.FollowerTier, c.followers), ShouldEqual, c.want)
		}

		Convey("Then NaN lands in the floor band", func() {
			So(normalize.Stepwise(normalize.FollowerTier, math.NaN()), ShouldEqual, 30)
			So(normalize.Stepwise(nil, 10), ShouldEqual, 0)
		})
	})

	Convey("Given the follower and play norm tables", t, func() {
		So(normalize.Stepwise(normalize.FollowerNorm, 80000), ShouldEqual, 0.6)
		So(normalize.Stepwise(normalize.FollowerNorm, 200000), ShouldEqual, 0.8)
		So(normalize.Stepwise(normalize.FollowerNorm, 999), ShouldEqual, 0.1)
		So(normalize.Stepwise(normalize.PlayNorm, 600000), ShouldEqual, 1.0)
		So(normalize.Stepwise(normalize.PlayNorm, 2000), ShouldEqual, 0.3)
		So(normalize.Stepwise(normalize.PlayNorm, 0), ShouldEqual, 0.1)
	})

	Convey("Given the price-per-1k table", t, func() {
		So(normalize.UpTo(normalize.PricePer1kScore, 50), ShouldEqual, 95)
		So(normalize.UpTo(normalize.PricePer1kScore, 66.67), ShouldEqual, 85)
		So(normalize.UpTo(normalize.PricePer1kScore, 1000), ShouldEqual, 55)
		So(normalize.UpTo(normalize.PricePer1kScore, 1000.01), ShouldEqual, 35)
		So(normalize.UpTo(normalize.PricePer1kScore, math.Inf(1)), ShouldEqual, 35)
	})

	Convey("Given the engagement bonus table", t, func() {
		So(normalize.Stepwise(normalize.EngagementBonus, 12), ShouldEqual, 10)
		So(normalize.Stepwise(normalize.EngagementBonus, 5), ShouldEqual, 5)
		So(normalize.Stepwise(normalize.EngagementBonus, 2.5), ShouldEqual, 2)
		So(normalize.Stepwise(normalize.EngagementBonus, 1.99), ShouldEqual, 0)
	})
}

func TestRatios(t *testing.T) {
	Convey("Given ratio normalizers", t, func() {
		Convey("When followers are zero", func() {
			So(normalize.EngagementRate(10, 1, 1, 0), ShouldEqual, 0)
			So(normalize.InteractionNorm(10, 1, 1, 0), ShouldEqual, 0)
			So(math.IsInf(normalize.PricePer1k(100, 0), 1), ShouldBeTrue)
		})

		Convey("When followers are positive", func() {
			So(normalize.EngagementRate(100, 10, 10, 1000), ShouldAlmostEqual, 0.15, 1e-12)
			So(normalize.PricePer1k(10000, 150000), ShouldAlmostEqual, 66.6666, 1e-3)
			So(normalize.PricePer1k(1, 1e9), ShouldEqual, 1)
			So(normalize.InteractionNorm(80, 0, 0, 80000), ShouldEqual, 1)
			So(normalize.InteractionNorm(4, 0, 0, 80000), ShouldAlmostEqual, 0.05, 1e-12)
		})
	})
}

func TestLogCompressed(t *testing.T) {
	Convey("Given the log curve", t, func() {
		So(normalize.LogCompressed(0, 15, 50), ShouldEqual, 0)
		So(normalize.LogCompressed(-5, 15, 50), ShouldEqual, 0)
		So(normalize.LogCompressed(math.NaN(), 15, 50), ShouldEqual, 0)
		So(normalize.LogCompressed(1, 15, 50), ShouldEqual, 50)
		So(normalize.LogTrend(math.E), ShouldAlmostEqual, 65, 1e-9)
		So(normalize.ContentEfficiency(1e12), ShouldEqual, 100)
		So(normalize.ContentEfficiency(1e-6), ShouldEqual, 0)
	})
}

func TestClampFinite(t *testing.T) {
	Convey("Given clamp and finite guards", t, func() {
		So(normalize.Finite(math.Inf(1)), ShouldEqual, 0)
		So(normalize.Finite(math.NaN()), ShouldEqual, 0)
		So(normalize.Finite(42), ShouldEqual, 42)
		So(normalize.Clamp(120, 0, 100), ShouldEqual, 100)
		So(normalize.Clamp(-1, 0, 100), ShouldEqual, 0)
		So(normalize.Clamp(math.NaN(), 0, 100), ShouldEqual, 0)
	})
}

func TestLabels(t *testing.T) {
	Convey("Given title and department labels", t, func() {
		Convey("Then known titles map to their coefficients", func() {
			So(normalize.TitleCoefficient("主任医师"), ShouldEqual, 1.2)
			So(normalize.TitleCoefficient(" 教授 "), ShouldEqual, 1.2)
			So(normalize.TitleCoefficient("副教授"), ShouldEqual, 1.1)
			So(normalize.TitleCoefficient("主治医师"), ShouldEqual, 1.05)
			So(normalize.TitleCoefficient("住院医师"), ShouldEqual, 1.0)
			So(normalize.TitleCoefficient("医师"), ShouldEqual, 1.0)
		})

		Convey("Then title tier scores follow seniority", func() {
			So(normalize.TitleTierScore("副主任医师"), ShouldEqual, 80)
			So(normalize.TitleTierScore("住院医师"), ShouldEqual, 60)
			So(normalize.TitleTierScore(""), ShouldEqual, 50)
		})

		Convey("Then departments map to credibility coefficients", func() {
			So(normalize.DepartmentCoefficient("心内科"), ShouldEqual, 1.1)
			So(normalize.DepartmentCoefficient("神经内科"), ShouldEqual, 1.05)
			So(normalize.DepartmentCoefficient("妇科"), ShouldEqual, 0.95)
			So(normalize.DepartmentCoefficient("骨科"), ShouldEqual, 1.0)
		})

		Convey("Then labels are NFC canonical", func() {
			So(normalize.Label("e\u0301"), ShouldEqual, "\u00e9")
			So(normalize.Label("  北京 "), ShouldEqual, "北京")
		})
	})
}
