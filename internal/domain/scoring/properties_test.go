package scoring_test

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/okian/medrank/internal/domain/model"
	"github.com/okian/medrank/internal/domain/scoring"
)

func propertyParameters() *gopter.TestParameters {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	return parameters
}

// doctorFrom builds a doctor from generated values. Negative window values
// stand for absent counters.
func doctorFrom(followers int64, price float64, likes7, works7, followers7 int64, perf float64) model.Doctor {
	d := model.Doctor{ID: "gen", Name: "gen", TotalFollowers: followers, Price: model.Float64(price)}
	if likes7 >= 0 {
		d.Likes7d = model.Int64(likes7)
		d.Likes15d = model.Int64(likes7 * 2)
		d.Likes30d = model.Int64(likes7 * 3)
	}
	if works7 >= 0 {
		d.Works7d = model.Int64(works7)
	}
	if followers7 >= 0 {
		d.Followers7d = model.Int64(followers7)
		d.Followers15d = model.Int64(followers7 + 10)
		d.Followers30d = model.Int64(followers7 * 4)
	}
	if perf >= 0 {
		d.PerformanceScore = model.Float64(perf)
		d.EditingScore = model.Float64(10 - perf)
	}
	return d
}

func TestSubIndexProperties(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())
	engine := scoring.NewEngine(scoring.WithClock(func() time.Time { return fixedNow }))
	ctx := context.Background()

	properties.Property("sub-indices and composite stay within [0,100]", prop.ForAll(
		func(followers int64, price float64, likes7, works7, followers7 int64, perf float64) bool {
			d := doctorFrom(followers, price, likes7, works7, followers7, perf)
			r, err := engine.Score(ctx, d, equalWeights())
			if err != nil {
				return false
			}
			for _, v := range r.SubIndices.Values() {
				if v < 0 || v > 100 {
					return false
				}
			}
			return r.Composite >= 0 && r.Composite <= 100 && r.Influence >= 0 && r.Influence <= 100 &&
				r.ValueIndex >= 0 && r.ValueIndex <= 100
		},
		gen.Int64Range(0, 20_000_000),
		gen.Float64Range(0, 500_000),
		gen.Int64Range(-1, 2_000_000),
		gen.Int64Range(-1, 50),
		gen.Int64Range(-1, 100_000),
		gen.Float64Range(-1, 10),
	))

	properties.Property("scoring the same input twice is identical", prop.ForAll(
		func(followers int64, price float64, likes7 int64) bool {
			d := doctorFrom(followers, price, likes7, 2, likes7, 7)
			a, errA := engine.Score(ctx, d, equalWeights())
			b, errB := engine.Score(ctx, d, equalWeights())
			return errA == nil && errB == nil && reflect.DeepEqual(a, b)
		},
		gen.Int64Range(0, 5_000_000),
		gen.Float64Range(0, 200_000),
		gen.Int64Range(0, 100_000),
	))

	properties.Property("more followers never lower account tier or influence", prop.ForAll(
		func(followers, extra, play int64) bool {
			base := model.Doctor{ID: "a", Name: "a", Title: "主治医师", TotalFollowers: followers, AvgPlayCount: model.Int64(play)}
			more := base
			more.TotalFollowers = followers + extra
			return scoring.Compute(scoring.AccountTier, more) >= scoring.Compute(scoring.AccountTier, base) &&
				scoring.Influence(more) >= scoring.Influence(base)
		},
		gen.Int64Range(0, 5_000_000),
		gen.Int64Range(0, 5_000_000),
		gen.Int64Range(0, 1_000_000),
	))

	properties.Property("a higher quoted price never raises cost-performance", prop.ForAll(
		func(followers int64, price, extra float64, likes7 int64) bool {
			d := doctorFrom(followers, price, likes7, -1, -1, -1)
			dearer := d
			dearer.Price = model.Float64(price + extra)
			return scoring.Compute(scoring.CostPerformance, dearer) <= scoring.Compute(scoring.CostPerformance, d)
		},
		gen.Int64Range(0, 5_000_000),
		gen.Float64Range(1, 200_000),
		gen.Float64Range(0, 200_000),
		gen.Int64Range(0, 500_000),
	))

	properties.TestingRun(t)
}
