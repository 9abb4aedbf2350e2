package scoring

import (
	"math"

	"github.com/okian/medrank/internal/domain/model"
	"github.com/okian/medrank/internal/domain/normalize"
)

// Tier thresholds.
const (
	headFollowers   = 500_000
	middleFollowers = 100_000
	headInfluence   = 80.0
	middleInfluence = 60.0
)

// Composite-influence term weights.
const (
	followerWeight    = 0.6
	playWeight        = 0.3
	interactionWeight = 0.1
)

// Influence is the composite-influence index in [0,100] used by the tier
// label. An absent play count lands in the lowest play band.
func Influence(d model.Doctor) float64 {
	followers := float64(d.TotalFollowers)
	base := followerWeight*normalize.Stepwise(normalize.FollowerNorm, followers) +
		playWeight*normalize.Stepwise(normalize.PlayNorm, count(d.AvgPlayCount)) +
		interactionWeight*normalize.InteractionNorm(count(d.Likes7d), count(d.Comments7d), count(d.Shares7d), followers)
	v := base * normalize.TitleCoefficient(d.Title) * 100
	return normalize.Clamp(normalize.Finite(v), 0, 100)
}

// TierOf labels d from its follower count and composite influence.
func TierOf(d model.Doctor, influence float64) model.Tier {
	switch {
	case d.TotalFollowers >= headFollowers || influence >= headInfluence:
		return model.TierHead
	case d.TotalFollowers >= middleFollowers || influence >= middleInfluence:
		return model.TierMiddle
	default:
		return model.TierTail
	}
}

// Params are the scale constants of the value index.
type Params struct {
	MaxFans    float64
	MaxAvgPlay float64
	BasePrice  float64
}

// DefaultParams returns the stock scale constants.
func DefaultParams() Params {
	return Params{MaxFans: 10_000_000, MaxAvgPlay: 1_000_000, BasePrice: 5_000}
}

// ValueIndex relates reach to price: a 60/40 blend of follower and play
// saturation divided by price relative to p.BasePrice. It is 0 without a
// positive price.
func ValueIndex(d model.Doctor, p Params) float64 {
	price := d.PriceOrZero()
	if price <= 0 || p.MaxFans <= 0 || p.MaxAvgPlay <= 0 || p.BasePrice <= 0 {
		return 0
	}
	fans := math.Min(float64(d.TotalFollowers)/p.MaxFans*100, 100)
	play := math.Min(count(d.AvgPlayCount)/p.MaxAvgPlay*100, 100)
	v := (0.6*fans + 0.4*play) / (price / p.BasePrice)
	return normalize.Clamp(normalize.Finite(v), 0, 100)
}
