package scoring

import (
	"math"

	"github.com/okian/medrank/internal/domain/model"
	"github.com/okian/medrank/internal/domain/normalize"
)

// Neutral values for absent inputs.
const (
	priceAbsentScore   = 50.0
	trendBase          = 50.0
	defaultPerformance = 7.5
)

// Human score weights of the content-quality index.
var qualityWeights = [4]float64{0.30, 0.25, 0.25, 0.20}

func count(p *int64) float64 {
	if p == nil {
		return 0
	}
	return float64(*p)
}

// engagementRate is the 7-day weighted interaction rate per follower.
// Absent counters count as 0.
func engagementRate(d *model.Doctor) float64 {
	return normalize.EngagementRate(count(d.Likes7d), count(d.Comments7d), count(d.Shares7d), float64(d.TotalFollowers))
}

func accountTier(d *model.Doctor) float64 {
	return normalize.Stepwise(normalize.FollowerTier, float64(d.TotalFollowers))
}

func costPerformance(d *model.Doctor) float64 {
	price := d.PriceOrZero()
	if price <= 0 {
		return priceAbsentScore
	}
	perK := normalize.PricePer1k(price, float64(d.TotalFollowers))
	score := normalize.UpTo(normalize.PricePer1kScore, perK)
	bonus := normalize.Stepwise(normalize.EngagementBonus, engagementRate(d)*100)
	return math.Min(score+bonus, 100)
}

// dataTrend compares follower deltas across windows. Windows may be
// cumulative totals, but the delta arithmetic treats them as increments.
func dataTrend(d *model.Doctor) float64 {
	score := trendBase
	if d.Followers7d != nil && d.Followers15d != nil && d.Followers30d != nil {
		// float64 so independent, unbounded counters cannot wrap.
		f7, f15, f30 := float64(*d.Followers7d), float64(*d.Followers15d), float64(*d.Followers30d)
		older := f15 - (f30 - f15)
		recent := f7 - (f15 - f7)
		switch {
		case recent > older:
			score += 20
		case recent > 0:
			score += 10
		}
	}
	if d.Works7d != nil {
		switch w := *d.Works7d; {
		case w >= 3:
			score += 15
		case w >= 1:
			score += 10
		default:
			score -= 5
		}
	}
	return normalize.Clamp(score, 0, 100)
}

func dailyLikes(d *model.Doctor) [3]float64 {
	var rates [3]float64
	for i, w := range model.Windows() {
		rates[i] = count(d.Window(w).Likes) / float64(w)
	}
	return rates
}

func growthStability(d *model.Doctor) float64 {
	rates := dailyLikes(d)
	var mean float64
	for _, r := range rates {
		mean += r
	}
	mean /= float64(len(rates))
	var variance float64
	for _, r := range rates {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(rates))
	if variance == 0 {
		return 100
	}
	return math.Min(100/(1+math.Sqrt(variance)), 100)
}

func contentQuality(d *model.Doctor) float64 {
	scores := [4]*float64{d.PerformanceScore, d.AffinityScore, d.EditingScore, d.VideoQualityScore}
	var sum, weight float64
	for i, s := range scores {
		if s == nil {
			continue
		}
		sum += *s * qualityWeights[i]
		weight += qualityWeights[i]
	}
	if weight == 0 {
		return 0
	}
	return sum / weight * 10
}

func credibility(d *model.Doctor) float64 {
	performance := defaultPerformance
	if d.PerformanceScore != nil {
		performance = *d.PerformanceScore
	}
	blended := 0.6*normalize.TitleTierScore(d.Title) + 0.4*performance*10
	return math.Min(blended*normalize.DepartmentCoefficient(d.Department), 100)
}

func roiForecast(d *model.Doctor) float64 {
	price := d.PriceOrZero()
	if price <= 0 {
		return 0
	}
	exposure := float64(d.TotalFollowers) * engagementRate(d) * 0.3
	conversions := exposure * (normalize.Clamp(normalize.Finite(contentQuality(d)), 0, 100) / 100) * 0.02
	roi := conversions * 50 / price
	return math.Min(roi*100, 100)
}
