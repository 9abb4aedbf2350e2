// Package scoring computes the sub-indices, composite and tier of a doctor
// under a weight profile.
package scoring

import (
	"math"

	"github.com/okian/medrank/internal/domain/model"
	"github.com/okian/medrank/internal/domain/normalize"
	"github.com/okian/medrank/internal/domain/profile"
)

// Kind tags one sub-index calculator.
type Kind int

const (
	AccountTier Kind = iota
	CostPerformance
	DataTrend
	GrowthStability
	ContentQuality
	Credibility
	ROIForecast
)

// Kinds enumerates every sub-index in declaration order.
func Kinds() []Kind {
	return []Kind{AccountTier, CostPerformance, DataTrend, GrowthStability, ContentQuality, Credibility, ROIForecast}
}

func (k Kind) String() string {
	switch k {
	case AccountTier:
		return "account_tier"
	case CostPerformance:
		return "cost_performance"
	case DataTrend:
		return "data_trend"
	case GrowthStability:
		return "growth_stability"
	case ContentQuality:
		return "content_quality"
	case Credibility:
		return "credibility"
	case ROIForecast:
		return "roi_forecast"
	default:
		return "unknown"
	}
}

// weight is the profile weight applied to k in the composite. Sub-indices
// outside the composite weigh 0.
func (k Kind) weight(w profile.Weights) float64 {
	switch k {
	case AccountTier:
		return w.Influence
	case CostPerformance:
		return w.Price
	case DataTrend:
		return w.Activity
	case ContentQuality:
		return w.Quality
	default:
		return 0
	}
}

// raw dispatches to the calculator of k without any guard.
func raw(k Kind, d *model.Doctor) float64 {
	switch k {
	case AccountTier:
		return accountTier(d)
	case CostPerformance:
		return costPerformance(d)
	case DataTrend:
		return dataTrend(d)
	case GrowthStability:
		return growthStability(d)
	case ContentQuality:
		return contentQuality(d)
	case Credibility:
		return credibility(d)
	case ROIForecast:
		return roiForecast(d)
	default:
		return 0
	}
}

// Compute returns sub-index k of d: always finite and within [0,100].
func Compute(k Kind, d model.Doctor) float64 {
	v, _ := guarded(k, &d)
	return v
}

// guarded computes k and reports whether a non-finite value was replaced.
func guarded(k Kind, d *model.Doctor) (float64, bool) {
	v := raw(k, d)
	fellBack := math.IsNaN(v) || math.IsInf(v, 0)
	return normalize.Clamp(normalize.Finite(v), 0, 100), fellBack
}
