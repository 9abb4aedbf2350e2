package model

import "time"

// Tier is the account tier label.
type Tier string

const (
	TierHead   Tier = "head"
	TierMiddle Tier = "middle"
	TierTail   Tier = "tail"
)

// Tiers lists the labels from highest to lowest.
func Tiers() []Tier { return []Tier{TierHead, TierMiddle, TierTail} }

// SubIndices holds the seven [0,100] sub-scores of one doctor.
type SubIndices struct {
	AccountTier     float64 `json:"account_tier"`
	CostPerformance float64 `json:"cost_performance"`
	DataTrend       float64 `json:"data_trend"`
	GrowthStability float64 `json:"growth_stability"`
	ContentQuality  float64 `json:"content_quality"`
	Credibility     float64 `json:"credibility"`
	ROIForecast     float64 `json:"roi_forecast"`
}

// Values returns the sub-indices in declaration order.
func (s SubIndices) Values() [7]float64 {
	return [7]float64{
		s.AccountTier, s.CostPerformance, s.DataTrend, s.GrowthStability,
		s.ContentQuality, s.Credibility, s.ROIForecast,
	}
}

// Get returns the i-th sub-index in declaration order, 0 when out of range.
func (s SubIndices) Get(i int) float64 {
	v := s.Values()
	if i < 0 || i >= len(v) {
		return 0
	}
	return v[i]
}

// Set stores v as the i-th sub-index. Out-of-range indexes are ignored.
func (s *SubIndices) Set(i int, v float64) {
	switch i {
	case 0:
		s.AccountTier = v
	case 1:
		s.CostPerformance = v
	case 2:
		s.DataTrend = v
	case 3:
		s.GrowthStability = v
	case 4:
		s.ContentQuality = v
	case 5:
		s.Credibility = v
	case 6:
		s.ROIForecast = v
	}
}

// ScoringRecord is the persisted result of scoring one doctor under one
// profile. Rank is 1-based within the profile's latest batch, 0 if unranked.
type ScoringRecord struct {
	DoctorID   string     `json:"doctor_id"`
	ProfileID  string     `json:"profile_id"`
	SubIndices SubIndices `json:"sub_indices"`
	Composite  float64    `json:"composite"`
	Tier       Tier       `json:"tier"`
	Influence  float64    `json:"influence"`
	ValueIndex float64    `json:"value_index"`
	Rank       int        `json:"rank"`
	ComputedAt time.Time  `json:"computed_at"`
}
