package report

import (
	"fmt"
	"math"

	"github.com/okian/medrank/internal/domain/model"
	"github.com/okian/medrank/internal/domain/normalize"
	"github.com/okian/medrank/internal/domain/ranking"
	"github.com/okian/medrank/internal/domain/scoring"
)

// Analysis thresholds.
const (
	highScore         = 80.0
	lowHighScoreShare = 20.0
	highAveragePrice  = 50_000.0
	comparisonMargin  = 5.0
	adviceTraining    = "建议加强医生培训，提升整体表现质量"
	adviceCost        = "当前平均投放成本较高，建议优化投放策略"
	adviceValueFocus  = "重点关注高性价比医生，优化投放组合"
)

// Correlation is the Pearson coefficient of two factors over the set.
type Correlation struct {
	Factor1     string  `json:"factor1"`
	Factor2     string  `json:"factor2"`
	Correlation float64 `json:"correlation"`
	Description string  `json:"description"`
}

// Analysis holds correlations and rule-based findings.
type Analysis struct {
	Correlations    []Correlation `json:"correlations"`
	Insights        []string      `json:"insights"`
	Recommendations []string      `json:"recommendations"`
}

func analyze(entries []ranking.Entry) *Analysis {
	n := len(entries)
	followers := make([]float64, n)
	prices := make([]float64, n)
	scores := make([]float64, n)
	high := 0
	var priceSum float64
	for i, e := range entries {
		followers[i] = float64(e.Doctor.TotalFollowers)
		prices[i] = e.Doctor.PriceOrZero()
		scores[i] = e.Record.Composite
		priceSum += prices[i]
		if scores[i] >= highScore {
			high++
		}
	}

	var share, avgPrice float64
	if n > 0 {
		share = float64(high) / float64(n) * 100
		avgPrice = priceSum / float64(n)
	}

	a := &Analysis{
		Correlations: []Correlation{
			{
				Factor1:     "粉丝数量",
				Factor2:     "综合评分",
				Correlation: ranking.Pearson(followers, scores),
				Description: "粉丝数量与综合评分的相关性",
			},
			{
				Factor1:     "机构报价",
				Factor2:     "综合评分",
				Correlation: ranking.Pearson(prices, scores),
				Description: "机构报价与综合评分的相关性",
			},
		},
		Insights: []string{
			fmt.Sprintf("%d%%的医生综合评分达到80分以上", int(share)),
			fmt.Sprintf("平均机构报价为%.0f元", avgPrice),
		},
	}
	if share < lowHighScoreShare {
		a.Recommendations = append(a.Recommendations, adviceTraining)
	}
	if avgPrice > highAveragePrice {
		a.Recommendations = append(a.Recommendations, adviceCost)
	}
	a.Recommendations = append(a.Recommendations, adviceValueFocus)
	return a
}

// ComparisonMetrics are the deltas of the first doctor over the second.
// StrengthsWeaknesses maps each sub-index to 优势, 劣势 or 相当 from the
// first doctor's side.
type ComparisonMetrics struct {
	ScoreDiff           float64            `json:"score_diff"`
	PriceDiff           float64            `json:"price_diff"`
	FansDiff            int64              `json:"fans_diff"`
	EngagementDiff      float64            `json:"engagement_diff"`
	SubIndexDiffs       map[string]float64 `json:"sub_index_diffs"`
	StrengthsWeaknesses map[string]string  `json:"strengths_weaknesses"`
}

// Comparison sets two scored doctors side by side.
type Comparison struct {
	Doctor1 ranking.Entry     `json:"doctor1"`
	Doctor2 ranking.Entry     `json:"doctor2"`
	Metrics ComparisonMetrics `json:"comparison_metrics"`
}

// engagementPercent is the weighted 7-day engagement rate in percent.
func engagementPercent(d *model.Doctor) float64 {
	w := d.Window(model.Days7)
	rate := normalize.EngagementRate(deref(w.Likes), deref(w.Comments), deref(w.Shares), float64(d.TotalFollowers))
	return normalize.Finite(rate * 100)
}

func deref(p *int64) float64 {
	if p == nil {
		return 0
	}
	return float64(*p)
}

func compare(a, b ranking.Entry) *Comparison {
	m := ComparisonMetrics{
		ScoreDiff:           a.Record.Composite - b.Record.Composite,
		PriceDiff:           a.Doctor.PriceOrZero() - b.Doctor.PriceOrZero(),
		FansDiff:            a.Doctor.TotalFollowers - b.Doctor.TotalFollowers,
		EngagementDiff:      engagementPercent(&a.Doctor) - engagementPercent(&b.Doctor),
		SubIndexDiffs:       make(map[string]float64, len(scoring.Kinds())),
		StrengthsWeaknesses: make(map[string]string, len(scoring.Kinds())),
	}
	for _, k := range scoring.Kinds() {
		diff := a.Record.SubIndices.Get(int(k)) - b.Record.SubIndices.Get(int(k))
		m.SubIndexDiffs[k.String()] = diff
		switch {
		case diff > comparisonMargin:
			m.StrengthsWeaknesses[k.String()] = "优势"
		case diff < -comparisonMargin:
			m.StrengthsWeaknesses[k.String()] = "劣势"
		default:
			m.StrengthsWeaknesses[k.String()] = "相当"
		}
	}
	if math.IsNaN(m.ScoreDiff) {
		m.ScoreDiff = 0
	}
	return &Comparison{Doctor1: a, Doctor2: b, Metrics: m}
}
