package profile

import (
	"math"

	"github.com/okian/medrank/internal/domain/model"
)

// Factor names used by the impact analysis.
const (
	FactorInfluence = "influence"
	FactorActivity  = "activity"
	FactorQuality   = "quality"
	FactorPrice     = "price"
)

// Contribution is one weighted term of a predicted composite.
type Contribution struct {
	Factor string  `json:"factor"`
	Value  float64 `json:"value"`
}

// Impact describes how a weight vector shapes the composite.
type Impact struct {
	Weights         Weights        `json:"weights"`
	DominantFactor  string         `json:"dominant_factor"`
	Strategy        string         `json:"strategy_analysis"`
	BalanceScore    float64        `json:"balance_score"`
	RiskLevel       string         `json:"risk_level"`
	Predicted       *float64       `json:"predicted_score,omitempty"`
	Breakdown       []Contribution `json:"score_breakdown,omitempty"`
	Recommendations []string       `json:"recommendations"`
}

// Analyze inspects the distribution of w. When sample is set the composite
// it would receive under w is predicted as well.
func Analyze(w Weights, sample *model.SubIndices) Impact {
	maxPct := w.Max() * 100
	im := Impact{
		Weights:      w,
		BalanceScore: 100 - math.Max(maxPct-20, 0)*2,
	}

	// Ties resolve in this order.
	switch maxW := w.Max(); {
	case w.Price >= maxW:
		im.DominantFactor = FactorPrice
		im.Strategy = "当前配置偏向成本效益优先，适合预算控制严格的投放场景"
	case w.Influence >= maxW:
		im.DominantFactor = FactorInfluence
		im.Strategy = "当前配置偏向影响力优先，适合扩大品牌曝光的投放场景"
	case w.Quality >= maxW:
		im.DominantFactor = FactorQuality
		im.Strategy = "当前配置偏向内容质量优先，适合注重专业形象的投放场景"
	default:
		im.DominantFactor = FactorActivity
		im.Strategy = "当前配置偏向数据活跃度优先，适合追求增长势头的投放场景"
	}

	switch {
	case maxPct > 50:
		im.RiskLevel = "高风险：权重过于集中"
	case maxPct > 40:
		im.RiskLevel = "中风险：权重较为集中"
	default:
		im.RiskLevel = "低风险：权重分布合理"
	}

	if sample != nil {
		im.Breakdown = []Contribution{
			{FactorInfluence, sample.AccountTier * w.Influence},
			{FactorActivity, sample.DataTrend * w.Activity},
			{FactorQuality, sample.ContentQuality * w.Quality},
			{FactorPrice, sample.CostPerformance * w.Price},
		}
		predicted := math.Min(math.Max(w.Apply(*sample), 0), 100)
		im.Predicted = &predicted
	}

	im.Recommendations = recommendations(w)
	return im
}

func recommendations(w Weights) []string {
	var out []string
	if w.Max()*100 > 50 {
		out = append(out, "建议避免单一指标权重超过50%，以保持评价的全面性")
	}
	if w.Quality*100 < 20 {
		out = append(out, "内容质量权重建议不低于20%，医疗内容的专业性很重要")
	}
	if w.Price*100 > 45 {
		out = append(out, "性价比权重过高可能忽略质量因素，建议适当降低")
	}

	pcts := []float64{w.Influence * 100, w.Activity * 100, w.Quality * 100, w.Price * 100}
	var mean float64
	for _, p := range pcts {
		mean += p
	}
	mean /= float64(len(pcts))
	var variance float64
	for _, p := range pcts {
		variance += (p - mean) * (p - mean)
	}
	variance /= float64(len(pcts))
	if variance > 200 {
		out = append(out, "权重分布差异较大，建议考虑适当平衡各指标权重")
	}

	if len(out) == 0 {
		out = append(out, "当前权重配置合理，符合医疗健康领域的评价标准")
	}
	return out
}
