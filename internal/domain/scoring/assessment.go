package scoring

import (
	"github.com/okian/medrank/internal/domain/model"
	"github.com/okian/medrank/internal/domain/normalize"
)

const (
	strengthScore    = 8.0
	improvementScore = 6.0
)

// Assessment is the human-readable breakdown of a doctor's content quality.
type Assessment struct {
	Index        float64  `json:"overall_index"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	Advice       string   `json:"investment_advice"`
}

// QualityAssessment lists strengths (score >= 8) and improvements (< 6) of
// the present human ratings, with placement advice from the quality index.
func QualityAssessment(d model.Doctor) Assessment {
	a := Assessment{
		Index:        Compute(ContentQuality, d),
		Strengths:    []string{},
		Improvements: []string{},
	}
	aspects := []struct {
		score              *float64
		strong, needsWork string
	}{
		{d.PerformanceScore, "表现力出色", "提升表现力"},
		{d.AffinityScore, "亲和力强", "增强亲和力"},
		{d.EditingScore, "剪辑水平高", "改善剪辑水平"},
		{d.VideoQualityScore, "画面质量优秀", "提高画面质量"},
	}
	for _, as := range aspects {
		if as.score == nil {
			continue
		}
		switch {
		case *as.score >= strengthScore:
			a.Strengths = append(a.Strengths, as.strong)
		case *as.score < improvementScore:
			a.Improvements = append(a.Improvements, as.needsWork)
		}
	}
	a.Advice = InvestmentAdvice(a.Index)
	return a
}

// InvestmentAdvice maps a content-quality index to placement advice.
func InvestmentAdvice(quality float64) string {
	switch {
	case quality >= 80:
		return "内容质量优秀，强烈推荐投放"
	case quality >= 70:
		return "内容质量良好，推荐投放"
	case quality >= 60:
		return "内容质量中等，可考虑投放"
	case quality >= 50:
		return "内容质量一般，需谨慎考虑"
	default:
		return "内容质量较差，不建议投放"
	}
}

// TrendReport is a log-scaled view of recent growth.
type TrendReport struct {
	LikesGrowth       float64 `json:"likes_growth"`
	FollowersGrowth   float64 `json:"followers_growth"`
	ContentEfficiency float64 `json:"content_efficiency"`
	Index             float64 `json:"trend_index"`
}

// Trends weighs daily growth of likes and followers (0.5/0.3/0.2 from the
// shortest window) and likes per work across all three windows. Absent
// counters count as 0.
func Trends(d model.Doctor) TrendReport {
	growth := func(pick func(model.WindowCounters) *int64) float64 {
		weights := [3]float64{0.5, 0.3, 0.2}
		var daily float64
		for i, w := range model.Windows() {
			daily += count(pick(d.Window(w))) / float64(w) * weights[i]
		}
		return normalize.LogTrend(daily)
	}
	r := TrendReport{
		LikesGrowth:     growth(func(c model.WindowCounters) *int64 { return c.Likes }),
		FollowersGrowth: growth(func(c model.WindowCounters) *int64 { return c.Followers }),
	}

	var efficiency float64
	complete := true
	for _, w := range model.Windows() {
		c := d.Window(w)
		works := count(c.Works)
		if works == 0 {
			complete = false
			break
		}
		efficiency += count(c.Likes) / works
	}
	if complete {
		r.ContentEfficiency = normalize.ContentEfficiency(efficiency / 3)
	}

	r.Index = normalize.Clamp(r.LikesGrowth*0.4+r.FollowersGrowth*0.4+r.ContentEfficiency*0.2, 0, 100)
	return r
}
