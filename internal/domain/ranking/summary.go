package ranking

import (
	"math"
	"sort"

	"github.com/okian/medrank/internal/domain/model"
	"github.com/okian/medrank/internal/domain/normalize"
)

// maxGroups caps the region and department tables.
const maxGroups = 10

// Score buckets, highest first.
var ScoreBuckets = []string{"90-100", "80-89", "70-79", "60-69", "0-59"}

// Price buckets, highest first.
var PriceBuckets = []string{"100000+", "50000-99999", "20000-49999", "10000-19999", "0-9999"}

// GroupStats aggregates the doctors sharing a region or department.
type GroupStats struct {
	Name     string  `json:"name"`
	Count    int     `json:"doctor_count"`
	AvgScore float64 `json:"avg_score"`
	AvgPrice float64 `json:"avg_price"`
}

// PriceStats describes quoted prices. Absent prices count as 0.
type PriceStats struct {
	Mean   float64        `json:"avg_price"`
	Median float64        `json:"median_price"`
	Min    float64        `json:"min_price"`
	Max    float64        `json:"max_price"`
	Ranges map[string]int `json:"price_ranges"`
}

// EngagementStats uses lifetime likes over lifetime followers.
type EngagementStats struct {
	TotalFollowers int64   `json:"total_fans"`
	TotalLikes     int64   `json:"total_likes"`
	AvgRate        float64 `json:"avg_engagement_rate"`
	TopRate        float64 `json:"top_engagement_rate"`
}

// Summary is the aggregate view of a scored set.
type Summary struct {
	TotalDoctors      int                `json:"total_doctors"`
	RegionsCount      int                `json:"regions_count"`
	DepartmentsCount  int                `json:"departments_count"`
	AvgScore          float64            `json:"avg_score"`
	MaxScore          float64            `json:"max_score"`
	MinScore          float64            `json:"min_score"`
	Tiers             map[model.Tier]int `json:"tier_distribution"`
	ScoreDistribution map[string]int     `json:"score_distribution"`
	TopRegions        []GroupStats       `json:"top_regions"`
	TopDepartments    []GroupStats       `json:"top_departments"`
	Price             PriceStats         `json:"price_stats"`
	Engagement        EngagementStats    `json:"engagement_stats"`
}

// ScoreBucket names the distribution bucket of a composite.
func ScoreBucket(score float64) string {
	switch {
	case score >= 90:
		return ScoreBuckets[0]
	case score >= 80:
		return ScoreBuckets[1]
	case score >= 70:
		return ScoreBuckets[2]
	case score >= 60:
		return ScoreBuckets[3]
	default:
		return ScoreBuckets[4]
	}
}

// PriceBucket names the distribution bucket of a price.
func PriceBucket(price float64) string {
	switch {
	case price >= 100_000:
		return PriceBuckets[0]
	case price >= 50_000:
		return PriceBuckets[1]
	case price >= 20_000:
		return PriceBuckets[2]
	case price >= 10_000:
		return PriceBuckets[3]
	default:
		return PriceBuckets[4]
	}
}

func zeroBuckets(keys []string) map[string]int {
	m := make(map[string]int, len(keys))
	for _, k := range keys {
		m[k] = 0
	}
	return m
}

type groupAcc struct {
	count      int
	score, pay float64
}

// Summarize aggregates entries. An empty set yields zero statistics with
// every bucket present.
func Summarize(entries []Entry) Summary {
	s := Summary{
		TotalDoctors:      len(entries),
		Tiers:             map[model.Tier]int{model.TierHead: 0, model.TierMiddle: 0, model.TierTail: 0},
		ScoreDistribution: zeroBuckets(ScoreBuckets),
		TopRegions:        []GroupStats{},
		TopDepartments:    []GroupStats{},
		Price:             PriceStats{Ranges: zeroBuckets(PriceBuckets)},
	}
	if len(entries) == 0 {
		return s
	}

	regions := map[string]*groupAcc{}
	departments := map[string]*groupAcc{}
	prices := make([]float64, 0, len(entries))
	var scoreSum float64
	s.MaxScore, s.MinScore = math.Inf(-1), math.Inf(1)

	for _, e := range entries {
		score := e.Record.Composite
		price := e.Doctor.PriceOrZero()

		scoreSum += score
		s.MaxScore = math.Max(s.MaxScore, score)
		s.MinScore = math.Min(s.MinScore, score)
		s.ScoreDistribution[ScoreBucket(score)]++
		if e.Record.Tier != "" {
			s.Tiers[e.Record.Tier]++
		}

		prices = append(prices, price)
		s.Price.Ranges[PriceBucket(price)]++

		accumulate(regions, e.Doctor.Region, score, price)
		accumulate(departments, e.Doctor.Department, score, price)

		s.Engagement.TotalFollowers += e.Doctor.TotalFollowers
		s.Engagement.TotalLikes += e.Doctor.TotalLikes
		if e.Doctor.TotalFollowers > 0 {
			rate := float64(e.Doctor.TotalLikes) / float64(e.Doctor.TotalFollowers) * 100
			s.Engagement.TopRate = math.Max(s.Engagement.TopRate, rate)
		}
	}

	n := float64(len(entries))
	s.AvgScore = scoreSum / n
	if s.Engagement.TotalFollowers > 0 {
		s.Engagement.AvgRate = float64(s.Engagement.TotalLikes) / float64(s.Engagement.TotalFollowers) * 100
	}

	sort.Float64s(prices)
	var priceSum float64
	for _, p := range prices {
		priceSum += p
	}
	s.Price.Mean = priceSum / n
	s.Price.Min = prices[0]
	s.Price.Max = prices[len(prices)-1]
	if mid := len(prices) / 2; len(prices)%2 == 0 {
		s.Price.Median = (prices[mid-1] + prices[mid]) / 2
	} else {
		s.Price.Median = prices[mid]
	}

	s.RegionsCount = len(regions)
	s.DepartmentsCount = len(departments)
	s.TopRegions = topGroups(regions)
	s.TopDepartments = topGroups(departments)
	return s
}

func accumulate(groups map[string]*groupAcc, key string, score, price float64) {
	key = normalize.Label(key)
	if key == "" {
		return
	}
	g, ok := groups[key]
	if !ok {
		g = &groupAcc{}
		groups[key] = g
	}
	g.count++
	g.score += score
	g.pay += price
}

func topGroups(groups map[string]*groupAcc) []GroupStats {
	out := make([]GroupStats, 0, len(groups))
	for name, g := range groups {
		out = append(out, GroupStats{
			Name:     name,
			Count:    g.count,
			AvgScore: g.score / float64(g.count),
			AvgPrice: g.pay / float64(g.count),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AvgScore != out[j].AvgScore {
			return out[i].AvgScore > out[j].AvgScore
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > maxGroups {
		out = out[:maxGroups]
	}
	return out
}
