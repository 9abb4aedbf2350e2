// Package normalize maps raw doctor counters to bounded scores.
//
// Every function here is total: zero denominators, absent values and
// non-finite inputs resolve to documented defaults instead of NaN.
package normalize

import (
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Step is one band of a threshold table.
type Step struct {
	Bound float64
	Score float64
}

// Table is an ordered list of bands. The last band is the fallback.
type Table []Step

// Followers to account-tier score, highest threshold first.
var FollowerTier = Table{
	{1e6, 90}, {5e5, 80}, {1e5, 70}, {5e4, 60}, {1e4, 50}, {math.Inf(-1), 30},
}

// Followers to a [0,1] norm used by composite influence.
var FollowerNorm = Table{
	{1e6, 1.0}, {5e5, 0.9}, {2e5, 0.8}, {1e5, 0.7}, {5e4, 0.6},
	{2e4, 0.5}, {1e4, 0.4}, {5e3, 0.3}, {1e3, 0.2}, {math.Inf(-1), 0.1},
}

// Average play count to a [0,1] norm used by composite influence.
var PlayNorm = Table{
	{5e5, 1.0}, {2e5, 0.9}, {1e5, 0.8}, {5e4, 0.7}, {2e4, 0.6},
	{1e4, 0.5}, {5e3, 0.4}, {2e3, 0.3}, {1e3, 0.2}, {math.Inf(-1), 0.1},
}

// Price per thousand followers to price score. Bounds are inclusive upper
// limits, lowest first.
var PricePer1kScore = Table{
	{50, 95}, {100, 85}, {200, 75}, {500, 65}, {1000, 55}, {math.Inf(1), 35},
}

// Engagement rate in percent to cost-performance bonus.
var EngagementBonus = Table{
	{10, 10}, {5, 5}, {2, 2}, {math.Inf(-1), 0},
}

// Stepwise returns the score of the first band whose bound x reaches.
// The table must be sorted by descending bound. NaN falls to the last band.
func Stepwise(t Table, x float64) float64 {
	if len(t) == 0 {
		return 0
	}
	for _, s := range t {
		if x >= s.Bound {
			return s.Score
		}
	}
	return t[len(t)-1].Score
}

// UpTo returns the score of the first band whose bound is >= x. The table
// must be sorted by ascending bound. NaN falls to the last band.
func UpTo(t Table, x float64) float64 {
	if len(t) == 0 {
		return 0
	}
	for _, s := range t {
		if x <= s.Bound {
			return s.Score
		}
	}
	return t[len(t)-1].Score
}

// LogCompressed returns clamp(ln(m)*k + c, 0, 100), and 0 for m <= 0.
func LogCompressed(m, k, c float64) float64 {
	if !(m > 0) {
		return 0
	}
	return Clamp(Finite(math.Log(m)*k+c), 0, 100)
}

// EngagementRate is (likes + 2*comments + 3*shares) / followers, 0 when
// followers is not positive.
func EngagementRate(likes, comments, shares, followers float64) float64 {
	if followers <= 0 {
		return 0
	}
	return Finite((likes + 2*comments + 3*shares) / followers)
}

// PricePer1k is price per thousand followers floored at 1. Zero followers
// yield +Inf so the price lands in the most expensive band.
func PricePer1k(price, followers float64) float64 {
	if followers <= 0 {
		return math.Inf(1)
	}
	return math.Max(price/(followers/1000), 1)
}

// InteractionNorm maps 7-day interactions per follower onto [0,1].
func InteractionNorm(likes, comments, shares, followers float64) float64 {
	if followers <= 0 {
		return 0
	}
	return math.Min(EngagementRate(likes, comments, shares, followers)*1000, 1)
}

// ContentEfficiency scores average likes per work.
func ContentEfficiency(likesPerWork float64) float64 {
	return LogCompressed(likesPerWork, 20, 50)
}

// LogTrend scores a weighted daily growth value.
func LogTrend(daily float64) float64 {
	return LogCompressed(daily, 15, 50)
}

// Finite replaces NaN and infinities with 0.
func Finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}

// Clamp bounds x to [lo, hi]. NaN clamps to lo.
func Clamp(x, lo, hi float64) float64 {
	switch {
	case math.IsNaN(x), x < lo:
		return lo
	case x > hi:
		return hi
	default:
		return x
	}
}

// Label canonicalises a free-text label: NFC form, surrounding space trimmed.
func Label(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
