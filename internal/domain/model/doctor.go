// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"math"
	"time"
)

// Days is the length of a rolling counter window.
type Days int

// Supported rolling windows.
const (
	Days7  Days = 7
	Days15 Days = 15
	Days30 Days = 30
)

// Windows lists the rolling windows shortest first.
func Windows() []Days { return []Days{Days7, Days15, Days30} }

// Human rating bounds.
const (
	MinHumanScore = 0
	MaxHumanScore = 10
)

// Doctor is a catalog record: identity, audience counters, rolling-window
// engagement, a price quote and optional human content ratings (0-10).
// Optional values are nil when absent.
type Doctor struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Title      string   `json:"title"`
	Region     string   `json:"region"`
	Department string   `json:"department"`
	AgencyName string   `json:"agency_name"`
	Price      *float64 `json:"agency_price,omitempty"`

	TotalFollowers int64  `json:"total_followers"`
	TotalLikes     int64  `json:"total_likes"`
	TotalWorks     int64  `json:"total_works"`
	AvgPlayCount   *int64 `json:"avg_play_count,omitempty"`

	Likes7d     *int64 `json:"likes_7d,omitempty"`
	Followers7d *int64 `json:"followers_7d,omitempty"`
	Shares7d    *int64 `json:"shares_7d,omitempty"`
	Comments7d  *int64 `json:"comments_7d,omitempty"`
	Works7d     *int64 `json:"works_7d,omitempty"`

	Likes15d     *int64 `json:"likes_15d,omitempty"`
	Followers15d *int64 `json:"followers_15d,omitempty"`
	Shares15d    *int64 `json:"shares_15d,omitempty"`
	Comments15d  *int64 `json:"comments_15d,omitempty"`
	Works15d     *int64 `json:"works_15d,omitempty"`

	Likes30d     *int64 `json:"likes_30d,omitempty"`
	Followers30d *int64 `json:"followers_30d,omitempty"`
	Shares30d    *int64 `json:"shares_30d,omitempty"`
	Comments30d  *int64 `json:"comments_30d,omitempty"`
	Works30d     *int64 `json:"works_30d,omitempty"`

	PerformanceScore  *float64 `json:"performance_score,omitempty"`
	AffinityScore     *float64 `json:"affinity_score,omitempty"`
	EditingScore      *float64 `json:"editing_score,omitempty"`
	VideoQualityScore *float64 `json:"video_quality_score,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WindowCounters are the optional counters of one rolling window.
type WindowCounters struct {
	Likes     *int64
	Followers *int64
	Shares    *int64
	Comments  *int64
	Works     *int64
}

// Window returns the counters of window w. Unknown windows are all nil.
func (d *Doctor) Window(w Days) WindowCounters {
	switch w {
	case Days7:
		return WindowCounters{d.Likes7d, d.Followers7d, d.Shares7d, d.Comments7d, d.Works7d}
	case Days15:
		return WindowCounters{d.Likes15d, d.Followers15d, d.Shares15d, d.Comments15d, d.Works15d}
	case Days30:
		return WindowCounters{d.Likes30d, d.Followers30d, d.Shares30d, d.Comments30d, d.Works30d}
	default:
		return WindowCounters{}
	}
}

// PriceOrZero returns the quoted price, 0 when absent.
func (d *Doctor) PriceOrZero() float64 {
	if d.Price == nil {
		return 0
	}
	return *d.Price
}

// FieldError reports one invalid doctor field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks identity, counter signs, human-score range and price.
// It returns the first violation as a *FieldError.
func (d *Doctor) Validate() error {
	if d.ID == "" {
		return &FieldError{Field: "id", Message: "must not be empty"}
	}
	if d.Name == "" {
		return &FieldError{Field: "name", Message: "must not be empty"}
	}

	counters := []struct {
		name string
		v    int64
	}{
		{"total_followers", d.TotalFollowers},
		{"total_likes", d.TotalLikes},
		{"total_works", d.TotalWorks},
	}
	for _, c := range counters {
		if c.v < 0 {
			return &FieldError{Field: c.name, Message: "must be non-negative"}
		}
	}

	optional := []struct {
		name string
		v    *int64
	}{
		{"avg_play_count", d.AvgPlayCount},
		{"likes_7d", d.Likes7d}, {"followers_7d", d.Followers7d}, {"shares_7d", d.Shares7d},
		{"comments_7d", d.Comments7d}, {"works_7d", d.Works7d},
		{"likes_15d", d.Likes15d}, {"followers_15d", d.Followers15d}, {"shares_15d", d.Shares15d},
		{"comments_15d", d.Comments15d}, {"works_15d", d.Works15d},
		{"likes_30d", d.Likes30d}, {"followers_30d", d.Followers30d}, {"shares_30d", d.Shares30d},
		{"comments_30d", d.Comments30d}, {"works_30d", d.Works30d},
	}
	for _, c := range optional {
		if c.v != nil && *c.v < 0 {
			return &FieldError{Field: c.name, Message: "must be non-negative"}
		}
	}

	scores := []struct {
		name string
		v    *float64
	}{
		{"performance_score", d.PerformanceScore},
		{"affinity_score", d.AffinityScore},
		{"editing_score", d.EditingScore},
		{"video_quality_score", d.VideoQualityScore},
	}
	for _, s := range scores {
		if s.v == nil {
			continue
		}
		if math.IsNaN(*s.v) || *s.v < MinHumanScore || *s.v > MaxHumanScore {
			return &FieldError{Field: s.name, Message: fmt.Sprintf("must be within [%d,%d]", MinHumanScore, MaxHumanScore)}
		}
	}

	if d.Price != nil && (math.IsNaN(*d.Price) || math.IsInf(*d.Price, 0) || *d.Price < 0) {
		return &FieldError{Field: "agency_price", Message: "must be a non-negative number"}
	}
	return nil
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }
