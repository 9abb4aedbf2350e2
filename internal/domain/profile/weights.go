// Package profile implements weight-profile validation, presets, lifecycle
// transitions and impact analysis.
package profile

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/okian/medrank/internal/domain/apperr"
	"github.com/okian/medrank/internal/domain/model"
)

// SumTolerance is the allowed distance of the weight sum from 1.
const SumTolerance = 0.01

// DefaultName is the name of the built-in default profile.
const DefaultName = "默认配置"

// Weights is the four-weight vector of a profile.
type Weights struct {
	Influence float64 `json:"influence_weight" yaml:"influence"`
	Activity  float64 `json:"activity_weight" yaml:"activity"`
	Quality   float64 `json:"quality_weight" yaml:"quality"`
	Price     float64 `json:"price_weight" yaml:"price"`
}

// Of extracts the weight vector of p.
func Of(p model.WeightProfile) Weights {
	return Weights{Influence: p.Influence, Activity: p.Activity, Quality: p.Quality, Price: p.Price}
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Influence + w.Activity + w.Quality + w.Price
}

// Max returns the largest weight.
func (w Weights) Max() float64 {
	return math.Max(math.Max(w.Influence, w.Activity), math.Max(w.Quality, w.Price))
}

// Apply is the weighted composite of sub, before clamping.
func (w Weights) Apply(sub model.SubIndices) float64 {
	return sub.AccountTier*w.Influence +
		sub.CostPerformance*w.Price +
		sub.DataTrend*w.Activity +
		sub.ContentQuality*w.Quality
}

// Check is the outcome of a weight check, suitable for reporting back.
type Check struct {
	Valid  bool     `json:"valid"`
	Total  float64  `json:"total_weight"`
	Errors []string `json:"errors,omitempty"`
}

// CheckWeights validates a weight vector without a profile around it.
func CheckWeights(w Weights) Check {
	c := Check{Total: w.Sum()}
	named := []struct {
		name string
		v    float64
	}{
		{"影响力权重", w.Influence},
		{"活跃度权重", w.Activity},
		{"内容质量权重", w.Quality},
		{"性价比权重", w.Price},
	}
	for _, n := range named {
		if math.IsNaN(n.v) || n.v < 0 || n.v > 1 {
			c.Errors = append(c.Errors, fmt.Sprintf("%s 必须在0-1之间，当前值: %.2f", n.name, n.v))
		}
	}
	if math.IsNaN(c.Total) || math.Abs(c.Total-1) > SumTolerance {
		c.Errors = append(c.Errors, fmt.Sprintf("权重总和必须为1，当前为: %.2f", c.Total))
	}
	c.Valid = len(c.Errors) == 0
	return c
}

// Validate reports a Validation error when p cannot be used for scoring.
func Validate(p model.WeightProfile) error {
	if p.Name == "" {
		return apperr.New(apperr.KindValidation, "validate_profile", "name must not be empty")
	}
	c := CheckWeights(Of(p))
	if !c.Valid {
		return apperr.New(apperr.KindValidation, "validate_profile", strings.Join(c.Errors, "; "))
	}
	return nil
}

// DefaultProfile returns the built-in default with equal weights.
func DefaultProfile(now time.Time) model.WeightProfile {
	return model.WeightProfile{
		Name:        DefaultName,
		Description: "系统内置默认权重，四项指标等权",
		Influence:   0.25,
		Activity:    0.25,
		Quality:     0.25,
		Price:       0.25,
		IsDefault:   true,
		State:       model.StateDefault,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
