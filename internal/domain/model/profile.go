package model

import "time"

// ProfileState is the lifecycle state of a weight profile.
type ProfileState string

const (
	StateDraft   ProfileState = "draft"
	StateStored  ProfileState = "stored"
	StateDefault ProfileState = "default"
	StateRetired ProfileState = "retired"
)

// WeightProfile is a named weight vector over the composite inputs.
// Exactly one stored profile carries IsDefault.
type WeightProfile struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Influence   float64      `json:"influence_weight"`
	Activity    float64      `json:"activity_weight"`
	Quality     float64      `json:"quality_weight"`
	Price       float64      `json:"price_weight"`
	IsDefault   bool         `json:"is_default"`
	State       ProfileState `json:"state"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Sum returns the total of the four weights.
func (p *WeightProfile) Sum() float64 {
	return p.Influence + p.Activity + p.Quality + p.Price
}
