// Package repository persists the doctor catalog, weight profiles and
// scoring records.
package repository

import (
	"context"

	"github.com/okian/medrank/internal/domain/model"
)

// CatalogStore holds doctor records.
type CatalogStore interface {
	// PutDoctors inserts or replaces doctors by id. The batch is applied
	// atomically.
	PutDoctors(ctx context.Context, doctors []model.Doctor) error
	// GetDoctor returns ErrDoctorNotFound for an unknown id.
	GetDoctor(ctx context.Context, id string) (model.Doctor, error)
	// ListDoctors returns every doctor ordered by id.
	ListDoctors(ctx context.Context) ([]model.Doctor, error)
	CountDoctors(ctx context.Context) (int, error)
}

// ProfileStore holds weight profiles. Retired profiles are kept but behave
// as absent. At most one profile is the default at any time.
type ProfileStore interface {
	// CreateProfile stores a new profile; the id must be unused.
	CreateProfile(ctx context.Context, p model.WeightProfile) error
	// UpdateProfile replaces name, description and weights. The default
	// flag and state are kept.
	UpdateProfile(ctx context.Context, p model.WeightProfile) (model.WeightProfile, error)
	// GetProfile returns ErrProfileNotFound for unknown or retired ids.
	GetProfile(ctx context.Context, id string) (model.WeightProfile, error)
	// ListProfiles returns live profiles, default first, then by creation.
	ListProfiles(ctx context.Context) ([]model.WeightProfile, error)
	// DefaultProfile returns ErrNoDefault when no profile is the default.
	DefaultProfile(ctx context.Context) (model.WeightProfile, error)
	// Activate makes id the default and demotes the previous default in
	// one step.
	Activate(ctx context.Context, id string) (model.WeightProfile, error)
	// RetireProfile retires id. Retiring the default is a Conflict.
	RetireProfile(ctx context.Context, id string) error
	// EnsureDefault stores seed as the default when no default exists and
	// returns the default in effect.
	EnsureDefault(ctx context.Context, seed model.WeightProfile) (model.WeightProfile, error)
}

// ScoreStore holds the latest scoring batch per profile.
type ScoreStore interface {
	// ReplaceScores swaps the profile's records for records in one step.
	ReplaceScores(ctx context.Context, profileID string, records []model.ScoringRecord) error
	// GetScore returns the doctor's ranked record, ErrScoreNotFound when
	// the doctor was not scored under the profile.
	GetScore(ctx context.Context, doctorID, profileID string) (model.ScoringRecord, error)
	// TopScores returns the n best records in rank order.
	TopScores(ctx context.Context, profileID string, n int) ([]model.ScoringRecord, error)
}

// Store is the full persistence surface.
type Store interface {
	CatalogStore
	ProfileStore
	ScoreStore
	Close() error
}
