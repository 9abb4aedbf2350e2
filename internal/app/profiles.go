package service

import (
	"context"
	"errors"

	"github.com/okian/medrank/internal/adapters/repository"
	"github.com/okian/medrank/internal/domain/apperr"
	"github.com/okian/medrank/internal/domain/model"
	"github.com/okian/medrank/internal/domain/normalize"
	"github.com/okian/medrank/internal/domain/profile"
	"github.com/okian/medrank/pkg/logger"
	"github.com/okian/medrank/pkg/metrics"
)

// CreateProfile validates p and stores it under a fresh id. A profile
// created with IsDefault set is activated right away.
func (s *Service) CreateProfile(ctx context.Context, p model.WeightProfile) (model.WeightProfile, error) {
	const op = "create_profile"
	if err := s.ready(op); err != nil {
		return model.WeightProfile{}, err
	}
	return s.createProfile(ctx, p)
}

func (s *Service) createProfile(ctx context.Context, p model.WeightProfile) (model.WeightProfile, error) {
	p.Name = normalize.Label(p.Name)
	if err := profile.Validate(p); err != nil {
		return model.WeightProfile{}, err
	}
	activate := p.IsDefault
	now := s.now().UTC()
	p.ID = s.newID()
	p.IsDefault = false
	p.CreatedAt, p.UpdatedAt = now, now
	if err := s.store.CreateProfile(ctx, p); err != nil {
		return model.WeightProfile{}, err
	}
	s.logger.Info(ctx, "profile created",
		logger.String("profile_id", p.ID),
		logger.String("name", p.Name),
	)
	if activate {
		return s.activate(ctx, p.ID)
	}
	return s.store.GetProfile(ctx, p.ID)
}

// UpdateProfile replaces the name, description and weights of id.
func (s *Service) UpdateProfile(ctx context.Context, id string, p model.WeightProfile) (model.WeightProfile, error) {
	const op = "update_profile"
	if err := s.ready(op); err != nil {
		return model.WeightProfile{}, err
	}
	p.ID = id
	p.Name = normalize.Label(p.Name)
	if err := profile.Validate(p); err != nil {
		return model.WeightProfile{}, err
	}
	return s.store.UpdateProfile(ctx, p)
}

// GetProfile returns a live profile.
func (s *Service) GetProfile(ctx context.Context, id string) (model.WeightProfile, error) {
	if err := s.ready("get_profile"); err != nil {
		return model.WeightProfile{}, err
	}
	return s.store.GetProfile(ctx, id)
}

// ListProfiles returns every live profile, the default first.
func (s *Service) ListProfiles(ctx context.Context) ([]model.WeightProfile, error) {
	if err := s.ready("list_profiles"); err != nil {
		return nil, err
	}
	return s.store.ListProfiles(ctx)
}

// DefaultProfile returns the profile in effect, seeding the built-in
// default when none exists.
func (s *Service) DefaultProfile(ctx context.Context) (model.WeightProfile, error) {
	if err := s.ready("default_profile"); err != nil {
		return model.WeightProfile{}, err
	}
	return s.defaultProfile(ctx)
}

func (s *Service) defaultProfile(ctx context.Context) (model.WeightProfile, error) {
	p, err := s.store.DefaultProfile(ctx)
	if errors.Is(err, repository.ErrNoDefault) {
		return s.ensureDefault(ctx)
	}
	return p, err
}

func (s *Service) ensureDefault(ctx context.Context) (model.WeightProfile, error) {
	seed := profile.DefaultProfile(s.now().UTC())
	seed.ID = s.newID()
	return s.store.EnsureDefault(ctx, seed)
}

// resolveProfile returns profile id, or the default when id is empty.
func (s *Service) resolveProfile(ctx context.Context, id string) (model.WeightProfile, error) {
	if id == "" {
		return s.defaultProfile(ctx)
	}
	return s.store.GetProfile(ctx, id)
}

// ActivateProfile makes id the default. The previous default is demoted in
// the same step, so readers always find exactly one default.
func (s *Service) ActivateProfile(ctx context.Context, id string) (model.WeightProfile, error) {
	if err := s.ready("activate_profile"); err != nil {
		return model.WeightProfile{}, err
	}
	return s.activate(ctx, id)
}

func (s *Service) activate(ctx context.Context, id string) (model.WeightProfile, error) {
	p, err := s.store.Activate(ctx, id)
	if err != nil {
		return model.WeightProfile{}, err
	}
	metrics.RecordProfileActivation()
	s.logger.Info(ctx, "profile activated",
		logger.String("profile_id", p.ID),
		logger.String("name", p.Name),
	)
	return p, nil
}

// DeleteProfile retires id. The default cannot be deleted.
func (s *Service) DeleteProfile(ctx context.Context, id string) error {
	if err := s.ready("delete_profile"); err != nil {
		return err
	}
	if err := s.store.RetireProfile(ctx, id); err != nil {
		return err
	}
	s.logger.Info(ctx, "profile retired", logger.String("profile_id", id))
	return nil
}

// ValidateWeights checks a weight vector without storing anything.
func (s *Service) ValidateWeights(w profile.Weights) profile.Check {
	return profile.CheckWeights(w)
}

// Presets lists the ready-made weight vectors.
func (s *Service) Presets() []profile.Preset {
	return append([]profile.Preset(nil), s.presets...)
}

// CreateFromPreset stores a new non-default profile from the preset key.
func (s *Service) CreateFromPreset(ctx context.Context, key string) (model.WeightProfile, error) {
	const op = "create_from_preset"
	if err := s.ready(op); err != nil {
		return model.WeightProfile{}, err
	}
	pr, ok := profile.FindPreset(s.presets, key)
	if !ok {
		return model.WeightProfile{}, apperr.Errorf(apperr.KindNotFound, op, "%q: %w", key, ErrUnknownPreset)
	}
	return s.createProfile(ctx, pr.Profile(s.now().UTC()))
}

// AnalyzeProfile describes how w shapes the composite. When doctorID is
// set the doctor's composite under w is predicted as well.
func (s *Service) AnalyzeProfile(ctx context.Context, w profile.Weights, doctorID string) (profile.Impact, error) {
	const op = "analyze_profile"
	if err := s.ready(op); err != nil {
		return profile.Impact{}, err
	}
	if doctorID == "" {
		return profile.Analyze(w, nil), nil
	}
	d, err := s.store.GetDoctor(ctx, doctorID)
	if err != nil {
		return profile.Impact{}, err
	}
	probe := model.WeightProfile{
		Name:      "analysis",
		Influence: w.Influence,
		Activity:  w.Activity,
		Quality:   w.Quality,
		Price:     w.Price,
	}
	r, err := s.engine.ScoreOne(ctx, d, probe)
	if err != nil {
		return profile.Impact{}, err
	}
	return profile.Analyze(w, &r.SubIndices), nil
}
