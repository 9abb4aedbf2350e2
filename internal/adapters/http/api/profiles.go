package api

import (
	"context"
	"net/http"

	"github.com/okian/medrank/internal/domain/model"
	"github.com/okian/medrank/internal/domain/profile"
)

// ProfileDependencies covers weight-profile management.
type ProfileDependencies interface {
	CreateProfile(ctx context.Context, p model.WeightProfile) (model.WeightProfile, error)
	UpdateProfile(ctx context.Context, id string, p model.WeightProfile) (model.WeightProfile, error)
	GetProfile(ctx context.Context, id string) (model.WeightProfile, error)
	ListProfiles(ctx context.Context) ([]model.WeightProfile, error)
	DefaultProfile(ctx context.Context) (model.WeightProfile, error)
	ActivateProfile(ctx context.Context, id string) (model.WeightProfile, error)
	DeleteProfile(ctx context.Context, id string) error
	ValidateWeights(w profile.Weights) profile.Check
	Presets() []profile.Preset
	CreateFromPreset(ctx context.Context, key string) (model.WeightProfile, error)
	AnalyzeProfile(ctx context.Context, w profile.Weights, doctorID string) (profile.Impact, error)
}

// ProfileHandler serves the profile routes.
type ProfileHandler struct {
	deps ProfileDependencies
}

// NewProfileHandler creates a profile handler.
func NewProfileHandler(deps ProfileDependencies) *ProfileHandler {
	return &ProfileHandler{deps: deps}
}

// profileRequest is the writable part of a profile.
type profileRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	profile.Weights
	IsDefault bool `json:"is_default"`
}

func (p profileRequest) model() model.WeightProfile {
	return model.WeightProfile{
		Name:        p.Name,
		Description: p.Description,
		Influence:   p.Influence,
		Activity:    p.Activity,
		Quality:     p.Quality,
		Price:       p.Price,
		IsDefault:   p.IsDefault,
	}
}

type analyzeRequest struct {
	profile.Weights
	DoctorID string `json:"doctor_id,omitempty"`
}

// HandleList handles GET /api/profiles.
func (h *ProfileHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ps, err := h.deps.ListProfiles(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	if ps == nil {
		ps = []model.WeightProfile{}
	}
	writeJSON(w, http.StatusOK, ps)
}

// HandleCreate handles POST /api/profiles.
func (h *ProfileHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_profile"
	var req profileRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		writeAppError(w, err)
		return
	}
	p, err := h.deps.CreateProfile(r.Context(), req.model())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// HandleDefault handles GET /api/profiles/default.
func (h *ProfileHandler) HandleDefault(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.DefaultProfile(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandlePresets handles GET /api/profiles/presets.
func (h *ProfileHandler) HandlePresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Presets())
}

// HandleCreateFromPreset handles POST /api/presets/{preset}/profiles.
func (h *ProfileHandler) HandleCreateFromPreset(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_from_preset"
	key, err := pathID(r, op, "preset")
	if err != nil {
		writeAppError(w, err)
		return
	}
	p, err := h.deps.CreateFromPreset(r.Context(), key)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// HandleValidate handles POST /api/profiles/validate. An invalid vector is
// still a 200; the verdict is in the body.
func (h *ProfileHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	const op = "api.validate_weights"
	var weights profile.Weights
	if err := decodeJSON(w, r, op, &weights); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.ValidateWeights(weights))
}

// HandleAnalyze handles POST /api/profiles/analyze.
func (h *ProfileHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	const op = "api.analyze_profile"
	var req analyzeRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		writeAppError(w, err)
		return
	}
	impact, err := h.deps.AnalyzeProfile(r.Context(), req.Weights, req.DoctorID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, impact)
}

// HandleGet handles GET /api/profiles/{id}.
func (h *ProfileHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_profile"
	id, err := pathID(r, op, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	p, err := h.deps.GetProfile(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleUpdate handles PUT /api/profiles/{id}. The default flag of the
// body is ignored; use the activate route.
func (h *ProfileHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_profile"
	id, err := pathID(r, op, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	var req profileRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		writeAppError(w, err)
		return
	}
	p, err := h.deps.UpdateProfile(r.Context(), id, req.model())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleDelete handles DELETE /api/profiles/{id}.
func (h *ProfileHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_profile"
	id, err := pathID(r, op, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	if err := h.deps.DeleteProfile(r.Context(), id); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleActivate handles POST /api/profiles/{id}/activate.
func (h *ProfileHandler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	const op = "api.activate_profile"
	id, err := pathID(r, op, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	p, err := h.deps.ActivateProfile(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
