// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	service "github.com/okian/medrank/internal/app"
)

// RankDependencies defines the interface for on-demand scoring.
type RankDependencies interface {
	ScoreDoctor(ctx context.Context, doctorID, profileID string) (service.DoctorScore, error)
}

// RankHandler handles per-doctor score requests.
type RankHandler struct {
	deps RankDependencies
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps RankDependencies) *RankHandler {
	return &RankHandler{deps: deps}
}

// HandleGetScore handles GET /api/doctors/{id}/score?profile_id= requests.
func (h *RankHandler) HandleGetScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_score"
	id, err := pathID(r, op, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	score, err := h.deps.ScoreDoctor(r.Context(), id, r.URL.Query().Get("profile_id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}
