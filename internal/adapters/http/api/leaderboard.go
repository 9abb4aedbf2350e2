// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	service "github.com/okian/medrank/internal/app"
	"github.com/okian/medrank/internal/domain/model"
)

// LeaderboardDependencies defines the interface for stored rankings.
type LeaderboardDependencies interface {
	TopScores(ctx context.Context, profileID string, n int) ([]model.ScoringRecord, error)
	RecalculateAll(ctx context.Context, profileID string) (service.Recalculation, error)
}

// LeaderboardHandler serves stored rankings and triggers recalculation.
type LeaderboardHandler struct {
	deps     LeaderboardDependencies
	maxLimit int
}

// NewLeaderboardHandler creates a new leaderboard handler
func NewLeaderboardHandler(deps LeaderboardDependencies, maxLimit int) *LeaderboardHandler {
	return &LeaderboardHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

type leaderboardResponse struct {
	ProfileID string                `json:"profile_id,omitempty"`
	Count     int                   `json:"count"`
	Scores    []model.ScoringRecord `json:"scores"`
}

// HandleGetLeaderboard handles GET /api/scores?profile_id=&limit=N requests.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_scores"
	n, err := queryInt(r, op, "limit", 10)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if n < 1 || n > h.maxLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded", ErrBadRequest)
		return
	}
	profileID := r.URL.Query().Get("profile_id")
	scores, err := h.deps.TopScores(r.Context(), profileID, n)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if scores == nil {
		scores = []model.ScoringRecord{}
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{ProfileID: profileID, Count: len(scores), Scores: scores})
}

// HandleRecalculate handles POST /api/scores/recalculate?profile_id= requests.
func (h *LeaderboardHandler) HandleRecalculate(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.RecalculateAll(r.Context(), r.URL.Query().Get("profile_id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
