// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	service "github.com/okian/medrank/internal/app"
	"github.com/okian/medrank/internal/domain/apperr"
	"github.com/okian/medrank/internal/domain/dedupe"
	"github.com/okian/medrank/pkg/logger"
)

// Limits applied to request bodies.
const (
	maxJSONBody   = 1 << 20
	maxImportBody = 32 << 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	DoctorDependencies
	ImportDependencies
	ProfileDependencies
	LeaderboardDependencies
	RankDependencies
	ReportDependencies
	StatsProvider

	// Deduper guards mutating routes carrying an Idempotency-Key.
	Deduper() dedupe.Deduper
}

var _ Dependencies = (*service.Service)(nil)

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	doctorHandler      *DoctorHandler
	importHandler      *ImportHandler
	profileHandler     *ProfileHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	reportHandler      *ReportHandler

	deduper        dedupe.Deduper
	requestTimeout time.Duration
	rateRPS        float64
	rateBurst      int
	maxLimit       int
	logger         logger.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithRequestTimeout bounds how long a request may run.
func WithRequestTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// WithRateLimit sets the per-client limit of mutating routes. A zero rate
// disables limiting.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		s.rateRPS = rps
		s.rateBurst = burst
	}
}

// WithMaxLimit caps the limit query parameter of list routes.
func WithMaxLimit(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithServerLogger sets the logger used by handlers and middleware.
func WithServerLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...ServerOption) *Server {
	s := &Server{
		requestTimeout: 30 * time.Second,
		rateRPS:        50,
		rateBurst:      100,
		maxLimit:       500,
		logger:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(deps)
	s.doctorHandler = NewDoctorHandler(deps, s.maxLimit)
	s.importHandler = NewImportHandler(deps)
	s.profileHandler = NewProfileHandler(deps)
	s.leaderboardHandler = NewLeaderboardHandler(deps, s.maxLimit)
	s.rankHandler = NewRankHandler(deps)
	s.reportHandler = NewReportHandler(deps)
	s.deduper = deps.Deduper()
	return s
}

// Register attaches all HTTP routes to mux. The rate limiter's cleanup
// loop runs until ctx is done.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	limiter := NewRateLimiter(s.rateRPS, s.rateBurst)
	go limiter.Run(ctx)

	read := func(endpoint string, h http.HandlerFunc) http.HandlerFunc {
		return MetricsMiddleware(TimeoutMiddleware(h, s.requestTimeout), endpoint)
	}
	write := func(endpoint string, h http.HandlerFunc) http.HandlerFunc {
		h = IdempotencyMiddleware(h, s.deduper, s.logger)
		h = TimeoutMiddleware(h, s.requestTimeout)
		h = limiter.Middleware(h, endpoint)
		return MetricsMiddleware(h, endpoint)
	}

	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("GET /stats", read("stats", s.statsHandler.HandleStats))

	mux.HandleFunc("GET /api/doctors", read("doctors", s.doctorHandler.HandleList))
	mux.HandleFunc("POST /api/doctors", write("doctors", s.doctorHandler.HandleUpsert))
	mux.HandleFunc("GET /api/doctors/{id}", read("doctor", s.doctorHandler.HandleGet))
	mux.HandleFunc("GET /api/doctors/{id}/score", read("doctor_score", s.rankHandler.HandleGetScore))

	mux.HandleFunc("POST /api/import/csv", write("import_csv", s.importHandler.HandleCSV))
	mux.HandleFunc("POST /api/import/json", write("import_json", s.importHandler.HandleJSON))
	mux.HandleFunc("GET /api/import/template", read("import_template", s.importHandler.HandleTemplate))

	mux.HandleFunc("GET /api/profiles", read("profiles", s.profileHandler.HandleList))
	mux.HandleFunc("POST /api/profiles", write("profiles", s.profileHandler.HandleCreate))
	mux.HandleFunc("GET /api/profiles/default", read("profile_default", s.profileHandler.HandleDefault))
	mux.HandleFunc("GET /api/profiles/presets", read("profile_presets", s.profileHandler.HandlePresets))
	mux.HandleFunc("POST /api/presets/{preset}/profiles", write("profile_presets", s.profileHandler.HandleCreateFromPreset))
	mux.HandleFunc("POST /api/profiles/validate", read("profile_validate", s.profileHandler.HandleValidate))
	mux.HandleFunc("POST /api/profiles/analyze", read("profile_analyze", s.profileHandler.HandleAnalyze))
	mux.HandleFunc("GET /api/profiles/{id}", read("profile", s.profileHandler.HandleGet))
	mux.HandleFunc("PUT /api/profiles/{id}", write("profile", s.profileHandler.HandleUpdate))
	mux.HandleFunc("DELETE /api/profiles/{id}", write("profile", s.profileHandler.HandleDelete))
	mux.HandleFunc("POST /api/profiles/{id}/activate", write("profile_activate", s.profileHandler.HandleActivate))

	mux.HandleFunc("GET /api/scores", read("scores", s.leaderboardHandler.HandleGetLeaderboard))
	mux.HandleFunc("POST /api/scores/recalculate", write("recalculate", s.leaderboardHandler.HandleRecalculate))

	mux.HandleFunc("POST /api/reports", read("reports", s.reportHandler.HandleBuild))
}

type errorResponse struct {
	Code     string           `json:"code"`
	Message  string           `json:"message"`
	Failures []apperr.Failure `json:"failures,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeAppError maps a classified error to its status code. Batch errors
// carry their failures in the body.
func writeAppError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	resp := errorResponse{Code: codeOf(err, status), Message: err.Error()}
	var batch *apperr.BatchError
	if errors.As(err, &batch) {
		resp.Failures = batch.First(batch.Limit)
	}
	writeJSON(w, status, resp)
}

func statusOf(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindCancelled:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func codeOf(err error, status int) string {
	if status == http.StatusGatewayTimeout {
		return "timeout"
	}
	return apperr.KindOf(err).String()
}

// decodeJSON reads a single JSON document of at most maxJSONBody bytes
// into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, op string, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		return errBadRequest(op, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return apperr.Errorf(apperr.KindValidation, op, "%w: trailing data after JSON body", ErrBadRequest)
	}
	return nil
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, op, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Errorf(apperr.KindValidation, op, "%w: %s must be a non-negative integer, got %q", ErrBadRequest, name, raw)
	}
	return n, nil
}

func pathID(r *http.Request, op, name string) (string, error) {
	id := r.PathValue(name)
	if id == "" {
		return "", apperr.Errorf(apperr.KindValidation, op, "%w: missing %s", ErrBadRequest, name)
	}
	return id, nil
}

func errBadRequest(op string, err error) error {
	return apperr.Errorf(apperr.KindValidation, op, "%w: %v", ErrBadRequest, err)
}
