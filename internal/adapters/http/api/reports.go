package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/okian/medrank/internal/domain/report"
)

// ReportDependencies builds reports.
type ReportDependencies interface {
	BuildReport(ctx context.Context, req report.Request) (*report.Report, error)
}

// ReportHandler serves POST /api/reports.
type ReportHandler struct {
	deps ReportDependencies
}

// NewReportHandler creates a report handler.
func NewReportHandler(deps ReportDependencies) *ReportHandler {
	return &ReportHandler{deps: deps}
}

// HandleBuild builds the requested report. export-csv reports are sent as
// a CSV attachment, every other kind as JSON.
func (h *ReportHandler) HandleBuild(w http.ResponseWriter, r *http.Request) {
	const op = "api.build_report"
	var req report.Request
	if err := decodeJSON(w, r, op, &req); err != nil {
		writeAppError(w, err)
		return
	}
	rep, err := h.deps.BuildReport(r.Context(), req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if rep.Kind == report.KindExportCSV {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "report-"+rep.ID+".csv"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(rep.CSV)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
