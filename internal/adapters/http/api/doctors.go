package api

import (
	"context"
	"io"
	"net/http"
	"strings"

	service "github.com/okian/medrank/internal/app"
	"github.com/okian/medrank/internal/domain/importer"
	"github.com/okian/medrank/internal/domain/model"
)

// DoctorDependencies covers the catalog routes.
type DoctorDependencies interface {
	ListDoctors(ctx context.Context, offset, limit int) (service.DoctorPage, error)
	UpsertDoctor(ctx context.Context, d model.Doctor) (model.Doctor, error)
	GetDoctor(ctx context.Context, id string) (model.Doctor, error)
}

// ImportDependencies covers bulk import.
type ImportDependencies interface {
	ImportCSV(ctx context.Context, r io.Reader) (importer.Outcome, error)
	ImportJSON(ctx context.Context, r io.Reader) (importer.Outcome, error)
	ImportTemplate() (importer.Template, error)
}

// DoctorHandler serves the catalog.
type DoctorHandler struct {
	deps     DoctorDependencies
	maxLimit int
}

// NewDoctorHandler creates a catalog handler.
func NewDoctorHandler(deps DoctorDependencies, maxLimit int) *DoctorHandler {
	return &DoctorHandler{deps: deps, maxLimit: maxLimit}
}

// HandleList handles GET /api/doctors?offset=&limit= requests.
func (h *DoctorHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_doctors"
	offset, err := queryInt(r, op, "offset", 0)
	if err != nil {
		writeAppError(w, err)
		return
	}
	limit, err := queryInt(r, op, "limit", h.maxLimit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	page, err := h.deps.ListDoctors(r.Context(), offset, limit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleUpsert handles POST /api/doctors. The stored record is returned.
func (h *DoctorHandler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	const op = "api.upsert_doctor"
	var d model.Doctor
	if err := decodeJSON(w, r, op, &d); err != nil {
		writeAppError(w, err)
		return
	}
	stored, err := h.deps.UpsertDoctor(r.Context(), d)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// HandleGet handles GET /api/doctors/{id}.
func (h *DoctorHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_doctor"
	id, err := pathID(r, op, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	d, err := h.deps.GetDoctor(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ImportHandler accepts catalog uploads.
type ImportHandler struct {
	deps ImportDependencies
}

// NewImportHandler creates an import handler.
func NewImportHandler(deps ImportDependencies) *ImportHandler {
	return &ImportHandler{deps: deps}
}

// HandleCSV handles POST /api/import/csv. The body is either the raw CSV
// or a multipart form with the CSV in the "file" field.
func (h *ImportHandler) HandleCSV(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, h.deps.ImportCSV)
}

// HandleJSON handles POST /api/import/json with a JSON array of doctors.
func (h *ImportHandler) HandleJSON(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, h.deps.ImportJSON)
}

func (h *ImportHandler) handle(w http.ResponseWriter, r *http.Request, run func(context.Context, io.Reader) (importer.Outcome, error)) {
	body, closeBody, err := uploadBody(w, r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	defer closeBody()

	out, err := run(r.Context(), body)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleTemplate handles GET /api/import/template.
func (h *ImportHandler) HandleTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.deps.ImportTemplate()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

// uploadBody returns the uploaded document, unwrapping a multipart form.
func uploadBody(w http.ResponseWriter, r *http.Request) (io.Reader, func(), error) {
	const op = "api.import"
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBody)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		f, _, err := r.FormFile("file")
		if err != nil {
			return nil, nil, errBadRequest(op, err)
		}
		return f, func() { _ = f.Close() }, nil
	}
	return r.Body, func() {}, nil
}
