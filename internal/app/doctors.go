package service

import (
	"context"
	"io"

	"github.com/okian/medrank/internal/domain/apperr"
	"github.com/okian/medrank/internal/domain/importer"
	"github.com/okian/medrank/internal/domain/model"
	"github.com/okian/medrank/internal/domain/normalize"
	"github.com/okian/medrank/pkg/logger"
)

// DoctorPage is one page of the catalog.
type DoctorPage struct {
	Total   int            `json:"total"`
	Offset  int            `json:"offset"`
	Limit   int            `json:"limit"`
	Doctors []model.Doctor `json:"doctors"`
}

// ImportCSV parses a CSV catalog and stores the rows that pass validation.
// Rejected rows are reported in the outcome and do not fail the import.
func (s *Service) ImportCSV(ctx context.Context, r io.Reader) (importer.Outcome, error) {
	return s.importDoctors(ctx, "import_csv", func() (importer.Outcome, error) {
		return s.importer.CSV(ctx, r)
	})
}

// ImportJSON parses a JSON array of doctors and stores the valid ones.
func (s *Service) ImportJSON(ctx context.Context, r io.Reader) (importer.Outcome, error) {
	return s.importDoctors(ctx, "import_json", func() (importer.Outcome, error) {
		return s.importer.JSON(ctx, r)
	})
}

func (s *Service) importDoctors(ctx context.Context, op string, parse func() (importer.Outcome, error)) (importer.Outcome, error) {
	if err := s.ready(op); err != nil {
		return importer.Outcome{}, err
	}
	out, err := parse()
	if err != nil {
		return importer.Outcome{}, err
	}
	for i := range out.Doctors {
		canonical(&out.Doctors[i])
	}
	if len(out.Doctors) > 0 {
		if err := s.store.PutDoctors(ctx, out.Doctors); err != nil {
			return importer.Outcome{}, err
		}
	}
	s.logger.Info(ctx, "doctors imported",
		logger.String("op", op),
		logger.Int("total", out.Total),
		logger.Int("accepted", out.Accepted),
		logger.Int("rejected", out.Rejected),
	)
	return out, nil
}

// UpsertDoctor validates and stores one doctor. The creation time of an
// existing record is kept.
func (s *Service) UpsertDoctor(ctx context.Context, d model.Doctor) (model.Doctor, error) {
	const op = "upsert_doctor"
	if err := s.ready(op); err != nil {
		return model.Doctor{}, err
	}
	canonical(&d)
	if d.ID == "" {
		d.ID = s.newID()
	}
	if err := d.Validate(); err != nil {
		return model.Doctor{}, apperr.Wrap(apperr.KindValidation, op, err)
	}

	now := s.now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	existing, err := s.store.GetDoctor(ctx, d.ID)
	switch {
	case err == nil:
		d.CreatedAt = existing.CreatedAt
	case !isNotFound(err):
		return model.Doctor{}, err
	}

	if err := s.store.PutDoctors(ctx, []model.Doctor{d}); err != nil {
		return model.Doctor{}, err
	}
	return d, nil
}

// GetDoctor returns one catalog record.
func (s *Service) GetDoctor(ctx context.Context, id string) (model.Doctor, error) {
	if err := s.ready("get_doctor"); err != nil {
		return model.Doctor{}, err
	}
	return s.store.GetDoctor(ctx, id)
}

// ListDoctors pages through the catalog in id order. A non-positive limit
// and a limit above the configured cap both use the cap.
func (s *Service) ListDoctors(ctx context.Context, offset, limit int) (DoctorPage, error) {
	const op = "list_doctors"
	if err := s.ready(op); err != nil {
		return DoctorPage{}, err
	}
	if offset < 0 {
		return DoctorPage{}, apperr.Errorf(apperr.KindValidation, op, "offset %d: %w", offset, ErrInvalidPage)
	}
	if limit <= 0 || limit > s.maxListLimit {
		limit = s.maxListLimit
	}

	all, err := s.store.ListDoctors(ctx)
	if err != nil {
		return DoctorPage{}, err
	}
	page := DoctorPage{Total: len(all), Offset: offset, Limit: limit, Doctors: []model.Doctor{}}
	if offset < len(all) {
		end := min(offset+limit, len(all))
		page.Doctors = all[offset:end]
	}
	return page, nil
}

// ImportTemplate describes the accepted import columns.
func (s *Service) ImportTemplate() (importer.Template, error) {
	if err := s.ready("import_template"); err != nil {
		return importer.Template{}, err
	}
	return s.importer.Template(), nil
}

// canonical trims the identity fields and brings labels into NFC form so
// coefficient lookups and group keys match byte for byte.
func canonical(d *model.Doctor) {
	d.ID = normalize.Label(d.ID)
	d.Name = normalize.Label(d.Name)
	d.Title = normalize.Label(d.Title)
	d.Region = normalize.Label(d.Region)
	d.Department = normalize.Label(d.Department)
	d.AgencyName = normalize.Label(d.AgencyName)
}
