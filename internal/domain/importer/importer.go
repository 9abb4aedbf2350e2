// Package importer turns CSV and JSON uploads into validated doctor records.
package importer

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/okian/medrank/internal/domain/apperr"
	"github.com/okian/medrank/internal/domain/model"
	"github.com/okian/medrank/pkg/logger"
	"github.com/okian/medrank/pkg/metrics"
)

//go:embed doctor.schema.json
var doctorSchema string

const (
	schemaURL       = "doctor.schema.json"
	defaultMaxRows  = 50_000
	formatCSV       = "csv"
	formatJSON      = "json"
	outcomeAccepted = "accepted"
	outcomeRejected = "rejected"
)

// Outcome is the result of an import: the accepted doctors in input order,
// the number of data rows read and one failure per offending field.
type Outcome struct {
	Doctors  []model.Doctor   `json:"-"`
	Total    int              `json:"total_rows"`
	Accepted int              `json:"success_count"`
	Rejected int              `json:"error_count"`
	Failures []apperr.Failure `json:"errors"`
}

// Err returns a Validation batch error when any row was rejected.
func (o Outcome) Err(op string, limit int) error {
	if len(o.Failures) == 0 {
		return nil
	}
	return &apperr.BatchError{Kind: apperr.KindValidation, Op: op, Failures: o.Failures, Limit: limit}
}

// Option configures an Importer.
type Option func(*Importer)

// WithClock overrides the timestamp source for created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(i *Importer) {
		if now != nil {
			i.now = now
		}
	}
}

// WithMaxRows caps the number of data rows per import.
func WithMaxRows(n int) Option {
	return func(i *Importer) {
		if n > 0 {
			i.maxRows = n
		}
	}
}

// WithLogger sets the importer logger.
func WithLogger(l logger.Logger) Option {
	return func(i *Importer) {
		if l != nil {
			i.log = l
		}
	}
}

// Importer parses doctor uploads. Rows are checked against the doctor JSON
// schema and the model's own validation; duplicate ids in one upload are
// rejected. It is safe for concurrent use.
type Importer struct {
	schema  *jsonschema.Schema
	cols    []column
	byName  map[string]column
	maxRows int
	now     func() time.Time
	log     logger.Logger
}

// New compiles the embedded schema and returns an Importer.
func New(opts ...Option) (*Importer, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(doctorSchema)); err != nil {
		return nil, fmt.Errorf("add doctor schema: %w", err)
	}
	schema, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile doctor schema: %w", err)
	}
	cols := columns()
	i := &Importer{
		schema:  schema,
		cols:    cols,
		byName:  lookup(cols),
		maxRows: defaultMaxRows,
		now:     time.Now,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// generatedID names a doctor without an id by its 1-based data row.
func generatedID(row int) string { return fmt.Sprintf("doc_%04d", row) }

// CSV imports a header-driven CSV. Header names are matched
// case-insensitively against doctor field names and their aliases; unknown
// columns are ignored and missing optional columns leave fields absent.
// Failure rows are file line numbers.
func (i *Importer) CSV(ctx context.Context, r io.Reader) (Outcome, error) {
	const op = "import_csv"
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Outcome{}, apperr.Wrap(apperr.KindValidation, op, ErrEmptyInput)
	}
	if err != nil {
		return Outcome{}, apperr.Wrap(apperr.KindValidation, op, err)
	}
	type bound struct {
		pos int
		col column
	}
	index := make([]bound, 0, len(header))
	seen := map[string]bool{}
	for pos, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		c, ok := i.byName[name]
		if !ok || seen[c.key] {
			continue
		}
		seen[c.key] = true
		index = append(index, bound{pos: pos, col: c})
	}
	for _, c := range i.cols {
		if c.required && !seen[c.key] {
			return Outcome{}, apperr.Wrap(apperr.KindValidation, op, fmt.Errorf("%w: %s", ErrMissingColumn, c.key))
		}
	}

	b := i.newBatch()
	row := 0
	for {
		if err := apperr.CheckContext(ctx, op); err != nil {
			return Outcome{}, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line := 0
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				line = perr.Line
			}
			b.reject(apperr.Failure{Row: line, Message: err.Error()})
			continue
		}
		if blank(rec) {
			continue
		}
		row++
		if row > i.maxRows {
			return Outcome{}, apperr.Wrap(apperr.KindValidation, op, fmt.Errorf("%w: %d", ErrTooManyRows, i.maxRows))
		}
		line, _ := cr.FieldPos(0)

		fields := make(map[string]any, len(index))
		var failures []apperr.Failure
		for _, f := range index {
			if f.pos >= len(rec) {
				continue
			}
			v, ok, msg := f.col.parse(rec[f.pos])
			if msg != "" {
				failures = append(failures, apperr.Failure{Row: line, Field: f.col.key, Value: rec[f.pos], Message: msg})
				continue
			}
			if ok {
				fields[f.col.key] = v
			}
		}
		if id, _ := fields["id"].(string); id == "" {
			fields["id"] = generatedID(row)
		}
		if len(failures) > 0 {
			b.rejectAll(failures)
			continue
		}
		raw, err := json.Marshal(fields)
		if err != nil {
			b.reject(apperr.Failure{Row: line, Message: err.Error()})
			continue
		}
		b.add(line, raw)
	}
	return i.finish(ctx, formatCSV, b), nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// JSON imports an array of doctor objects in the wire format (human scores
// on the 0-10 scale). Failure rows are 1-based array positions.
func (i *Importer) JSON(ctx context.Context, r io.Reader) (Outcome, error) {
	const op = "import_json"
	var items []json.RawMessage
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		if errors.Is(err, io.EOF) {
			return Outcome{}, apperr.Wrap(apperr.KindValidation, op, ErrEmptyInput)
		}
		return Outcome{}, apperr.Wrap(apperr.KindValidation, op, fmt.Errorf("%w: %v", ErrMalformedJSON, err))
	}
	if len(items) > i.maxRows {
		return Outcome{}, apperr.Wrap(apperr.KindValidation, op, fmt.Errorf("%w: %d", ErrTooManyRows, i.maxRows))
	}

	b := i.newBatch()
	for n, item := range items {
		if err := apperr.CheckContext(ctx, op); err != nil {
			return Outcome{}, err
		}
		row := n + 1
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(item, &probe); err != nil || probe == nil {
			b.reject(apperr.Failure{Row: row, Message: ErrMalformedJSON.Error()})
			continue
		}
		if id, ok := probe["id"]; !ok || string(id) == `""` || string(id) == "null" {
			probe["id"], _ = json.Marshal(generatedID(row))
			item, _ = json.Marshal(probe)
		}
		b.add(row, item)
	}
	return i.finish(ctx, formatJSON, b), nil
}

// batch accumulates rows of one import.
type batch struct {
	total    int
	doctors  []model.Doctor
	failures []apperr.Failure
	rejected map[int]bool
	ids      map[string]int
	pending  []pendingRow
}

type pendingRow struct {
	row int
	raw []byte
}

func (i *Importer) newBatch() *batch {
	return &batch{rejected: map[int]bool{}, ids: map[string]int{}}
}

func (b *batch) reject(f apperr.Failure) {
	b.total++
	b.rejected[f.Row] = true
	b.failures = append(b.failures, f)
}

func (b *batch) rejectAll(fs []apperr.Failure) {
	b.total++
	for _, f := range fs {
		b.rejected[f.Row] = true
		b.failures = append(b.failures, f)
	}
}

func (b *batch) add(row int, raw []byte) {
	b.total++
	b.pending = append(b.pending, pendingRow{row: row, raw: raw})
}

// finish validates the pending rows and assembles the outcome.
func (i *Importer) finish(ctx context.Context, format string, b *batch) Outcome {
	now := i.now()
	for _, p := range b.pending {
		d, failures := i.decode(p.row, p.raw)
		if len(failures) == 0 {
			if first, dup := b.ids[d.ID]; dup {
				failures = append(failures, apperr.Failure{
					Row: p.row, ID: d.ID, Field: "id", Value: d.ID,
					Message: fmt.Sprintf("ID重复，与第%d行冲突", first),
				})
			}
		}
		if len(failures) > 0 {
			b.rejected[p.row] = true
			b.failures = append(b.failures, failures...)
			continue
		}
		b.ids[d.ID] = p.row
		if d.CreatedAt.IsZero() {
			d.CreatedAt = now
		}
		d.UpdatedAt = now
		b.doctors = append(b.doctors, d)
	}

	out := Outcome{
		Doctors:  b.doctors,
		Total:    b.total,
		Accepted: len(b.doctors),
		Rejected: len(b.rejected),
		Failures: b.failures,
	}
	if out.Failures == nil {
		out.Failures = []apperr.Failure{}
	}
	metrics.RecordImportRows(format, outcomeAccepted, out.Accepted)
	metrics.RecordImportRows(format, outcomeRejected, out.Rejected)
	i.log.Info(ctx, "import parsed",
		logger.String("format", format),
		logger.Int("total", out.Total),
		logger.Int("accepted", out.Accepted),
		logger.Int("rejected", out.Rejected),
	)
	return out
}

// decode checks one JSON object against the schema and the model.
func (i *Importer) decode(row int, raw []byte) (model.Doctor, []apperr.Failure) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return model.Doctor{}, []apperr.Failure{{Row: row, Message: err.Error()}}
	}
	if err := i.schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if !errors.As(err, &verr) {
			return model.Doctor{}, []apperr.Failure{{Row: row, Message: err.Error()}}
		}
		return model.Doctor{}, schemaFailures(row, verr)
	}

	var d model.Doctor
	if err := json.Unmarshal(raw, &d); err != nil {
		return model.Doctor{}, []apperr.Failure{{Row: row, Message: err.Error()}}
	}
	d.ID = strings.TrimSpace(d.ID)
	d.Name = strings.TrimSpace(d.Name)
	if err := d.Validate(); err != nil {
		f := apperr.Failure{Row: row, ID: d.ID, Message: err.Error()}
		var ferr *model.FieldError
		if errors.As(err, &ferr) {
			f.Field, f.Message = ferr.Field, ferr.Message
		}
		return model.Doctor{}, []apperr.Failure{f}
	}
	return d, nil
}

// schemaFailures flattens a validation error tree into one failure per leaf.
func schemaFailures(row int, verr *jsonschema.ValidationError) []apperr.Failure {
	var out []apperr.Failure
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			out = append(out, apperr.Failure{
				Row:     row,
				Field:   strings.TrimPrefix(e.InstanceLocation, "/"),
				Message: e.Message,
			})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)
	return out
}
