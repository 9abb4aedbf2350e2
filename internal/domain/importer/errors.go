package importer

import "errors"

var (
	// ErrEmptyInput is returned when an import has no header or no array.
	ErrEmptyInput = errors.New("import input is empty")
	// ErrMissingColumn is returned when a required CSV column is absent.
	ErrMissingColumn = errors.New("required column missing")
	// ErrMalformedJSON is returned when a JSON import is not an array of objects.
	ErrMalformedJSON = errors.New("import is not a JSON array of doctors")
	// ErrTooManyRows is returned when an import exceeds the row limit.
	ErrTooManyRows = errors.New("import exceeds row limit")
)
