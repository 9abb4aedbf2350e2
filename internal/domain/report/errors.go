package report

import "errors"

var (
	// ErrUnknownKind is returned for an unsupported report kind.
	ErrUnknownKind = errors.New("unknown report kind")
	// ErrInvalidFilter is returned when a filter range is malformed.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrInvalidExpr is returned when a filter expression does not compile
	// to a boolean or fails to evaluate.
	ErrInvalidExpr = errors.New("invalid filter expression")
	// ErrComparisonPair is returned when a comparison lacks two distinct ids.
	ErrComparisonPair = errors.New("comparison needs two distinct doctor ids")
	// ErrDoctorNotInSet is returned when a compared doctor is not in the
	// filtered set.
	ErrDoctorNotInSet = errors.New("doctor not in report set")
)
