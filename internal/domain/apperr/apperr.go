// Package apperr defines the error kinds surfaced by the evaluation engine
// and its stores. Callers classify failures with KindOf or errors.Is against
// the sentinels.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for callers and transports.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindStore
	KindCancelled
)

// Sentinels matched by errors.Is for each kind.
var (
	ErrInternal   = errors.New("internal error")
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrStore      = errors.New("store error")
	ErrCancelled  = errors.New("cancelled")
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindStore:
		return "store_error"
	case KindCancelled:
		return "cancelled"
	default:
		return "internal_error"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	case KindStore:
		return ErrStore
	case KindCancelled:
		return ErrCancelled
	default:
		return ErrInternal
	}
}

// Error is a classified error raised by operation Op.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return e.Op + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return e.Op + ": " + e.Kind.String()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNotFound) and friends match on kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// New builds a classified error from a message.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// Errorf builds a classified error from a format string. %w is honoured.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err. A nil err stays nil. An already classified error
// keeps its kind unless it is internal.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) && ae.Kind != KindInternal {
		return &Error{Kind: ae.Kind, Op: op, Err: err}
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// FromContext turns a context error into a Cancelled error.
func FromContext(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindCancelled, Op: op, Err: err}
}

// CheckContext returns a Cancelled error once ctx is done.
func CheckContext(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return FromContext(op, err)
	}
	return nil
}

// KindOf reports the kind of err. Context errors count as cancelled;
// anything unclassified is internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	var be *BatchError
	if errors.As(err, &be) {
		return be.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	for _, k := range []Kind{KindValidation, KindNotFound, KindConflict, KindStore, KindCancelled} {
		if errors.Is(err, k.sentinel()) {
			return k
		}
	}
	return KindInternal
}

// Failure describes one failed item inside a batch.
type Failure struct {
	ID      string `json:"id"`
	Row     int    `json:"row,omitempty"`
	Field   string `json:"field,omitempty"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

func (f Failure) String() string {
	var b strings.Builder
	if f.Row > 0 {
		fmt.Fprintf(&b, "row %d", f.Row)
	}
	if f.ID != "" {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "id=%s", f.ID)
	}
	if f.Field != "" {
		fmt.Fprintf(&b, " field=%s", f.Field)
	}
	if f.Value != "" {
		fmt.Fprintf(&b, " value=%q", f.Value)
	}
	if b.Len() > 0 {
		b.WriteString(": ")
	}
	b.WriteString(f.Message)
	return b.String()
}

// BatchError aggregates per-item failures of an all-or-nothing batch.
type BatchError struct {
	Kind     Kind
	Op       string
	Failures []Failure
	// Limit caps how many failures Error() lists. Zero means 20.
	Limit int
}

const defaultFailureLimit = 20

func (e *BatchError) Error() string {
	limit := e.Limit
	if limit <= 0 {
		limit = defaultFailureLimit
	}
	shown := e.Failures
	if len(shown) > limit {
		shown = shown[:limit]
	}
	parts := make([]string, 0, len(shown))
	for _, f := range shown {
		parts = append(parts, f.String())
	}
	msg := fmt.Sprintf("%s: %d failure(s): %s", e.Op, len(e.Failures), strings.Join(parts, "; "))
	if len(e.Failures) > len(shown) {
		msg += fmt.Sprintf("; and %d more", len(e.Failures)-len(shown))
	}
	return msg
}

// Is matches the sentinel of the batch kind.
func (e *BatchError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// First returns at most n failures.
func (e *BatchError) First(n int) []Failure {
	if n <= 0 || n >= len(e.Failures) {
		return e.Failures
	}
	return e.Failures[:n]
}
