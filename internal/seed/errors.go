package seed

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned for a config that cannot run.
	ErrInvalidConfig = errors.New("invalid seed config")
	// ErrRankingBroken is returned when a ranking report fails verification.
	ErrRankingBroken = errors.New("ranking verification failed")
)

// StatusError is a non-200 API response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.Code, e.Body)
}
