package service

import "errors"

var (
	// ErrNotStarted is returned by operations called before Start.
	ErrNotStarted = errors.New("service not started")
	// ErrUnknownPreset is returned for a preset key that is not defined.
	ErrUnknownPreset = errors.New("unknown preset")
	// ErrInvalidPage is returned for a negative list offset.
	ErrInvalidPage = errors.New("invalid page")
)
