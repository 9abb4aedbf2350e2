package config

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig marks a configuration that failed validation.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrInvalidScoring marks out-of-range scoring parameters. It matches
	// ErrInvalidConfig under errors.Is.
	ErrInvalidScoring = fmt.Errorf("%w: scoring parameters", ErrInvalidConfig)
	// ErrLoadConfig marks a file or environment source that could not be read.
	ErrLoadConfig = errors.New("load config failed")
)
