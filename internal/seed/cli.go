package seed

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/medrank/pkg/logger"
)

const logFilePermission = 0o600

// SetupLogging initializes the global logger to stdout and, when logFile
// is set, to that file as well. The returned func closes the file.
func SetupLogging(logFile string, verbose bool) (func(), error) {
	level := "info"
	if verbose {
		level = "debug"
	}
	if logFile == "" {
		return func() {}, logger.Init(logger.WithLevel(level))
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	if err := logger.Init(logger.WithLevel(level), logger.WithWriter(io.MultiWriter(os.Stdout, f))); err != nil {
		_ = f.Close()
		return nil, err
	}
	return func() { _ = f.Close() }, nil
}

// ShowHelp prints usage information for the seed tool.
func ShowHelp(w io.Writer) {
	_, _ = io.WriteString(w, `medrank seed
============

Loads a synthetic doctor catalog into a running medrank service,
recalculates scores and optionally checks the resulting ranking.

Usage:
  go run ./cmd/seed [options]

Options:
  -addr string
        Base URL of the service (default "http://localhost:9080")
  -doctors int
        Number of doctors to generate (default 200)
  -seed uint
        Generator seed; equal seeds give equal catalogs (default 1)
  -batch int
        Doctors per import request (default 100)
  -workers int
        Concurrent import requests (default 4)
  -profile string
        Profile id to score under (default: the active default profile)
  -timeout duration
        HTTP request timeout (default 30s)
  -verify
        Fetch the ranking report and check it
  -log string
        Also write logs to this file
  -verbose
        Enable debug logging
  -help
        Show this help message

Examples:
  # Seed 1000 doctors and check the ranking
  go run ./cmd/seed -doctors 1000 -verify

  # Seed against another instance under a specific profile
  go run ./cmd/seed -addr http://localhost:8080 -profile 6f1c... -verify
`)
}
