// Package seed loads a synthetic doctor catalog into a running medrank
// service and checks the ranking it produces.
package seed

import "time"

// Config holds configuration for a seeding run.
type Config struct {
	BaseURL   string        // Base URL of the service
	Doctors   int           // Number of doctors to generate
	Seed      uint64        // Generator seed; equal seeds give equal catalogs
	BatchSize int           // Doctors per import request
	Workers   int           // Concurrent import requests
	ProfileID string        // Profile to recalculate and rank under; empty means default
	Timeout   time.Duration // HTTP request timeout
	Verify    bool          // Fetch the ranking report and check it
}

// Stats holds run statistics.
type Stats struct {
	Generated int
	Batches   int
	Accepted  int
	Rejected  int
	Updated   int
	Ranked    int
	StartTime time.Time
	Duration  time.Duration
}

// importOutcome mirrors the import endpoint response.
type importOutcome struct {
	Total    int `json:"total_rows"`
	Accepted int `json:"success_count"`
	Rejected int `json:"error_count"`
}

// recalculation mirrors the recalculate endpoint response.
type recalculation struct {
	Updated     int    `json:"updated"`
	Total       int    `json:"total"`
	ProfileID   string `json:"profile_id"`
	ProfileName string `json:"profile_name"`
}

// Entry is one row of a ranking report.
type Entry struct {
	DoctorID  string  `json:"doctor_id"`
	Composite float64 `json:"composite"`
	Tier      string  `json:"tier"`
	Rank      int     `json:"rank"`
}

type rankingReport struct {
	Data struct {
		Rankings []struct {
			Score Entry `json:"score"`
		} `json:"rankings"`
	} `json:"data"`
}
