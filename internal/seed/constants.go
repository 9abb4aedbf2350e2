package seed

import "time"

// Defaults applied by Config.withDefaults.
const (
	DefaultBaseURL   = "http://localhost:9080"
	DefaultDoctors   = 200
	DefaultBatchSize = 100
	DefaultWorkers   = 4
	DefaultTimeout   = 30 * time.Second
)

const (
	importPath      = "/api/import/json"
	recalculatePath = "/api/scores/recalculate"
	reportsPath     = "/api/reports"
	healthPath      = "/healthz"

	maxErrorBody = 4 << 10
)
