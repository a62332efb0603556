package shared

import "fmt"

// ForecastLockKey builds the redis key serialising pull runs that draw on the
// free quantity of one source location.
func ForecastLockKey(locationID int64) string {
	return fmt.Sprintf("replenishment:location:%d:lock", locationID)
}

// RunIdempotencyModule scopes idempotency keys of procurement runs.
const RunIdempotencyModule = "procurement_run"
