package app

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"
)

// testModeEnv makes cmd/api and cmd/worker exit before dialing Postgres,
// Redis or Kafka.
const testModeEnv = "REPLENISHMENT_TEST_MODE"

var (
	testMode     atomic.Bool
	testModeOnce sync.Once
)

func loadTestMode() {
	enabled, _ := strconv.ParseBool(os.Getenv(testModeEnv))
	testMode.Store(enabled)
}

// InTestMode reports whether the binaries should skip connecting to backends.
func InTestMode() bool {
	testModeOnce.Do(loadTestMode)
	return testMode.Load()
}

// RefreshTestMode re-reads the environment after it changed.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	loadTestMode()
}
