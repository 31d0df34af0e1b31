package app

import (
	"os"
	"sync"
	"sync/atomic"
)

const testModeEnv = "ATLAS_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

func detectTestMode() {
	switch os.Getenv(testModeEnv) {
	case "1", "true":
		testModeFlag.Store(true)
	default:
		testModeFlag.Store(false)
	}
}

// InTestMode reports whether runtime side effects (server startup, job
// scheduling) should be skipped. The flag is read once per process.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode re-reads the flag after an environment change.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	detectTestMode()
}
