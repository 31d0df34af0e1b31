// Package guard marks the process as a test run. Test packages import it
// for side effect so code paths gated on app.InTestMode stay inert.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("ATLAS_TEST_MODE") == "" {
			_ = os.Setenv("ATLAS_TEST_MODE", "1")
		}
	})
}
