// Package guard forces test mode before any package under test can
// read the flag. Import it for side effects from tests that construct
// binaries or app wiring.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("STRATUS_TEST_MODE") == "" {
			_ = os.Setenv("STRATUS_TEST_MODE", "1")
		}
	})
}
