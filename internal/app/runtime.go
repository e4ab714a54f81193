package app

import "os"

const testModeEnv = "ODYSSEY_TEST_MODE"

// InTestMode reports whether binaries should return before opening
// connections. Tests set ODYSSEY_TEST_MODE=1 by importing internal/testing/guard.
func InTestMode() bool {
	return os.Getenv(testModeEnv) == "1"
}
