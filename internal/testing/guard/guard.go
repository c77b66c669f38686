// Package guard flips the binaries into test mode when imported by a test,
// so that command packages never dial PostgreSQL or Redis under go test.
package guard

import "os"

// EnvVar is the switch read by app.InTestMode.
const EnvVar = "CREDIARIO_TEST_MODE"

func init() {
	if os.Getenv(EnvVar) == "" {
		_ = os.Setenv(EnvVar, "1")
	}
}
