// Package testing flips the binaries into test mode when blank-imported
// from a _test.go file. The guard import does the actual work at init.
package testing

import (
	"os"
	stdtesting "testing"

	_ "github.com/harborwatch/harborwatch/internal/testing/guard"
)

func TestMain(m *stdtesting.M) {
	os.Exit(m.Run())
}
