// Package testutil holds helpers shared by dmail tests.
package testutil

import (
	"os"
	"testing"
)

// SkipIfNoNetwork skips the test if DMAIL_TEST_SKIP_NETWORK is set.
// Use it for tests that listen on loopback TCP.
func SkipIfNoNetwork(t *testing.T) {
	t.Helper()
	if os.Getenv("DMAIL_TEST_SKIP_NETWORK") != "" {
		t.Skip("skipping network test: DMAIL_TEST_SKIP_NETWORK is set")
	}
}
