// Package testutil isolates nodepack tests from the developer's environment.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// EnvVars lists every environment variable nodepack reads.
var EnvVars = []string{
	"NODEPACK_TEMP",
	"NODEPACK_SOURCE_URL",
	"NODEPACK_BUILD",
	"NODEPACK_TARGET",
	"NODEPACK_TIMEOUT",
	"NODEPACK_PROXY",
	"NODEPACK_VERIFY",
	"NODEPACK_KEYRING",
	"NODEPACK_GH_TOKEN",
	"GITHUB_TOKEN",
	"NODEPACK_LOG_LEVEL",
	"NODEPACK_LOG_FORMAT",
}

// SetupTestEnv blanks every nodepack variable and points the home directory
// at a fresh temp dir, so the default cache (~/.nodepack) is never the real
// one. It returns the fake home. Cleanup is handled by t.TempDir and t.Setenv.
func SetupTestEnv(t *testing.T) string {
	t.Helper()

	home := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(home, 0o750); err != nil {
		t.Fatalf("failed to create test home %s: %v", home, err)
	}

	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	for _, key := range EnvVars {
		t.Setenv(key, "")
	}

	return home
}
