// Package testutil provides fixtures for testing the signing tool in
// isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// SetupTestEnv creates isolated test directories for each test and points
// the tool's environment at them. This ensures tests never interfere with:
// - a real credential bundle exported by CI
// - the user's store directory or config file
//
// The cleanup function is automatically handled by t.TempDir(),
// so callers don't need to manually clean up. It returns the root directory.
func SetupTestEnv(t *testing.T) string {
	t.Helper()

	// Create temp directory (auto-cleaned by testing framework)
	tmpDir := t.TempDir()

	t.Setenv("RUST_TOOL_ACTION_CONFIG", filepath.Join(tmpDir, "sign.lua"))
	t.Setenv("RUST_TOOL_ACTION_STORE_DIR", filepath.Join(tmpDir, "store"))
	t.Setenv("RUST_TOOL_ACTION_JOURNAL_DIR", filepath.Join(tmpDir, "journal"))

	// Never pick up a credential bundle or a real timestamp server
	t.Setenv("RUST_TOOL_ACTION_CODE_SIGN_CRT", "")
	t.Setenv("RUST_TOOL_ACTION_CODE_SIGN_CRTPASS", "")
	t.Setenv("RUST_TOOL_ACTION_TIMESTAMP_URL", "")

	// Mark as test mode
	t.Setenv("RUST_TOOL_ACTION_TEST_MODE", "1")

	dirs := []string{
		filepath.Join(tmpDir, "store"),
		filepath.Join(tmpDir, "journal"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}
	return tmpDir
}
