// Package testutil provides shared skip helpers and audio assertions for
// tests.
//
// Each Require helper calls t.Skip with a clear human-readable reason when
// the named prerequisite is absent, so integration tests remain runnable in
// partial environments without failing noisily.
//
// Typical usage:
//
//	func TestMyIntegration(t *testing.T) {
//	    url := testutil.RequireEngineURL(t)
//	    ...
//	}
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
)

// EngineURLEnv names the variable pointing integration tests at a running
// inference server.
const EngineURLEnv = "ORPHEUSTTS_ENGINE_URL"

// RequireEngineURL skips the test unless EngineURLEnv is set, and returns
// its value.
func RequireEngineURL(tb testing.TB) string {
	tb.Helper()

	url := os.Getenv(EngineURLEnv)
	if url == "" {
		tb.Skipf("no inference server configured; set %s to run", EngineURLEnv)
	}
	return url
}

// RequirePOSIXShell skips the test when /bin/sh scripts cannot be run.
func RequirePOSIXShell(tb testing.TB) {
	tb.Helper()

	if runtime.GOOS == "windows" {
		tb.Skip("shell scripts are not executable on windows")
		return
	}
	if _, err := exec.LookPath("sh"); err != nil {
		tb.Skipf("sh not available: %v", err)
	}
}

// WriteScript writes an executable /bin/sh script with body to a temp dir
// and returns its path. It skips the test where scripts cannot run.
func WriteScript(tb testing.TB, name, body string) string {
	tb.Helper()
	RequirePOSIXShell(tb)

	script := filepath.Join(tb.TempDir(), name)
	if err := os.WriteFile(script, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		tb.Fatalf("WriteFile script: %v", err)
	}
	return script
}
