// Package testsupport builds throwaway daemon configurations and stub
// external binaries for tests.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"tonearm/internal/config"
)

// NewConfig returns a configuration rooted in a temp directory, with all
// debounce windows collapsed and background schedulers disabled so tests run
// fast and deterministically.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.InboxDir = filepath.Join(base, "inbox")
	cfg.Paths.LibraryDir = filepath.Join(base, "library")
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "log")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Beets.LibraryDB = filepath.Join(base, "data", "library.db")
	cfg.MPD.PlaylistDir = filepath.Join(base, "data", "playlist")
	cfg.Debounce.InboxSeconds = 1
	cfg.Debounce.LibrarySeconds = 0
	cfg.Debounce.CoverSeconds = 0
	cfg.Debounce.LyricsSeconds = 0
	cfg.Workflow.CleanupIntervalSeconds = 0
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// StubBinaries places executable shell stubs for the named commands on PATH
// for the duration of the test. Each stub prints its arguments and exits
// zero, so command construction can be asserted from captured output files.
func StubBinaries(t *testing.T, names ...string) string {
	t.Helper()
	binDir := t.TempDir()
	for _, name := range names {
		script := "#!/bin/sh\necho \"$@\" >> \"" + filepath.Join(binDir, name+".calls") + "\"\nexit 0\n"
		if err := os.WriteFile(filepath.Join(binDir, name), []byte(script), 0o755); err != nil {
			t.Fatalf("write stub %s: %v", name, err)
		}
	}
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	return binDir
}

// StubCalls reads the invocation log a stub binary wrote, one line per call.
func StubCalls(t *testing.T, binDir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(binDir, name+".calls"))
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		t.Fatalf("read stub calls: %v", err)
	}
	return string(data)
}
