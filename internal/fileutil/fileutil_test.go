package fileutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	if err := os.WriteFile(src, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}
	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("copy: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read dst: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("unexpected content: %q", data)
	}
}

// A copy still in flight must never be visible at the destination. The
// source is a FIFO so the test controls exactly when the stream ends: the
// destination may only appear after the writer closes its end.
func TestCopyFileStagesInTemp(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.fifo")
	dst := filepath.Join(dir, "cover.jpg")
	if err := unix.Mkfifo(src, 0o600); err != nil {
		t.Fatalf("mkfifo: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- CopyFile(src, dst) }()

	w, err := os.OpenFile(src, os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open fifo for writing: %v", err)
	}
	if _, err := w.Write([]byte("PARTIAL")); err != nil {
		t.Fatalf("write first chunk: %v", err)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Fatalf("destination visible mid-copy (stat err: %v)", err)
	}
	if _, err := w.Write([]byte("-COMPLETE")); err != nil {
		t.Fatalf("write second chunk: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close fifo: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("copy: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read dst: %v", err)
	}
	if string(data) != "PARTIAL-COMPLETE" {
		t.Fatalf("unexpected content: %q", data)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "cover.jpg")

	if err := WriteFileAtomic(target, []byte("image-bytes"), 0o644); err != nil {
		t.Fatalf("atomic write: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	if string(data) != "image-bytes" {
		t.Fatalf("unexpected content: %q", data)
	}

	// Overwrite should also succeed and leave no temp residue.
	if err := WriteFileAtomic(target, []byte("replacement"), 0o644); err != nil {
		t.Fatalf("atomic overwrite: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".cover.jpg.tmp-") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
}
