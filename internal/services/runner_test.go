package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRunCommandCapturesOutput(t *testing.T) {
	out, err := RunCommand(context.Background(), 5*time.Second, "sh", "-c", "echo hello")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.TrimSpace(out) != "hello" {
		t.Fatalf("output = %q", out)
	}
}

func TestRunCommandFailureKeepsOutput(t *testing.T) {
	out, err := RunCommand(context.Background(), 5*time.Second, "sh", "-c", "echo oops; exit 3")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrExternalTool) {
		t.Fatalf("error not tagged as external tool: %v", err)
	}
	if !strings.Contains(out, "oops") {
		t.Fatalf("output lost on failure: %q", out)
	}
}

func TestRunCommandTimeout(t *testing.T) {
	_, err := RunCommand(context.Background(), 50*time.Millisecond, "sh", "-c", "sleep 5")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestSnippet(t *testing.T) {
	if got := Snippet("  short  ", 100); got != "short" {
		t.Fatalf("snippet = %q", got)
	}
	long := strings.Repeat("x", 300)
	if got := Snippet(long, 200); len(got) != 200 {
		t.Fatalf("snippet length = %d", len(got))
	}
}

func TestWrapClassification(t *testing.T) {
	err := Wrap(ErrQuotaExceeded, "beets", "lyrics", "rate limited", nil)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("marker lost: %v", err)
	}
	if !strings.Contains(err.Error(), "beets: lyrics: rate limited") {
		t.Fatalf("detail missing: %v", err)
	}
}
