package daemon

import (
	"context"
	"strings"
	"testing"
	"time"

	"tonearm/internal/logging"
	"tonearm/internal/testsupport"
)

func TestRunStopsOnContextCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := New(cfg, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	time.Sleep(300 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop after cancel")
	}
}

func TestSecondInstanceRefusesToStart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := New(cfg, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- first.Run(ctx) }()
	time.Sleep(300 * time.Millisecond)

	second := New(cfg, logging.NewNop())
	err := second.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected second instance to refuse, got %v", err)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("first instance run: %v", err)
	}
}
