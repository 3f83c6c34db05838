// Package daemon ties the orchestrator to its process-level concerns: a
// single-instance lock, the HTTP API, and coordinated shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"tonearm/internal/config"
	"tonearm/internal/lease"
	"tonearm/internal/logging"
	"tonearm/internal/orchestrator"
)

// shutdownGrace bounds how long in-flight HTTP requests may linger on stop.
const shutdownGrace = 10 * time.Second

// Daemon is the long-running tonearm process.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	orch   *orchestrator.Orchestrator

	instanceLock *lease.FileLease
	server       *http.Server
}

// New constructs a daemon. Nothing runs until Run.
func New(cfg *config.Config, logger *slog.Logger) *Daemon {
	orch := orchestrator.New(cfg, logger)
	api := newAPIServer(cfg, orch, logger)
	return &Daemon{
		cfg:          cfg,
		logger:       logging.NewComponentLogger(logger, "daemon"),
		orch:         orch,
		instanceLock: lease.NewFile(filepath.Join(cfg.Paths.LogDir, "tonearmd.lock")),
		server: &http.Server{
			Addr:              cfg.Paths.APIBind,
			Handler:           api.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Run starts the daemon and blocks until ctx is cancelled or the HTTP
// server fails. A second daemon against the same log directory refuses to
// start.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	acquired, err := d.instanceLock.TryAcquire(ctx, 0)
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !acquired {
		return errors.New("another tonearmd instance is already running")
	}
	defer func() {
		if err := d.instanceLock.Release(); err != nil {
			d.logger.Warn("instance lock release failed", logging.Error(err))
		}
	}()

	if err := d.orch.Start(ctx); err != nil {
		return err
	}
	defer d.orch.Stop()

	listener, err := net.Listen("tcp", d.server.Addr)
	if err != nil {
		return fmt.Errorf("bind api address %s: %w", d.server.Addr, err)
	}
	d.logger.Info("api listening", logging.String("addr", listener.Addr().String()))

	serveErr := make(chan error, 1)
	go func() {
		if err := d.server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	d.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn("http shutdown incomplete", logging.Error(err))
	}
	return nil
}
