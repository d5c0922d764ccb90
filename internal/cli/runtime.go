package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rohmanhakim/feed-updater/internal/config"
	"github.com/rohmanhakim/feed-updater/internal/logger"
	"github.com/rohmanhakim/feed-updater/internal/metadata"
	"github.com/rohmanhakim/feed-updater/internal/metrics"
	"github.com/rohmanhakim/feed-updater/internal/state"
	"github.com/rohmanhakim/feed-updater/internal/update"
)

// Runtime is the wired engine shared by every subcommand.
type Runtime struct {
	Config    config.Config
	Metrics   *metrics.Metrics
	Recorder  *metadata.Recorder
	Scheduler *update.Scheduler
	Store     state.Store

	metricsServer *http.Server
}

// NewRuntime wires logger, metrics, update-state store and scheduler from
// cfg and starts the scheduler.
func NewRuntime(ctx context.Context, cfg config.Config) (*Runtime, error) {
	if err := logger.Init(logger.Config{
		Level:  cfg.LogLevel(),
		Format: cfg.LogFormat(),
	}); err != nil {
		return nil, err
	}

	m := metrics.New()
	recorder := metadata.NewRecorder(m)

	var store state.Store
	if cfg.StateDir() != "" {
		leveldbStore, err := state.OpenLevelDBStore(cfg.StateDir())
		if err != nil {
			return nil, fmt.Errorf("open state store: %w", err)
		}
		store = leveldbStore
	} else {
		store = state.NewMemoryStore()
	}

	scheduler := update.New(cfg,
		update.WithMetadataSink(recorder),
		update.WithOnlineListener(func(online bool) {
			logger.Info("network state changed", logger.KeyOnline, online)
		}),
	)
	if err := scheduler.Start(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	rt := &Runtime{
		Config:    cfg,
		Metrics:   m,
		Recorder:  recorder,
		Scheduler: scheduler,
		Store:     store,
	}
	if cfg.MetricsAddr() != "" {
		rt.serveMetrics(cfg.MetricsAddr())
	}
	return rt, nil
}

func (r *Runtime) serveMetrics(addr string) {
	r.metricsServer = &http.Server{
		Addr:              addr,
		Handler:           r.Metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := r.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", logger.Err(err))
		}
	}()
}

// Close stops the scheduler, flushes undelivered results and closes the
// store.
func (r *Runtime) Close() error {
	var errs []error
	if err := r.Scheduler.Stop(); err != nil && !errors.Is(err, update.ErrNotStarted) {
		errs = append(errs, err)
	}
	r.Scheduler.DispatchPending()

	if r.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.Store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
