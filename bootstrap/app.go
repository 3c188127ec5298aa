package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"apguard/acl"
	"apguard/config"
	"apguard/detect"
	"apguard/storage"
	"apguard/util/goroutine"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// App represents the apguard responder with all its components.
type App struct {
	// Configuration
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	// Components
	Sink   *acl.Sink
	Audit  *storage.AuditStore
	Engine *detect.Engine

	metricsServer *http.Server

	// Lifecycle
	cancel    context.CancelFunc
	serviceWg sync.WaitGroup
	sourceErr chan error
	stopOnce  sync.Once
}

// NewApp loads configuration and initializes all components. configFile
// may be empty to search the default locations.
func NewApp(ctx context.Context, configFile string) (*App, error) {
	cfg, err := InitConfig(configFile)
	if err != nil {
		return nil, err
	}
	return NewAppWithConfig(ctx, cfg)
}

// NewAppWithConfig initializes all components from an already loaded
// configuration.
func NewAppWithConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, sugar, err := InitLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	app := &App{
		Config:    cfg,
		Logger:    logger,
		Sugar:     sugar,
		sourceErr: make(chan error, 1),
	}

	sugar.Info("apguard starting...")
	logConfig(cfg, sugar)

	sink, err := InitSink(cfg, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize acl sink: %w", err)
	}
	app.Sink = sink

	if blocked, err := sink.List(); err != nil {
		sugar.Warnw("Access control list is not readable", "detail", ClassifyACLError(err, cfg.ACL.Path))
	} else {
		sugar.Infow("Access control list loaded", "entries", len(blocked))
	}

	audit, err := InitAuditStore(cfg, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize block history: %w", err)
	}
	app.Audit = audit

	engine, err := InitEngine(cfg, sink, audit, sugar)
	if err != nil {
		app.closeAudit()
		return nil, fmt.Errorf("failed to initialize detection engine: %w", err)
	}
	app.Engine = engine

	return app, nil
}

// Start starts the metrics endpoint, the expiry sweeper and the source
// supervisor. It does not block.
func (a *App) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.startMetricsServer(); err != nil {
		cancel()
		return err
	}

	a.Engine.StartSweeper(ctx)

	goroutine.Go("source-supervisor", &a.serviceWg, a.Sugar, func() {
		a.sourceErr <- superviseSource(ctx, a.Config, a.Engine, a.Sugar)
	})

	a.Sugar.Info("apguard started")
	return nil
}

// startMetricsServer serves /metrics when metrics.listen_addr is set.
func (a *App) startMetricsServer() error {
	addr := a.Config.Metrics.ListenAddr
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	a.metricsServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	goroutine.Go("metrics-server", &a.serviceWg, a.Sugar, func() {
		a.Sugar.Infow("Metrics endpoint listening", "addr", addr)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Sugar.Errorw("Metrics server failed", "addr", addr, "error", err)
		}
	})
	return nil
}

// WaitForShutdown blocks until a shutdown signal is received or the event
// source ends under the shutdown policy. Returns the source error in the
// latter case.
func (a *App) WaitForShutdown() error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)

	select {
	case sig := <-c:
		a.Sugar.Infow("Shutdown signal received", "signal", sig.String())
		return nil
	case err := <-a.sourceErr:
		if err != nil {
			a.Sugar.Warnw("Event source ended", "error", err)
		}
		return err
	}
}

// Shutdown gracefully shuts down all components. Safe to call more than once.
func (a *App) Shutdown() {
	a.stopOnce.Do(a.shutdown)
}

func (a *App) shutdown() {
	a.Sugar.Info("Shutting down...")

	// Phase 1 - Stop the source supervisor; in-flight ACL writes complete
	a.Sugar.Info("Phase 1: Stopping event source...")
	if a.cancel != nil {
		a.cancel()
	}

	// Phase 2 - Stop the expiry sweeper
	a.Sugar.Info("Phase 2: Stopping expiry sweeper...")
	if a.Engine != nil {
		a.Engine.Stop()
	}

	// Phase 3 - Stop metrics endpoint
	if a.metricsServer != nil {
		a.Sugar.Info("Phase 3: Stopping metrics endpoint...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.Sugar.Errorw("Failed to stop metrics server", "error", err)
		}
	}

	// Phase 4 - Wait for service goroutines
	a.Sugar.Info("Phase 4: Waiting for service goroutines to complete...")
	done := make(chan struct{})
	go func() {
		a.serviceWg.Wait()
		close(done)
	}()
	select {
	case <-done:
		a.Sugar.Info("All service goroutines stopped successfully")
	case <-time.After(shutdownWait(a.Config)):
		a.Sugar.Warnw("Service goroutine shutdown timed out", "waited", shutdownWait(a.Config))
	}

	// Phase 5 - Close block history
	a.Sugar.Info("Phase 5: Closing block history...")
	a.closeAudit()

	if a.Engine != nil {
		stats := a.Engine.Stats()
		a.Sugar.Infow("Shutdown complete",
			"lines", stats.LinesProcessed,
			"events", stats.EventsParsed,
			"decisions", stats.Decisions,
			"tracked_devices", stats.TrackedDevices)
	}
	_ = a.Logger.Sync()
}

// shutdownMargin is added to the ACL apply timeout when waiting for
// service goroutines, covering the list write and audit rows around it.
const shutdownMargin = 10 * time.Second

// shutdownWait bounds Phase 4. A reload already running at shutdown gets
// its full apply timeout.
func shutdownWait(cfg *config.Config) time.Duration {
	if cfg == nil || cfg.ACL.ApplyTimeout <= 0 {
		return acl.DefaultApplyTimeout + shutdownMargin
	}
	return cfg.ACL.ApplyTimeout + shutdownMargin
}

func (a *App) closeAudit() {
	if a.Audit == nil {
		return
	}
	if err := a.Audit.Close(); err != nil {
		a.Sugar.Errorw("Failed to close block history", "error", err)
	}
}
