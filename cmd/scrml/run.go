package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/graaaaa/scr-multilauncher/internal/api"
	"github.com/graaaaa/scr-multilauncher/internal/app"
	"github.com/graaaaa/scr-multilauncher/internal/config"
	"github.com/graaaaa/scr-multilauncher/internal/engine"
	"github.com/graaaaa/scr-multilauncher/internal/logging"
	"github.com/graaaaa/scr-multilauncher/internal/metrics"
	"github.com/graaaaa/scr-multilauncher/internal/singleinstance"
	"github.com/graaaaa/scr-multilauncher/internal/store"
	"github.com/graaaaa/scr-multilauncher/internal/sysapi"
	"github.com/graaaaa/scr-multilauncher/internal/version"
)

// configMissingLine is shown to the user when conf.toml could not be used.
const configMissingLine = "conf.toml is missing or corrupt"

const shutdownTimeout = 5 * time.Second

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Scan for clients and remove their instance locks until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd, flags)
		},
	}
}

func runDaemon(cmd *cobra.Command, flags *rootFlags) error {
	// 1. Single instance check (Windows: mutex, other: no-op)
	release, ok, err := singleinstance.AcquireLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another instance is already running")
	}
	defer release()

	// 2. Load configuration (missing or corrupt falls back to defaults)
	ld, err := flags.load()
	if err != nil {
		return err
	}
	cfg := ld.cfg

	// 3. Diagnostic logging
	logPath, err := config.DiagnosticLogPath()
	if err != nil {
		return fmt.Errorf("locate log file: %w", err)
	}
	logger, closer, err := logging.Setup(logging.Options{Level: cfg.LogLevel, FilePath: logPath})
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer closer.Close()

	var startup []string
	switch ld.status {
	case config.ConfigMissing:
		startup = append(startup, configMissingLine)
		// Safe to create: nothing to overwrite.
		if err := config.SaveConfigTo(ld.raw, ld.path); err != nil {
			logger.Warn("writing default config failed", "path", ld.path, "error", err)
		}
	case config.ConfigFallback:
		startup = append(startup, configMissingLine)
		logger.Warn("config unreadable, using defaults", "path", ld.path, "error", ld.err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithMetrics(m),
		engine.WithStartupMessages(startup...),
	}

	// 4. History store
	db := openHistory(ctx, cfg, logger)
	if db != nil {
		defer db.Close()
		runID := uuid.NewString()
		if err := db.StartRun(ctx, runID, version.String(), time.Now()); err != nil {
			logger.Warn("recording run failed", "error", err)
		}
		engineOpts = append(engineOpts, engine.WithSinks(engine.NewStoreSink(db, runID, logger)))
	}

	// 5. SSE hub, fed by the engine
	var hub *api.Hub
	if cfg.APIEnabled {
		hub = api.NewHub(api.WithHubLogger(logger))
		defer hub.Close()
		engineOpts = append(engineOpts, engine.WithSinks(hub))
	}

	eng := engine.New(sysapi.New(), cfg, engineOpts...)

	watcher := config.NewWatcher(ld.path, func(c config.Config) {
		if err := eng.UpdateConfig(ctx, c); err != nil && !errors.Is(err, engine.ErrStopped) {
			logger.Warn("applying reloaded config failed", "error", err)
		}
	}, config.WithWatcherLogger(logger))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := eng.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := watcher.Run(gctx); err != nil {
			logger.Warn("config hot reload disabled", "error", err)
		}
		return nil
	})

	// 6. Local API
	if cfg.APIEnabled {
		server := newAPIServer(cfg, ld.path, eng, db, hub, m, logger)
		g.Go(server.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("api shutdown error", "error", err)
			}
			return nil
		})
	}

	logger.Info("started", "version", version.String(), "config", ld.path, "api", cfg.APIEnabled, "history", db != nil)
	err = g.Wait()
	logger.Info("stopped")
	return err
}

// openHistory opens the history database, or returns nil when history is
// disabled or unavailable. History is optional, so failures are logged.
func openHistory(ctx context.Context, cfg config.Config, logger *slog.Logger) *store.Store {
	if !cfg.HistoryEnabled {
		return nil
	}
	if _, err := config.EnsureDataDir(); err != nil {
		logger.Warn("history disabled", "error", err)
		return nil
	}
	path, err := config.DatabasePath()
	if err != nil {
		logger.Warn("history disabled", "error", err)
		return nil
	}
	db, err := store.Open(path, store.WithLogger(logger))
	if err != nil {
		logger.Warn("history disabled", "path", path, "error", err)
		return nil
	}
	if _, err := db.MaybeVacuum(ctx); err != nil {
		logger.Warn("vacuum failed", "error", err)
	}
	return db
}

func newAPIServer(cfg config.Config, cfgPath string, eng *engine.Engine, db *store.Store, hub *api.Hub, m *metrics.Metrics, logger *slog.Logger) *api.Server {
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.APIPort)

	logs := &app.LogsService{Engine: eng}
	opts := []api.ServerOption{
		api.WithLogger(logger),
		api.WithProcesses(app.ProcessesService{Engine: eng}),
		api.WithControl(app.ControlService{Engine: eng}),
		api.WithConfig(app.ConfigService{ConfigPath: cfgPath, Engine: eng}),
		api.WithHub(hub),
		api.WithMetricsHandler(m.Handler()),
		api.WithRateLimiter(api.NewDefaultRateLimiter()),
	}
	if db != nil {
		logs.Store = db
		opts = append(opts, api.WithStats(app.NewStatsService(db)))
	}
	opts = append(opts, api.WithLogs(logs))

	return api.NewServer(addr, app.HealthService{Version: version.String(), Engine: eng}, opts...)
}
