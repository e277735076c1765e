// cmd/thumbprint/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FairForge/thumbprint/internal/calibration"
	"github.com/FairForge/thumbprint/internal/config"
	"github.com/FairForge/thumbprint/internal/drift"
	"github.com/FairForge/thumbprint/internal/events"
	"github.com/FairForge/thumbprint/internal/logging"
	"github.com/FairForge/thumbprint/internal/segment"
	"github.com/FairForge/thumbprint/internal/snapshot"
	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func main() {
	logger, err := logging.New(config.GetEnvOrDefault("THUMBPRINT_LOG_LEVEL", "info"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch os.Args[1] {
	case "calibrate":
		err = runCalibrate(ctx, logger, os.Args[2:])
	case "drift":
		err = runDrift(ctx, logger, os.Args[2:])
	case "prune":
		err = runPrune(ctx, logger, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal("command failed", zap.String("command", os.Args[1]), zap.Error(err))
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: thumbprint <command> [flags]

commands:
  calibrate   run a calibration pass over an event stream, optionally freezing snapshots
  drift       compare the two newest snapshots for an entity
  prune       apply retention windows to stored snapshots`)
}

func loadConfig(path string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)
	return cfg, nil
}

func openRepository(cfg *config.Config, logger *zap.Logger) (snapshot.Repository, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return snapshot.NewPostgresRepository(snapshot.PostgresConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
		}, cfg.Snapshots.PruneRate, logger)
	case "sqlite":
		return snapshot.NewSQLiteRepository(cfg.Database.Path, cfg.Snapshots.PruneRate, logger)
	default:
		return nil, fmt.Errorf("unknown database driver: %s", cfg.Database.Driver)
	}
}

func runCalibrate(ctx context.Context, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("calibrate", flag.ExitOnError)
	eventsPath := fs.String("events", "", "JSON-lines event stream (required)")
	configPath := fs.String("config", "", "YAML config file")
	freeze := fs.String("freeze", "", "freeze profiles into snapshots at this granularity")
	watch := fs.Bool("watch", false, "recalibrate whenever the events file changes")
	metricsOn := fs.Bool("metrics", false, "serve /metrics and /healthz while running")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *eventsPath == "" {
		return fmt.Errorf("--events is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *freeze != "" && !snapshot.ValidGranularity(*freeze) {
		return fmt.Errorf("invalid granularity: %s", *freeze)
	}

	models := segment.NewMemoryRepository()
	runner := calibration.NewRunner(cfg.Calibration, models, logger)

	if *metricsOn {
		startMetricsServer(cfg.Server.MetricsPort, logger)
	}

	pass := func() error {
		return calibrateOnce(ctx, logger, cfg, runner, *eventsPath, *freeze)
	}
	if err := pass(); err != nil {
		return err
	}
	if !*watch {
		return nil
	}
	return watchAndRecalibrate(ctx, logger, *eventsPath, pass)
}

func calibrateOnce(ctx context.Context, logger *zap.Logger, cfg *config.Config,
	runner *calibration.Runner, eventsPath, freeze string) error {

	f, err := os.Open(eventsPath) // #nosec G304 - operator-supplied path
	if err != nil {
		return fmt.Errorf("open events: %w", err)
	}
	defer func() { _ = f.Close() }()

	loader, err := events.NewLoader(logger)
	if err != nil {
		return err
	}
	histories, err := loader.LoadHistories(f)
	if err != nil {
		return err
	}

	report, err := runner.Run(ctx, histories, time.Now().UTC())
	if err != nil {
		return err
	}
	printReport(report)

	if freeze == "" {
		return nil
	}
	repo, err := openRepository(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	now := time.Now().UTC()
	for entityID, p := range report.Profiles {
		if _, err := repo.Create(ctx, entityID, now, freeze, p); err != nil {
			return fmt.Errorf("freeze snapshot for %s: %w", entityID, err)
		}
	}
	logger.Info("froze snapshots",
		zap.Int("entities", len(report.Profiles)),
		zap.String("granularity", freeze))
	return nil
}

func watchAndRecalibrate(ctx context.Context, logger *zap.Logger, path string, pass func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	logger.Info("watching for event changes", zap.String("path", path))

	// Editors fire bursts of writes; debounce before recalibrating.
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				pending = time.After(2 * time.Second)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", zap.Error(err))
		case <-pending:
			pending = nil
			logger.Info("events changed, recalibrating")
			if err := pass(); err != nil {
				logger.Error("recalibration failed", zap.Error(err))
			}
		}
	}
}

func runDrift(ctx context.Context, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("drift", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config file")
	entity := fs.String("entity", "", "entity ID (required)")
	granularity := fs.String("granularity", "", "restrict to one granularity")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *entity == "" {
		return fmt.Errorf("--entity is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	repo, err := openRepository(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	snaps, err := repo.Latest(ctx, *entity, *granularity, 2)
	if err != nil {
		return err
	}
	result, err := drift.NewAnalyzer(nil).AnalyzeWindow(snaps)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runPrune(ctx context.Context, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("prune", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	repo, err := openRepository(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	windows := make(map[string]time.Duration)
	for g := range cfg.Snapshots.Retention {
		windows[g] = cfg.Snapshots.RetentionWindow(g)
	}
	removed, err := repo.Prune(ctx, snapshot.RetentionPolicy{Windows: windows})
	if err != nil {
		return err
	}
	logger.Info("prune complete", zap.Int64("removed", removed))
	return nil
}

func startMetricsServer(port int, logger *zap.Logger) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", calibration.NewMetrics().Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	go func() {
		addr := fmt.Sprintf(":%d", port)
		logger.Info("metrics listening", zap.String("addr", addr))
		server := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
}

func printReport(report *calibration.Report) {
	fmt.Printf("run %s: %d entities, %s\n", report.RunID, report.Entities, report.Duration.Round(time.Millisecond))
	for _, a := range report.Axes {
		line := fmt.Sprintf("  %-22s %-10s k=%d segments=%d", a.Axis, a.Status, a.K, a.Segments)
		if a.Reason != "" {
			line += " (" + a.Reason + ")"
		}
		fmt.Println(line)
	}
}
