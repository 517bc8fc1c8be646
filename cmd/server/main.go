package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lendarr/lendarr/internal/api"
	"github.com/lendarr/lendarr/internal/clock"
	"github.com/lendarr/lendarr/internal/config"
	"github.com/lendarr/lendarr/internal/db"
	"github.com/lendarr/lendarr/internal/eventbus"
	"github.com/lendarr/lendarr/internal/logger"
	"github.com/lendarr/lendarr/internal/metrics"
	"github.com/lendarr/lendarr/internal/notifier"
	"github.com/lendarr/lendarr/internal/services"
)

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.BoolVar(showVersion, "v", false, "Print version and exit (shorthand)")

	// Configuration flags - all can also be set via environment variables (LENDARR_*)
	flagPort := flag.String("port", "", "HTTP server port (env: LENDARR_PORT, default: 3092)")
	flagLogLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (env: LENDARR_LOG_LEVEL, default: info)")
	flagDataDir := flag.String("data-dir", "", "Data directory path (env: LENDARR_DATA_DIR)")
	flagDatabasePath := flag.String("database-path", "", "Database file path (env: LENDARR_DATABASE_PATH)")
	flagDueSoonDays := flag.Int("due-soon-days", -1, "Due-soon lookahead in days (env: LENDARR_DUE_SOON_DAYS, default: 2)")
	flagSweepCron := flag.String("sweep-cron", "", "Cron expression for the background lifecycle sweep (env: LENDARR_SWEEP_CRON, default: disabled)")

	flag.Parse()

	if *showVersion {
		fmt.Printf("Lendarr %s\n", config.Version)
		os.Exit(0)
	}

	config.Load()

	flagOverrides := config.FlagOverrides{
		Port:         flagPort,
		LogLevel:     flagLogLevel,
		DataDir:      flagDataDir,
		DatabasePath: flagDatabasePath,
		SweepCron:    flagSweepCron,
	}
	if *flagDueSoonDays >= 0 {
		flagOverrides.DueSoonThresholdDays = flagDueSoonDays
	}
	config.ApplyFlags(flagOverrides)

	cfg := config.Get()

	logger.Init(cfg.LogDir)
	logger.SetLevel(cfg.LogLevel)

	logger.Infof("========================================")
	logger.Infof("Starting Lendarr %s...", config.Version)
	logger.Infof("========================================")

	logger.Infof("Configuration:")
	logger.Infof("  Port: %s", cfg.Port)
	logger.Infof("  Log Level: %s", cfg.LogLevel)
	logger.Infof("  Data Directory: %s", cfg.DataDir)
	logger.Infof("  Database: %s", cfg.DatabasePath)
	logger.Infof("  Due-Soon Lookahead: %d days", cfg.DueSoonThresholdDays)
	if cfg.SweepCron != "" {
		logger.Infof("  Lifecycle Sweep: %s", cfg.SweepCron)
	} else {
		logger.Infof("  Lifecycle Sweep: disabled (lazy evaluation only)")
	}

	logger.Infof("Initializing database: %s", cfg.DatabasePath)
	repo, err := db.NewRepository(cfg.DatabasePath)
	if err != nil {
		logger.Errorf("Failed to initialize database: %v", err)
		os.Exit(1)
	}
	logger.Infof("✓ Database initialized successfully")

	simClock, err := clock.NewSimClock(repo, clock.NewRealClock())
	if err != nil {
		logger.Errorf("Failed to load clock state: %v", err)
		os.Exit(1)
	}
	if sim := simClock.Simulated(); sim != nil {
		logger.Warnf("⚠ Resuming with a simulated date active: %s", sim.Format(time.RFC3339))
	}

	logger.Infof("Initializing Event Bus...")
	eb := eventbus.NewEventBus(repo.DB)
	logger.Infof("✓ Event Bus initialized")

	logger.Infof("Initializing core services...")
	emitter := notifier.NewNotifier(repo.DB)
	locks := services.NewBookLocks()

	holdService := services.NewHoldService(repo, simClock, emitter, eb, locks)
	logger.Infof("✓ Hold Service (waitlist hold state machine)")

	checkoutService := services.NewCheckoutService(repo, simClock, emitter, eb, holdService, locks)
	logger.Infof("✓ Checkout Service (loans, returns, late fees)")

	waitlistService := services.NewWaitlistService(repo, simClock, eb, locks)
	logger.Infof("✓ Waitlist Service (priority queues)")

	simulationService := services.NewSimulationService(repo, simClock, emitter, eb,
		checkoutService, holdService, locks, cfg.DueSoonThresholdDays)
	logger.Infof("✓ Simulation Service (date control, replay and revert)")

	sweepService := services.NewSweepService(holdService, simulationService)
	if err := sweepService.Start(cfg.SweepCron); err != nil {
		logger.Errorf("Failed to start lifecycle sweep: %v", err)
		os.Exit(1)
	}

	logger.Infof("Initializing Metrics Service...")
	metricsService := metrics.NewMetricsService(eb)
	logger.Infof("✓ Metrics Service (Prometheus endpoint at /metrics)")

	logger.Infof("Initializing REST API server...")
	apiServer := api.NewRESTServer(api.ServerDeps{
		Repo:       repo,
		Clock:      simClock,
		Checkouts:  checkoutService,
		Waitlists:  waitlistService,
		Holds:      holdService,
		Simulation: simulationService,
		Bus:        eb,
		Metrics:    metricsService,
	})
	go func() {
		addr := ":" + cfg.Port
		if err := apiServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Failed to start API server: %v", err)
			os.Exit(1)
		}
	}()

	logger.Infof("========================================")
	logger.Infof("✓ Lendarr %s started successfully", config.Version)
	logger.Infof("✓ Server listening on port %s", cfg.Port)
	logger.Infof("========================================")

	// One lazy pass at startup so state left over from downtime settles
	// before the first request.
	go func() {
		if advanced, err := holdService.AdvanceAll(); err != nil {
			logger.Errorf("Startup lifecycle pass failed: %v", err)
		} else if advanced > 0 {
			logger.Infof("Startup lifecycle pass advanced %d books", advanced)
		}
		if _, err := simulationService.GenerateNotifications(); err != nil {
			logger.Errorf("Startup notification pass failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Infof("Received signal %v, initiating graceful shutdown...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	sweepService.Stop()
	logger.Infof("✓ Lifecycle sweep stopped")

	eb.Shutdown()
	logger.Infof("✓ Event Bus stopped")

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API Server shutdown error: %v", err)
	} else {
		logger.Infof("✓ API Server stopped")
	}

	if err := repo.GracefulClose(); err != nil {
		logger.Errorf("Failed to close database connection: %v", err)
	} else {
		logger.Infof("✓ Database connection closed")
	}

	logger.Infof("✓ Lendarr shutdown complete")
}
