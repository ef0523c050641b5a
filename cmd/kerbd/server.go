package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kerbside-labs/kerbd/internal/config"
	"github.com/kerbside-labs/kerbd/internal/httpapi"
	"github.com/kerbside-labs/kerbd/internal/ledger"
	"github.com/kerbside-labs/kerbd/internal/metrics"
	"github.com/kerbside-labs/kerbd/internal/policy"
	"github.com/kerbside-labs/kerbd/internal/rules"
	"github.com/kerbside-labs/kerbd/internal/segments"
	"github.com/kerbside-labs/kerbd/internal/session"
	"github.com/kerbside-labs/kerbd/internal/storage"
	"github.com/kerbside-labs/kerbd/internal/storage/redis"
	"github.com/kerbside-labs/kerbd/internal/storage/sqlite"
	"github.com/kerbside-labs/kerbd/internal/systemd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start Kerbd server",
	Long:  `Start the Kerbd server with the evaluation API, session auto-stop scheduler, and metrics endpoints.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting Kerbd")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to get systemd listeners")
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Msg("Storage initialized")

	loc, err := time.LoadLocation(cfg.Rules.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone: %w", err)
	}

	// Initialize segment rule provider
	provider := segments.NewProvider(store.Segments(), segments.Config{
		CacheSize: cfg.Segments.CacheSize,
		CacheTTL:  parseDuration(cfg.Segments.CacheTTL, 5*time.Minute),
	}, logger)

	// Initialize rule resolver
	resolver := rules.NewResolver(rules.Config{
		Location:      loc,
		DefaultStatus: rules.Status(cfg.Rules.DefaultStatus),
		HorizonDays:   cfg.Rules.HorizonDays,
	})

	// Initialize budget ledger
	budgetLedger := ledger.New(store.Ledger(), ledger.Config{
		CapMinutes: cfg.Budget.DailyCapMinutes,
		AnchorHour: cfg.Budget.AnchorHour,
		Location:   loc,
	}, logger)

	logger.Info().
		Int("cap_minutes", cfg.Budget.DailyCapMinutes).
		Int("anchor_hour", cfg.Budget.AnchorHour).
		Msg("Budget ledger initialized")

	// Initialize evaluator
	evaluator := policy.NewEvaluator(resolver, provider, budgetLedger, policy.Config{
		MinParking: parseDuration(cfg.Rules.MinParking, 10*time.Minute),
	}, logger)

	logger.Info().
		Str("timezone", cfg.Rules.Timezone).
		Str("default_status", cfg.Rules.DefaultStatus).
		Msg("Evaluator initialized")

	// Initialize session settlement and management
	settler := session.NewSettler(store.Sessions(), budgetLedger, logger)
	manager := session.NewManager(evaluator, store.Sessions(), settler, budgetLedger, logger)

	// Start the auto-stop scheduler
	scheduler := session.NewScheduler(
		store.Sessions(),
		settler,
		parseDuration(cfg.Scheduler.Period, 30*time.Second),
		logger,
	)

	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		if err := scheduler.Run(schedulerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("Scheduler stopped with error")
		}
	}()
	defer stopScheduler()

	logger.Info().
		Str("period", cfg.Scheduler.Period).
		Msg("Auto-stop scheduler started")

	// Initialize API Server
	apiAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.APIPort)
	apiServer := httpapi.NewServer(apiAddr, evaluator, manager, logger)

	// Use systemd socket-activated listener if available
	if sdListeners.Activated && sdListeners.API != nil {
		apiServer.SetListener(sdListeners.API)
	}

	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API Server: %w", err)
	}

	logger.Info().
		Str("addr", apiAddr).
		Msg("API Server started")

	// Initialize Metrics Server
	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	metricsServer := metrics.NewServer(metricsAddr, logger)

	// Use systemd socket-activated listener if available
	if sdListeners.Activated && sdListeners.Metrics != nil {
		metricsServer.SetListener(sdListeners.Metrics)
	}

	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start Metrics Server: %w", err)
	}

	logger.Info().
		Str("addr", metricsAddr).
		Msg("Metrics Server started")

	// Log startup complete
	logger.Info().Msg("Kerbd startup complete")
	logger.Info().Msgf("API: http://%s:%d/v1", cfg.Server.BindAddress, cfg.Server.APIPort)
	logger.Info().Msgf("Metrics: http://%s:%d/metrics", cfg.Server.BindAddress, cfg.Server.MetricsPort)

	// Notify systemd that we're ready to serve requests
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan

	logger.Info().Msg("Shutdown signal received, gracefully stopping...")

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	// Stop the scheduler and wait for the in-flight tick
	stopScheduler()
	<-schedulerDone

	// Stop servers
	if err := apiServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping API Server")
	}

	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping Metrics Server")
	}

	logger.Info().Msg("Kerbd stopped")

	return nil
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	storageType := cfg.Type
	if storageType == "" {
		storageType = "sqlite"
	}

	switch storageType {
	case "sqlite":
		return sqlite.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (want redis or sqlite)", storageType)
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Set output format
	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
