package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/goodtune/kreport/internal/api"
	"github.com/goodtune/kreport/internal/config"
	"github.com/goodtune/kreport/internal/dashboard"
	"github.com/goodtune/kreport/internal/metrics"
	"github.com/goodtune/kreport/internal/report"
	"github.com/goodtune/kreport/internal/storage"
	"github.com/goodtune/kreport/internal/systemd"
	"github.com/goodtune/kreport/internal/usage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the kreport server",
	Long:  `Start the kreport server with the dashboard API, daily reset scheduler and metrics endpoints.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
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
		Msg("Starting kreport")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to get systemd listeners")
	}
	if sdListeners.Activated {
		logger.Info().
			Bool("http", sdListeners.HTTP != nil).
			Bool("metrics", sdListeners.Metrics != nil).
			Msg("Using systemd socket activation")
	}

	c, err := buildComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.store.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("reset_time", c.resetTime.String()).
		Int("default_limit_minutes", cfg.Report.DefaultLimitMinutes).
		Int("ignore_suffixes", len(c.ignore.Suffixes())).
		Msg("Report pipeline initialized")

	// Dashboard and the controller that feeds it
	view := dashboard.NewView(&dashboard.MemoryChartFactory{}, logger)
	controller := report.NewController(
		c.builder,
		view,
		parseDuration(cfg.Report.GenerationTimeout, 30*time.Second),
		logger,
	)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	// Restore the last selection before following other processes' changes
	startCtx, startCancel := context.WithTimeout(bgCtx, 5*time.Second)
	activeChild, err := c.store.ActiveChild().Get(startCtx)
	startCancel()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load active child, starting with none selected")
	}
	metrics.ActiveChildChanges.WithLabelValues("startup").Inc()
	controller.Trigger(activeChild)

	changes, err := c.store.ActiveChild().Watch(bgCtx)
	if err != nil {
		return fmt.Errorf("failed to watch active child: %w", err)
	}
	go followActiveChild(changes, controller, logger)

	// Roll the dashboard over at the configured reset time
	resetScheduler, err := usage.NewResetScheduler(cfg.Report.DailyResetTime, usage.RealClock{}, func() {
		controller.Refresh()
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize reset scheduler: %w", err)
	}
	resetScheduler.Start()

	// Initialize API Server
	apiAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.HTTPPort)
	apiServer := api.NewServer(api.Config{ListenAddr: apiAddr}, api.Deps{
		Store:      c.store,
		Builder:    c.builder,
		Controller: controller,
		Resolver:   c.resolver,
		View:       view,
		Normalizer: c.normalizer,
		Ignore:     c.ignore,
		ResetTime:  c.resetTime,
		Clock:      usage.RealClock{},
	}, logger)

	// Use systemd socket-activated listener if available
	if sdListeners.Activated && sdListeners.HTTP != nil {
		apiServer.SetListener(sdListeners.HTTP)
	}

	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API Server: %w", err)
	}

	// Initialize Metrics Server
	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	metricsServer := metrics.NewServer(metricsAddr, c.store.Ping, logger)

	// Use systemd socket-activated listener if available
	if sdListeners.Activated && sdListeners.Metrics != nil {
		metricsServer.SetListener(sdListeners.Metrics)
	}

	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start Metrics Server: %w", err)
	}

	// Log startup complete
	logger.Info().Msg("kreport startup complete")
	logger.Info().Msgf("API: http://%s/api/dashboard", apiAddr)
	logger.Info().Msgf("Metrics: http://%s/metrics", metricsAddr)

	// Notify systemd that we're ready to serve requests
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}
	go systemd.RunWatchdog(bgCtx, logger)

	// Wait for signals (shutdown or reload)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	// Signal handling loop
	for {
		sig := <-sigChan

		switch sig {
		case syscall.SIGHUP:
			logger.Info().Msg("SIGHUP received, reloading ignore list...")
			if err := reload(c, logger); err != nil {
				logger.Error().Err(err).Msg("Failed to reload configuration")
			} else {
				logger.Info().Msg("Configuration reloaded successfully")
				controller.Refresh()
			}
			if err := systemd.NotifyReady(); err != nil {
				logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
			}
			// Continue running
			continue

		case os.Interrupt, syscall.SIGTERM:
			logger.Info().Msg("Shutdown signal received, gracefully stopping...")
			// Break out of loop to shutdown
		}

		// Only reached on shutdown signals
		break
	}

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	// Stop background work before the servers
	bgCancel()
	resetScheduler.Stop()
	controller.Close()
	view.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping API Server")
	}

	if err := metricsServer.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping Metrics Server")
	}

	logger.Info().Msg("kreport stopped")

	return nil
}

// followActiveChild regenerates the dashboard whenever another process
// changes the active child. It returns when the watch channel closes.
func followActiveChild(changes <-chan storage.ActiveChildChange, controller *report.Controller, logger zerolog.Logger) {
	for change := range changes {
		logger.Info().
			Str("child_id", change.ChildID).
			Str("origin", change.Origin).
			Msg("Active child changed")
		metrics.ActiveChildChanges.WithLabelValues("pubsub").Inc()
		controller.Trigger(change.ChildID)
	}
}

// reload re-reads the configuration file and applies the settings that can
// change without a restart.
func reload(c *components, logger zerolog.Logger) error {
	if err := systemd.NotifyReloading(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd reloading notification")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	c.ignore.Replace(cfg.Report.IgnoreSuffixes)
	logger.Info().
		Strs("ignore_suffixes", c.ignore.Suffixes()).
		Msg("Ignore list replaced")

	return nil
}
