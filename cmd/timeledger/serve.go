package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goodtune/timeledger/internal/config"
	"github.com/goodtune/timeledger/internal/metrics"
	"github.com/goodtune/timeledger/internal/reconcile"
	"github.com/goodtune/timeledger/internal/systemd"
	"github.com/goodtune/timeledger/internal/usage"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the TimeLedger daemon",
	Long: `Run the TimeLedger daemon: background sync with the family store, the
daily rollover scheduler and the metrics endpoint.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	logger := a.logger
	cfg := a.cfg

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Str("child", cfg.Child.Name).
		Str("family", cfg.Child.Family).
		Msg("Starting TimeLedger")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Make sure today's ledger exists before anything reads it
	ctx := context.Background()
	if _, err := a.days.GetToday(ctx, a.resolver.Today(ctx)); err != nil {
		return fmt.Errorf("failed to load today's ledger: %w", err)
	}

	// Background sync worker
	a.syncer.Start()

	// Initialize Reset Scheduler
	resetScheduler := usage.NewResetScheduler(
		a.days,
		a.resolver,
		a.boundary,
		cfg.Usage.HistoryRetentionDays,
		logger,
	)
	resetScheduler.Start()
	logger.Info().Str("reset_time", a.boundary.String()).Msg("Reset Scheduler initialized")

	// Initialize Metrics Server
	var metricsServer *metrics.Server
	if cfg.Server.MetricsPort > 0 || sdListeners.Metrics != nil {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
		metricsServer = metrics.NewServer(metricsAddr, syncHealth(a.syncer), logger)

		// Use systemd socket-activated listener if available
		if sdListeners.Activated && sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}

		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start Metrics Server: %w", err)
		}
		logger.Info().Msgf("Metrics: http://%s/metrics", metricsAddr)
	}

	logger.Info().Msg("TimeLedger startup complete")

	// Notify systemd that we're ready
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}

	// Wait for signals (shutdown or reload)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	// Signal handling loop
	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			logger.Info().Msg("SIGHUP received, refreshing settings...")
			if err := a.resolver.Invalidate(ctx); err != nil {
				logger.Error().Err(err).Msg("Failed to clear cached settings")
			}
			a.syncer.Submit("reload")
			continue
		}
		logger.Info().Msg("Shutdown signal received, gracefully stopping...")
		break
	}

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	// Stop components
	resetScheduler.Stop()
	a.syncer.Stop()

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping Metrics Server")
		}
	}

	logger.Info().Msg("TimeLedger stopped")
	return nil
}

// syncHealth reports unhealthy while the last sync ended in an error
// other than the remote store being unreachable.
func syncHealth(s *reconcile.Syncer) func() error {
	return func() error {
		if status := s.Status(); status == reconcile.StatusError {
			return fmt.Errorf("sync status %s", status)
		}
		return nil
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
