package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/dittoaccel/internal/logger"
	"github.com/marmos91/dittoaccel/internal/telemetry"
	"github.com/marmos91/dittoaccel/pkg/config"
	"github.com/marmos91/dittoaccel/pkg/controlplane"
	"github.com/spf13/cobra"

	// Registers the Prometheus collector constructors.
	_ "github.com/marmos91/dittoaccel/pkg/metrics/prometheus"
)

var (
	foreground bool
	pidFile    string
	logFile    string
	noWatch    bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the dittoaccel daemon",
	Long: `Start the dittoaccel daemon with the specified configuration.

By default the daemon runs in the background. Use --foreground when running
under a process supervisor or for debugging.

The configuration file is watched for changes: the log level is applied
immediately, framework and bdev changes need a restart.

Examples:
  # Start in background
  dittoaccel start

  # Start in foreground with a custom config
  dittoaccel start --foreground --config /etc/dittoaccel/config.yaml

  # Override the log level
  DITTOACCEL_LOGGING_LEVEL=DEBUG dittoaccel start --foreground`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/dittoaccel/dittoaccel.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/dittoaccel/dittoaccel.log)")
	startCmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not reload the configuration file on change")
}

func runStart(cmd *cobra.Command, args []string) error {
	if !foreground {
		return startDaemon()
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "dittoaccel",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", logger.KeyError, err)
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "dittoaccel",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.KeyError, err)
		}
	}()

	logger.Info("Configuration loaded", "source", configSource(GetConfigFile()),
		"level", cfg.Logging.Level, "format", cfg.Logging.Format)
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint)
	}

	cp, err := controlplane.New(ctx, &controlplane.Options{
		Config:  cfg,
		Metrics: config.InitializeMetrics(cfg),
	})
	if err != nil {
		return err
	}

	if path := watchPath(); path != "" && !noWatch {
		if err := cp.Runtime().WatchConfig(path); err != nil {
			logger.Warn("Configuration reload disabled", logger.KeyPath, path, logger.KeyError, err)
		}
	}

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			_ = cp.Runtime().Shutdown(ctx)
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- cp.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("dittoaccel is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()
		if err := <-serverDone; err != nil {
			logger.Error("Shutdown error", logger.KeyError, err)
			return err
		}
		logger.Info("dittoaccel stopped gracefully")
	case err := <-serverDone:
		if err != nil {
			logger.Error("Server error", logger.KeyError, err)
			return err
		}
	}
	return nil
}

// watchPath is the file to watch, empty when running on defaults.
func watchPath() string {
	if f := GetConfigFile(); f != "" {
		return f
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return ""
}
