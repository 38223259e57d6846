package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/telemetry"
	"github.com/marmos91/dittosmb/pkg/adapter/smb"
	"github.com/marmos91/dittosmb/pkg/api"
	"github.com/marmos91/dittosmb/pkg/config"
	"github.com/marmos91/dittosmb/pkg/metrics"

	// Registers the Prometheus SMB metrics constructor.
	_ "github.com/marmos91/dittosmb/pkg/metrics/prometheus"
)

var (
	pidFile   string
	noReload  bool
	startPort int
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the SMB server",
	Long: `Start the SMB server in the foreground.

Configuration comes from the file given with --config, the default location
$XDG_CONFIG_HOME/dittosmb/config.yaml, or built-in defaults when neither
exists. Environment variables prefixed with DITTOSMB_ override every source.

The log level and format are reloaded when the configuration file changes.
Listener, signing and authentication settings need a restart.

Examples:
  # Start with the default configuration
  dittosmb start

  # Start with a custom config file
  dittosmb start --config /etc/dittosmb/config.yaml

  # Listen on an unprivileged port
  dittosmb start --port 10445

  # Override settings from the environment
  DITTOSMB_LOGGING_LEVEL=DEBUG DITTOSMB_SMB_SIGNING_REQUIRED=true dittosmb start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Write the process ID to this file")
	startCmd.Flags().BoolVar(&noReload, "no-reload", false, "Do not watch the config file for changes")
	startCmd.Flags().IntVar(&startPort, "port", 0, "Override smb.port")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if startPort != 0 {
		cfg.SMB.Port = startPort
	}
	if !cfg.SMB.Enabled {
		return errors.New("smb.enabled is false: nothing to serve")
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, cfg.Tracing(Version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(cfg.Profiling(Version))
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	}()

	source := getConfigSource(GetConfigFile())
	logger.Info("DittoSMB starting", "version", Version, "commit", Commit)
	logger.Info("Configuration loaded", "source", source)
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	}

	// The registry must exist before the adapter builds its metrics.
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("Metrics enabled")
	} else {
		logger.Info("Metrics collection disabled")
	}

	adapter, err := smb.New(cfg.SMB)
	if err != nil {
		return fmt.Errorf("failed to create SMB adapter: %w", err)
	}

	var apiServer *api.Server
	apiDone := make(chan error, 1)
	if cfg.API.IsEnabled() {
		if apiServer, err = api.NewServer(cfg.API, adapter.Status()); err != nil {
			return err
		}
		go func() { apiDone <- apiServer.Start(ctx) }()
	}

	if !noReload && source != "defaults" {
		if err := config.Watch(source, config.ApplyRuntime); err != nil {
			logger.Warn("Config reload disabled", logger.Err(err))
		}
	}

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- adapter.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	var serveErr error
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()
		serveErr = <-serverDone
	case serveErr = <-serverDone:
		cancel()
	case err := <-apiDone:
		// The API listener failed to bind or crashed.
		logger.Error("API server error", logger.Err(err))
		cancel()
		<-serverDone
		return err
	}

	if apiServer != nil {
		if err := <-apiDone; err != nil {
			logger.Warn("API server stopped with error", logger.Err(err))
		}
	}

	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		logger.Error("Server error", logger.Err(serveErr))
		return serveErr
	}
	logger.Info("Server stopped")
	return nil
}
