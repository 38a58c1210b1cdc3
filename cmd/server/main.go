package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lethuzulu/pngsecret/internal/config"
	"github.com/lethuzulu/pngsecret/internal/export"
	"github.com/lethuzulu/pngsecret/internal/framing"
	"github.com/lethuzulu/pngsecret/internal/metrics"
	"github.com/lethuzulu/pngsecret/internal/scan"
	"github.com/lethuzulu/pngsecret/internal/server"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "pngsecret"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration, falling back to defaults when the default config
	// file is absent
	cfg, err := config.Load(*configPath)
	if err != nil {
		if *configPath == defaultConfigPath && errors.Is(err, os.ErrNotExist) {
			cfg = config.DefaultConfig()
		} else {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.Server.HTTPHost, cfg.Server.HTTPPort)),
		slog.String("udp_address", fmt.Sprintf("%s:%d", cfg.Server.UDPHost, cfg.Server.UDPPort)),
		slog.Int("udp_workers", cfg.Server.UDPWorkers),
		slog.Int("max_chunk_bytes", cfg.Scan.MaxChunkBytes),
		slog.Int("report_ttl_seconds", cfg.Scan.ReportTTLSeconds),
		slog.Int("max_reports", cfg.Scan.MaxReports),
		slog.Bool("export_enabled", cfg.Export.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Build the scanner from the configured frame limits
	limits := framing.DefaultLimits()
	if cfg.Scan.MaxChunkBytes > 0 {
		limits.MaxDataBytes = uint32(cfg.Scan.MaxChunkBytes)
	}
	scanner := scan.NewScanner(limits, cfg.Scan.TextPreviewBytes)

	// Initialize report manager
	manager := scan.NewManager(logger, cfg.Scan.GetReportTTLDuration(), cfg.Scan.MaxReports)
	logger.Info("Report manager initialized",
		slog.Duration("report_ttl", cfg.Scan.GetReportTTLDuration()),
		slog.Int("max_reports", cfg.Scan.MaxReports),
	)

	// Initialize report exporter (if enabled)
	var exporter *export.Exporter
	if cfg.Export.Enabled {
		exporter, err = export.NewExporter(export.Config{
			Endpoint:      cfg.Export.Endpoint,
			AuthToken:     cfg.Export.AuthToken,
			Timeout:       cfg.Export.GetTimeoutDuration(),
			MaxRetries:    cfg.Export.MaxRetries,
			MaxConcurrent: cfg.Export.MaxConcurrent,
		})
		if err != nil {
			logger.Error("Failed to create report exporter", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Report exporter initialized",
			slog.String("endpoint", cfg.Export.Endpoint),
			slog.Int("max_concurrent", cfg.Export.MaxConcurrent),
		)
	}

	// Initialize UDP ingest
	udpServer := server.NewUDPServer(&cfg.Server, logger, appMetrics)
	logger.Info("UDP ingest initialized")

	// Initialize HTTP API server
	httpServer := server.NewHTTPServer(cfg, logger, appMetrics, scanner, manager, udpServer, exporter)
	logger.Info("HTTP API server initialized",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.Server.HTTPHost, cfg.Server.HTTPPort)),
	)

	// Start UDP ingest
	if err := udpServer.Start(); err != nil {
		logger.Error("Failed to start UDP ingest", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start HTTP server
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.Server.HTTPHost, cfg.Server.HTTPPort)),
		slog.String("udp_address", fmt.Sprintf("%s:%d", cfg.Server.UDPHost, cfg.Server.UDPPort)),
	)

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Stop UDP ingest (stop accepting new datagrams)
	if err := udpServer.Stop(); err != nil {
		logger.Error("Error stopping UDP ingest", slog.String("error", err.Error()))
	}

	// Drain pending report exports
	if exporter != nil {
		if err := exporter.Close(); err != nil {
			logger.Error("Error closing report exporter", slog.String("error", err.Error()))
		}
	}

	// Stop report manager (cleanup reports and stop background routines)
	manager.Stop()

	// Get final statistics
	stats := udpServer.GetStatistics()
	logger.Info("Final server statistics",
		slog.Uint64("datagrams_received", stats.DatagramsReceived),
		slog.Uint64("frames_valid", stats.FramesValid),
		slog.Uint64("frames_invalid", stats.FramesInvalid),
		slog.Uint64("datagrams_dropped", stats.DatagramsDropped),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
