package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"ecgmonitor/acquire"
	"ecgmonitor/buffer"
	"ecgmonitor/config"
	"ecgmonitor/diagnosis"
	"ecgmonitor/feature"
	"ecgmonitor/monitoring"
	"ecgmonitor/notify"
	"ecgmonitor/record"
	"ecgmonitor/serial"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (required)")
	validate := flag.Bool("validate", false, "Validate configuration and exit")
	listPorts := flag.Bool("list-ports", false, "List available serial ports and exit")
	startRecording := flag.Bool("record", false, "Start a recording session immediately")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Display version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "ECGMonitor - Serial ECG Acquisition Service\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExample:\n")
		fmt.Fprintf(os.Stderr, "  %s -config config.json\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -config config.json -record\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -list-ports\n", os.Args[0])
	}

	flag.Parse()

	// Handle version flag
	if *showVersion {
		fmt.Printf("ECGMonitor version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	// Handle list-ports flag
	if *listPorts {
		ports, err := serial.ListPorts()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing ports: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Available serial ports:")
		if len(ports) == 0 {
			fmt.Println("  (none found)")
		} else {
			for _, port := range ports {
				fmt.Printf("  %s\n", port)
			}
		}
		os.Exit(0)
	}

	// Require config path for main operation
	if *configPath == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration validation failed:\n  %v\n", err)
		os.Exit(1)
	}

	// Handle validate flag
	if *validate {
		fmt.Println("Configuration is valid")
		fmt.Printf("  Instance: %s\n", cfg.App.InstanceID)
		fmt.Printf("  Device: %s at %d baud\n", cfg.Device.Port, cfg.Device.BaudRate)
		fmt.Printf("  Ring/Window: %d/%d samples\n", cfg.Buffers.RingCapacity, cfg.Buffers.WindowCapacity)
		fmt.Printf("  Sampling rate: %.0f Hz\n", cfg.Analysis.SamplingRateHz)
		os.Exit(0)
	}

	// Setup logging
	logger := setupLogging(cfg, *debug)
	slog.SetDefault(logger)

	logger.Info("ECGMonitor starting",
		"version", version,
		"instance", cfg.App.InstanceID,
		"device", cfg.Device.Port,
	)

	// Create context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", "signal", sig)
		cancel()
	}()

	// Create Slack notifier
	slackNotifier := notify.NewSlackNotifier(&cfg.Slack, cfg.App.InstanceID, logger)

	// Connect to the device
	manager := serial.NewManager(serial.PortConfig{
		Device:   cfg.Device.Port,
		BaudRate: cfg.Device.BaudRate,
		DataBits: cfg.Device.DataBits,
		StopBits: cfg.Device.StopBits,
		Parity:   cfg.Device.Parity,
	}, cfg.Device.ConnectTimeouts(), cfg.Acquisition.MaxReconnectAttempts, logger)

	if err := manager.Connect(ctx); err != nil {
		logger.Error("Failed to connect to device", "error", err)
		os.Exit(1)
	}
	defer manager.Disconnect()

	// Create buffers and recorder
	ring := buffer.NewRing(cfg.Buffers.RingCapacity)
	window := buffer.NewWindow(cfg.Buffers.WindowCapacity)
	recorder := record.NewRecorder(cfg.Recording.FilePrefix, logger)

	if *startRecording || cfg.Recording.AutoStart {
		session, err := recorder.Start(cfg.Recording.Directory)
		if err != nil {
			logger.Error("Failed to start recording", "error", err)
			os.Exit(1)
		}
		if err := slackNotifier.NotifyRecordingStarted(session.Path); err != nil {
			logger.Warn("Failed to send recording notification", "error", err)
		}
	}

	// Start the acquisition loop
	loop := acquire.NewLoop(manager, ring, window, recorder, acquire.Config{
		PollInterval:         cfg.Acquisition.PollInterval(),
		StallThreshold:       cfg.Acquisition.StallThreshold(),
		MaxConsecutiveErrors: cfg.Acquisition.MaxConsecutiveErrors,
	}, logger)

	if err := loop.Start(ctx); err != nil {
		logger.Error("Failed to start acquisition", "error", err)
		os.Exit(1)
	}

	// Start monitoring server
	var monitorServer *monitoring.Server
	if cfg.Monitoring.Enabled {
		monitorServer = monitoring.NewServer(cfg, cfg.App.InstanceID, version, *configPath,
			manager, loop, window, recorder, slackNotifier, logger)
		if err := monitorServer.Start(); err != nil {
			logger.Error("Failed to start monitoring server", "error", err)
		}
	}

	// Start periodic diagnosis
	if cfg.Diagnosis.Enabled {
		client := diagnosis.NewClient(diagnosis.Options{
			BaseURL:    cfg.Diagnosis.BaseURL,
			APIKey:     cfg.Diagnosis.APIKey,
			Model:      cfg.Diagnosis.Model,
			Timeout:    cfg.Diagnosis.Timeout(),
			MaxRetries: cfg.Diagnosis.MaxRetries,
		}, logger)
		go runAutoDiagnosis(ctx, client, window, cfg, logger)
	}

	// Send startup notification
	if err := slackNotifier.NotifyStartup(cfg.Device.Port); err != nil {
		logger.Warn("Failed to send startup notification", "error", err)
	}

	startTime := time.Now()
	logger.Info("ECGMonitor running",
		"device", cfg.Device.Port,
		"monitoring_port", cfg.Monitoring.Port,
	)

	// Wait for shutdown or loop termination
	select {
	case <-ctx.Done():
	case <-loop.Done():
		if err := loop.Err(); err != nil {
			logger.Error("Acquisition loop terminated", "error", err)
			if nerr := slackNotifier.NotifyError(cfg.Device.Port, err); nerr != nil {
				logger.Warn("Failed to send error notification", "error", nerr)
			}
		}
	}

	// Graceful shutdown
	logger.Info("ECGMonitor shutting down")

	if err := loop.Stop(); err != nil {
		logger.Warn("Error stopping acquisition loop", "error", err)
	}

	if session, active := recorder.Current(); active {
		path := recorder.Stop()
		logger.Info("Recording saved", "path", path)
		if err := slackNotifier.NotifyRecordingStopped(path, session.RowCount); err != nil {
			logger.Warn("Failed to send recording notification", "error", err)
		}
	}

	if monitorServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := monitorServer.Stop(shutdownCtx); err != nil {
			logger.Warn("Error stopping monitoring server", "error", err)
		}
	}

	stats := loop.Stats()
	uptime := time.Since(startTime)
	if err := slackNotifier.NotifyShutdown(stats.Samples, uptime); err != nil {
		logger.Warn("Failed to send shutdown notification", "error", err)
	}

	logger.Info("ECGMonitor stopped",
		"uptime", uptime,
		"samples", stats.Samples,
		"invalid_lines", stats.InvalidLines,
	)
}

// runAutoDiagnosis periodically extracts features from the analysis
// window and requests a diagnosis, logging the verdict.
func runAutoDiagnosis(ctx context.Context, client *diagnosis.Client, window *buffer.Window, cfg *config.Config, logger *slog.Logger) {
	ticker := time.NewTicker(cfg.Diagnosis.AutoInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		values := window.Values(cfg.Diagnosis.WindowSamples)
		if len(values) < cfg.Diagnosis.MinSamples {
			logger.Debug("Skipping diagnosis, not enough samples",
				"have", len(values), "need", cfg.Diagnosis.MinSamples)
			continue
		}

		fs := feature.ExtractWithOptions(values, cfg.Analysis.SamplingRateHz, feature.Options{
			PeakMinDistance: cfg.Analysis.PeakMinDistance,
		})

		report, err := client.Diagnose(ctx, fs, nil)
		if err != nil {
			logger.Warn("Diagnosis request failed", "error", err)
			continue
		}

		logger.Info("Diagnosis received",
			"primary", report.PrimaryDiagnosis,
			"severity", report.Severity,
			"confidence", report.Confidence,
		)
	}
}

func setupLogging(cfg *config.Config, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	} else {
		switch cfg.Logging.Level {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler

	// If base path is set, use file logging with rotation
	if cfg.Logging.BasePath != "" {
		logPath := filepath.Join(cfg.Logging.BasePath, cfg.Logging.Filename)
		writer := &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			Compress:   cfg.Logging.Compress,
		}
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		// Use console logging
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
