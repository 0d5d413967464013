// Package monitoring exposes HTTP endpoints for health, Prometheus
// metrics, on-demand feature extraction and recording control.
package monitoring

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"ecgmonitor/acquire"
	"ecgmonitor/buffer"
	"ecgmonitor/config"
	"ecgmonitor/notify"
	"ecgmonitor/record"
	"ecgmonitor/serial"
)

//go:embed dashboard.html
var dashboardHTML string

// Server provides HTTP endpoints for monitoring
type Server struct {
	config *config.MonitoringConfig
	server *http.Server
	logger *slog.Logger
}

// NewServer creates a new monitoring server
func NewServer(
	cfg *config.Config,
	instanceID, version, configPath string,
	manager *serial.Manager,
	loop *acquire.Loop,
	window *buffer.Window,
	recorder *record.Recorder,
	notifier *notify.SlackNotifier,
	logger *slog.Logger,
) *Server {
	mux := http.NewServeMux()

	// Health endpoint
	healthHandler := NewHealthHandler(instanceID, version, manager, loop, recorder)
	mux.Handle("/health", healthHandler)

	// Metrics endpoint (Prometheus format)
	metricsHandler := NewMetricsHandler(manager, loop, recorder)
	mux.Handle("/metrics", metricsHandler)

	// Feature extraction endpoint
	featuresHandler := NewFeaturesHandler(window, &cfg.Analysis)
	mux.Handle("/api/features", featuresHandler)

	// Serial port discovery endpoint
	portsHandler := NewPortsHandler()
	mux.Handle("/api/ports", portsHandler)

	// Config endpoint
	configHandler := NewConfigHandler(configPath)
	mux.Handle("/api/config", configHandler)

	// Recording control endpoint
	recordingHandler := NewRecordingHandler(recorder, cfg.Recording.Directory, notifier, logger)
	mux.Handle("/api/recording", recordingHandler)

	// Dashboard endpoint
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, dashboardHTML)
	})

	return &Server{
		config: &cfg.Monitoring,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Monitoring.Port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start starts the monitoring server
func (s *Server) Start() error {
	s.logger.Info("Starting monitoring server", "port", s.config.Port)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Monitoring server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully stops the monitoring server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping monitoring server")
	return s.server.Shutdown(ctx)
}
