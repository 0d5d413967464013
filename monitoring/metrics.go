package monitoring

import (
	"fmt"
	"net/http"

	"ecgmonitor/acquire"
	"ecgmonitor/record"
	"ecgmonitor/serial"
)

// MetricsHandler creates an HTTP handler for Prometheus metrics
type MetricsHandler struct {
	manager  *serial.Manager
	loop     *acquire.Loop
	recorder *record.Recorder
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(manager *serial.Manager, loop *acquire.Loop, recorder *record.Recorder) *MetricsHandler {
	return &MetricsHandler{
		manager:  manager,
		loop:     loop,
		recorder: recorder,
	}
}

// ServeHTTP handles the /metrics endpoint in Prometheus format
func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	stats := h.loop.Stats()
	device := h.manager.Device()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	fmt.Fprintln(w, "# HELP ecgmonitor_samples_total Total samples accepted")
	fmt.Fprintln(w, "# TYPE ecgmonitor_samples_total counter")
	fmt.Fprintf(w, "ecgmonitor_samples_total{device=%q} %d\n", device, stats.Samples)

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# HELP ecgmonitor_bytes_received_total Total bytes read from the device")
	fmt.Fprintln(w, "# TYPE ecgmonitor_bytes_received_total counter")
	fmt.Fprintf(w, "ecgmonitor_bytes_received_total{device=%q} %d\n", device, stats.BytesReceived)

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# HELP ecgmonitor_lines_total Total complete lines received")
	fmt.Fprintln(w, "# TYPE ecgmonitor_lines_total counter")
	fmt.Fprintf(w, "ecgmonitor_lines_total{device=%q} %d\n", device, stats.LinesTotal)

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# HELP ecgmonitor_invalid_lines_total Total lines discarded as unparseable")
	fmt.Fprintln(w, "# TYPE ecgmonitor_invalid_lines_total counter")
	fmt.Fprintf(w, "ecgmonitor_invalid_lines_total{device=%q} %d\n", device, stats.InvalidLines)

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# HELP ecgmonitor_system_messages_total Total device system messages")
	fmt.Fprintln(w, "# TYPE ecgmonitor_system_messages_total counter")
	fmt.Fprintf(w, "ecgmonitor_system_messages_total{device=%q} %d\n", device, stats.SystemMessages)

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# HELP ecgmonitor_read_errors_total Total serial read errors")
	fmt.Fprintln(w, "# TYPE ecgmonitor_read_errors_total counter")
	fmt.Fprintf(w, "ecgmonitor_read_errors_total{device=%q} %d\n", device, stats.ReadErrors)

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# HELP ecgmonitor_stalls_detected_total Total data stalls detected")
	fmt.Fprintln(w, "# TYPE ecgmonitor_stalls_detected_total counter")
	fmt.Fprintf(w, "ecgmonitor_stalls_detected_total{device=%q} %d\n", device, stats.StallsDetected)

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# HELP ecgmonitor_reconnects_total Total reconnect attempts")
	fmt.Fprintln(w, "# TYPE ecgmonitor_reconnects_total counter")
	fmt.Fprintf(w, "ecgmonitor_reconnects_total{device=%q} %d\n", device, h.manager.ReconnectsTotal())

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# HELP ecgmonitor_connection_up Connection status (1=connected, 0=not connected)")
	fmt.Fprintln(w, "# TYPE ecgmonitor_connection_up gauge")
	up := 0
	if h.manager.State() == serial.StateConnected {
		up = 1
	}
	fmt.Fprintf(w, "ecgmonitor_connection_up{device=%q} %d\n", device, up)

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# HELP ecgmonitor_acquisition_up Acquisition loop status (1=running, 0=not running)")
	fmt.Fprintln(w, "# TYPE ecgmonitor_acquisition_up gauge")
	running := 0
	if h.loop.State() == acquire.StateRunning {
		running = 1
	}
	fmt.Fprintf(w, "ecgmonitor_acquisition_up{device=%q} %d\n", device, running)

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# HELP ecgmonitor_recording_active Recording status (1=recording, 0=idle)")
	fmt.Fprintln(w, "# TYPE ecgmonitor_recording_active gauge")
	recording := 0
	if h.recorder != nil && h.recorder.Active() {
		recording = 1
	}
	fmt.Fprintf(w, "ecgmonitor_recording_active{device=%q} %d\n", device, recording)

	if !stats.LastDataTime.IsZero() {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "# HELP ecgmonitor_last_sample_timestamp Unix timestamp of last data received")
		fmt.Fprintln(w, "# TYPE ecgmonitor_last_sample_timestamp gauge")
		fmt.Fprintf(w, "ecgmonitor_last_sample_timestamp{device=%q} %d\n", device, stats.LastDataTime.Unix())
	}
}
