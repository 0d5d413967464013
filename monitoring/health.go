package monitoring

import (
	"encoding/json"
	"net/http"
	"time"

	"ecgmonitor/acquire"
	"ecgmonitor/record"
	"ecgmonitor/serial"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status           string        `json:"status"`
	InstanceID       string        `json:"instance_id"`
	Version          string        `json:"version"`
	UptimeSec        int64         `json:"uptime_sec"`
	Device           string        `json:"device"`
	ConnectionState  string        `json:"connection_state"`
	AcquisitionState string        `json:"acquisition_state"`
	RecordingActive  bool          `json:"recording_active"`
	Stats            acquire.Stats `json:"stats"`
}

// HealthHandler creates an HTTP handler for health checks
type HealthHandler struct {
	instanceID string
	version    string
	startTime  time.Time
	manager    *serial.Manager
	loop       *acquire.Loop
	recorder   *record.Recorder
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(instanceID, version string, manager *serial.Manager, loop *acquire.Loop, recorder *record.Recorder) *HealthHandler {
	return &HealthHandler{
		instanceID: instanceID,
		version:    version,
		startTime:  time.Now(),
		manager:    manager,
		loop:       loop,
		recorder:   recorder,
	}
}

// ServeHTTP handles the /health endpoint
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	connState := h.manager.State()
	loopState := h.loop.State()

	// Healthy means connected and draining data. A stalled loop or a
	// degraded link still serves requests but reports degraded.
	status := "healthy"
	switch {
	case connState == serial.StateFailed || loopState == acquire.StateStopped:
		status = "unhealthy"
	case connState != serial.StateConnected || loopState != acquire.StateRunning:
		status = "degraded"
	}

	response := HealthResponse{
		Status:           status,
		InstanceID:       h.instanceID,
		Version:          h.version,
		UptimeSec:        int64(time.Since(h.startTime).Seconds()),
		Device:           h.manager.Device(),
		ConnectionState:  string(connState),
		AcquisitionState: string(loopState),
		RecordingActive:  h.recorder != nil && h.recorder.Active(),
		Stats:            h.loop.Stats(),
	}

	w.Header().Set("Content-Type", "application/json")
	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(response)
}
