package monitoring

import (
	"encoding/json"
	"net/http"

	"ecgmonitor/serial"
)

// PortsHandler lists the serial ports visible to the process
type PortsHandler struct{}

// NewPortsHandler creates a new ports handler
func NewPortsHandler() *PortsHandler {
	return &PortsHandler{}
}

// ServeHTTP handles the /api/ports endpoint
func (h *PortsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ports, err := serial.ListPorts()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if ports == nil {
		ports = []string{}
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"ports": ports,
	})
}
