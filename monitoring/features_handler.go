package monitoring

import (
	"encoding/json"
	"net/http"
	"strconv"

	"ecgmonitor/buffer"
	"ecgmonitor/config"
	"ecgmonitor/feature"
)

// FeaturesHandler extracts features from the current analysis window
// on demand
type FeaturesHandler struct {
	window   *buffer.Window
	analysis *config.AnalysisConfig
}

// NewFeaturesHandler creates a new features handler
func NewFeaturesHandler(window *buffer.Window, analysis *config.AnalysisConfig) *FeaturesHandler {
	return &FeaturesHandler{
		window:   window,
		analysis: analysis,
	}
}

// ServeHTTP handles the /api/features endpoint. An optional ?n=
// parameter limits extraction to the most recent n samples.
func (h *FeaturesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	n := 0
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "n must be a positive integer", http.StatusBadRequest)
			return
		}
		n = parsed
	}

	values := h.window.Values(n)
	if len(values) == 0 {
		http.Error(w, "no samples available", http.StatusServiceUnavailable)
		return
	}

	fs := feature.ExtractWithOptions(values, h.analysis.SamplingRateHz, feature.Options{
		PeakMinDistance: h.analysis.PeakMinDistance,
	})

	json.NewEncoder(w).Encode(fs)
}
