package monitoring

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"ecgmonitor/notify"
	"ecgmonitor/record"
)

// RecordingHandler starts and stops recording sessions over HTTP
type RecordingHandler struct {
	recorder  *record.Recorder
	directory string
	notifier  *notify.SlackNotifier
	logger    *slog.Logger
}

// NewRecordingHandler creates a new recording control handler. The
// notifier may be nil when notifications are not configured.
func NewRecordingHandler(recorder *record.Recorder, directory string, notifier *notify.SlackNotifier, logger *slog.Logger) *RecordingHandler {
	return &RecordingHandler{
		recorder:  recorder,
		directory: directory,
		notifier:  notifier,
		logger:    logger,
	}
}

type recordingRequest struct {
	Action string `json:"action"`
}

// ServeHTTP handles the /api/recording endpoint. GET reports the
// active session; POST with {"action": "start"|"stop"} controls it.
func (h *RecordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.recorder == nil {
		http.Error(w, "recording not configured", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getStatus(w)
	case http.MethodPost:
		h.control(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *RecordingHandler) getStatus(w http.ResponseWriter) {
	session, active := h.recorder.Current()
	resp := map[string]interface{}{
		"active": active,
	}
	if active {
		resp["session"] = session
	}
	json.NewEncoder(w).Encode(resp)
}

func (h *RecordingHandler) control(w http.ResponseWriter, r *http.Request) {
	var req recordingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch req.Action {
	case "start":
		session, err := h.recorder.Start(h.directory)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, record.ErrSessionActive) {
				status = http.StatusConflict
			}
			http.Error(w, err.Error(), status)
			return
		}
		if h.notifier != nil {
			if err := h.notifier.NotifyRecordingStarted(session.Path); err != nil {
				h.logger.Warn("Failed to send recording notification", "error", err)
			}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "started",
			"session": session,
		})

	case "stop":
		session, active := h.recorder.Current()
		path := h.recorder.Stop()
		if h.notifier != nil && active {
			if err := h.notifier.NotifyRecordingStopped(path, session.RowCount); err != nil {
				h.logger.Warn("Failed to send recording notification", "error", err)
			}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "stopped",
			"path":   path,
		})

	default:
		http.Error(w, "action must be start or stop", http.StatusBadRequest)
	}
}
