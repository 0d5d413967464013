package monitoring

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecgmonitor/acquire"
	"ecgmonitor/buffer"
	"ecgmonitor/config"
	"ecgmonitor/feature"
	"ecgmonitor/notify"
	"ecgmonitor/record"
	"ecgmonitor/serial"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func connectedManager(t *testing.T) *serial.Manager {
	t.Helper()
	m := serial.NewManager(serial.PortConfig{Device: "/dev/mock0"},
		[]time.Duration{time.Second}, 3, testLogger())
	m.SetOpenFunc(func(serial.PortConfig) (serial.Port, error) {
		return serial.NewMockPort("/dev/mock0"), nil
	})
	require.NoError(t, m.Connect(context.Background()))
	return m
}

func idleLoop(t *testing.T, m *serial.Manager) *acquire.Loop {
	t.Helper()
	return acquire.NewLoop(m, buffer.NewRing(10), buffer.NewWindow(10), nil,
		acquire.Config{}, testLogger())
}

func TestHealthHandler(t *testing.T) {
	m := connectedManager(t)
	loop := idleLoop(t, m)
	recorder := record.NewRecorder("test", testLogger())

	h := NewHealthHandler("test-instance", "1.0.0", m, loop, recorder)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	// Connected but the loop is idle: degraded, not unhealthy
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "test-instance", resp.InstanceID)
	assert.Equal(t, "connected", resp.ConnectionState)
	assert.Equal(t, "idle", resp.AcquisitionState)
	assert.False(t, resp.RecordingActive)
}

func TestHealthHandlerDisconnectedDegraded(t *testing.T) {
	m := serial.NewManager(serial.PortConfig{Device: "/dev/mock0"},
		[]time.Duration{time.Second}, 1, testLogger())
	loop := idleLoop(t, m)

	h := NewHealthHandler("i", "v", m, loop, nil)

	// Disconnected manager and an idle loop report degraded
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
}

func TestMetricsHandler(t *testing.T) {
	m := connectedManager(t)
	loop := idleLoop(t, m)

	h := NewMetricsHandler(m, loop, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.Contains(t, body, `ecgmonitor_samples_total{device="/dev/mock0"} 0`)
	assert.Contains(t, body, `ecgmonitor_connection_up{device="/dev/mock0"} 1`)
	assert.Contains(t, body, `ecgmonitor_acquisition_up{device="/dev/mock0"} 0`)
	assert.Contains(t, body, `ecgmonitor_recording_active{device="/dev/mock0"} 0`)
	assert.True(t, strings.HasPrefix(body, "# HELP"))
}

func TestFeaturesHandler(t *testing.T) {
	window := buffer.NewWindow(100)
	for i := 0; i < 50; i++ {
		v := 0.0
		if i == 25 {
			v = 100
		}
		window.Push(buffer.Sample{Value: v, ReceivedAt: time.Now()})
	}

	h := NewFeaturesHandler(window, &config.AnalysisConfig{
		SamplingRateHz:  250,
		PeakMinDistance: 50,
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/features", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var fs feature.FeatureSet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fs))
	assert.Equal(t, 50, fs.SampleCount)
	assert.Equal(t, 100.0, fs.Max)
}

func TestFeaturesHandlerEmptyWindow(t *testing.T) {
	h := NewFeaturesHandler(buffer.NewWindow(10), &config.AnalysisConfig{SamplingRateHz: 250})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/features", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestFeaturesHandlerLimit(t *testing.T) {
	window := buffer.NewWindow(100)
	for i := 0; i < 80; i++ {
		window.Push(buffer.Sample{Value: float64(i), ReceivedAt: time.Now()})
	}

	h := NewFeaturesHandler(window, &config.AnalysisConfig{SamplingRateHz: 250})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/features?n=20", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var fs feature.FeatureSet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fs))
	assert.Equal(t, 20, fs.SampleCount)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/features?n=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordingHandler(t *testing.T) {
	dir := t.TempDir()
	recorder := record.NewRecorder("test", testLogger())
	h := NewRecordingHandler(recorder, dir, nil, testLogger())

	// Initially idle
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/recording", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"active":false`)

	// Start
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/recording",
		strings.NewReader(`{"action":"start"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, recorder.Active())

	// Second start conflicts
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/recording",
		strings.NewReader(`{"action":"start"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Stop
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/recording",
		strings.NewReader(`{"action":"stop"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, recorder.Active())

	// Unknown action
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/recording",
		strings.NewReader(`{"action":"pause"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordingHandlerSendsNotifications(t *testing.T) {
	type webhook struct {
		Attachments []struct {
			Title string `json:"title"`
		} `json:"attachments"`
	}

	var titles []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg webhook
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		require.Len(t, msg.Attachments, 1)
		titles = append(titles, msg.Attachments[0].Title)
	}))
	defer srv.Close()

	notifier := notify.NewSlackNotifier(&config.SlackConfig{
		WebhookURL:      srv.URL,
		NotifyRecording: true,
	}, "test-instance", testLogger())

	recorder := record.NewRecorder("test", testLogger())
	h := NewRecordingHandler(recorder, t.TempDir(), notifier, testLogger())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/recording",
		strings.NewReader(`{"action":"start"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/recording",
		strings.NewReader(`{"action":"stop"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{"Recording Started", "Recording Stopped"}, titles)

	// Stopping again is a no-op and must not notify
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/recording",
		strings.NewReader(`{"action":"stop"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, titles, 2)
}

func TestConfigHandlerRedactsAPIKey(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.json"
	require.NoError(t, os.WriteFile(path, []byte(`{
		"device": {"port": "/dev/ttyUSB0"},
		"diagnosis": {"enabled": true, "base_url": "https://api.example.com", "api_key": "secret"}
	}`), 0o644))

	h := NewConfigHandler(path)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.NotContains(t, body, "secret")
	assert.Contains(t, body, "***")
}
