package diagnosis

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecgmonitor/feature"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testFeatures() feature.FeatureSet {
	bpm := 72.0
	return feature.FeatureSet{
		Mean:         0.4,
		Std:          5.2,
		Min:          -120,
		Max:          950,
		PeakToPeak:   1070,
		RMS:          5.3,
		SampleCount:  2500,
		Duration:     10 * time.Second,
		Peaks:        []int{250, 500, 750},
		HeartRateBPM: &bpm,
	}
}

func chatReply(content string) string {
	resp := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": content}},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func newTestClient(url string) *Client {
	return NewClient(Options{
		BaseURL:    url,
		APIKey:     "test-key",
		Model:      "test-model",
		Timeout:    5 * time.Second,
		MaxRetries: 2,
	}, testLogger())
}

func TestDiagnoseParsesFencedJSON(t *testing.T) {
	reply := "```json\n{\"primary_diagnosis\": \"sinus rhythm\", \"severity\": \"normal\", \"confidence\": 0.9}\n```"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Contains(t, req.Messages[0].Content, "Estimated heart rate: 72.0 BPM")

		w.Write([]byte(chatReply(reply)))
	}))
	defer srv.Close()

	report, err := newTestClient(srv.URL).Diagnose(context.Background(), testFeatures(), nil)
	require.NoError(t, err)

	assert.Equal(t, "sinus rhythm", report.PrimaryDiagnosis)
	assert.Equal(t, "normal", report.Severity)
	assert.Equal(t, 0.9, report.Confidence)
	assert.Equal(t, "test-model", report.Model)
	assert.False(t, report.Timestamp.IsZero())
}

func TestDiagnoseBareJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatReply(`{"primary_diagnosis": "bradycardia", "severity": "mild", "confidence": 0.7}`)))
	}))
	defer srv.Close()

	report, err := newTestClient(srv.URL).Diagnose(context.Background(), testFeatures(), nil)
	require.NoError(t, err)
	assert.Equal(t, "bradycardia", report.PrimaryDiagnosis)
}

func TestDiagnoseMissingFieldsDefaulted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatReply(`{"confidence": 1.7}`)))
	}))
	defer srv.Close()

	report, err := newTestClient(srv.URL).Diagnose(context.Background(), testFeatures(), nil)
	require.NoError(t, err)

	assert.Equal(t, "unknown", report.PrimaryDiagnosis)
	assert.Equal(t, "unknown", report.Severity)
	// Out-of-range confidence is clamped
	assert.Equal(t, 1.0, report.Confidence)
}

func TestDiagnoseRetriesOn5xx(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(chatReply(`{"primary_diagnosis": "ok", "severity": "normal", "confidence": 0.8}`)))
	}))
	defer srv.Close()

	report, err := newTestClient(srv.URL).Diagnose(context.Background(), testFeatures(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, "ok", report.PrimaryDiagnosis)
}

func TestDiagnoseNoRetryOn4xx(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Diagnose(context.Background(), testFeatures(), nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "401")
}

func TestDiagnoseUnparseableReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatReply("The patient appears healthy.")))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Diagnose(context.Background(), testFeatures(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse diagnosis report")
}

func TestDiagnosePatientInfoInPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Messages[0].Content, "Age: 54")
		assert.Contains(t, req.Messages[0].Content, "chest pain")

		w.Write([]byte(chatReply(`{"primary_diagnosis": "x", "severity": "normal", "confidence": 0.5}`)))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Diagnose(context.Background(), testFeatures(), &PatientInfo{
		Age:      54,
		Symptoms: "chest pain",
	})
	require.NoError(t, err)
}
