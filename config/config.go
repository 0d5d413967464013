package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration structure
type Config struct {
	App         AppConfig         `json:"app"`
	Device      DeviceConfig      `json:"device"`
	Acquisition AcquisitionConfig `json:"acquisition"`
	Buffers     BufferConfig      `json:"buffers"`
	Analysis    AnalysisConfig    `json:"analysis"`
	Recording   RecordingConfig   `json:"recording"`
	Diagnosis   DiagnosisConfig   `json:"diagnosis"`
	Logging     LoggingConfig     `json:"logging"`
	Monitoring  MonitoringConfig  `json:"monitoring"`
	Slack       SlackConfig       `json:"slack"`
}

// AppConfig contains application metadata
type AppConfig struct {
	Name       string `json:"name"`
	InstanceID string `json:"instance_id"`
}

// DeviceConfig defines the serial device to acquire from
type DeviceConfig struct {
	Port     string `json:"port"`
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`

	// Connect timeout ladder in seconds, tried in order until one succeeds
	ConnectTimeoutsSec []int `json:"connect_timeouts_sec"`
}

// AcquisitionConfig controls the acquisition loop
type AcquisitionConfig struct {
	PollIntervalMs       int `json:"poll_interval_ms"`
	StallThresholdSec    int `json:"stall_threshold_sec"`
	MaxConsecutiveErrors int `json:"max_consecutive_errors"`
	MaxReconnectAttempts int `json:"max_reconnect_attempts"`
}

// BufferConfig sizes the display ring and the analysis window
type BufferConfig struct {
	RingCapacity   int `json:"ring_capacity"`
	WindowCapacity int `json:"window_capacity"`
}

// AnalysisConfig controls feature extraction
type AnalysisConfig struct {
	SamplingRateHz  float64 `json:"sampling_rate_hz"`
	PeakMinDistance int     `json:"peak_min_distance"`
}

// RecordingConfig controls the CSV recorder
type RecordingConfig struct {
	Directory  string `json:"directory"`
	AutoStart  bool   `json:"auto_start"`
	FilePrefix string `json:"file_prefix"`
}

// DiagnosisConfig controls the remote diagnosis client
type DiagnosisConfig struct {
	Enabled         bool   `json:"enabled"`
	BaseURL         string `json:"base_url"`
	APIKey          string `json:"api_key"`
	Model           string `json:"model"`
	TimeoutSec      int    `json:"timeout_sec"`
	MaxRetries      int    `json:"max_retries"`
	AutoIntervalSec int    `json:"auto_interval_sec"`
	MinSamples      int    `json:"min_samples"`
	WindowSamples   int    `json:"window_samples"`
}

// LoggingConfig defines logging settings
type LoggingConfig struct {
	Level      string `json:"level"`
	BasePath   string `json:"base_path"`
	Filename   string `json:"filename"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	Compress   bool   `json:"compress"`
}

// MonitoringConfig defines HTTP monitoring settings
type MonitoringConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

// SlackConfig defines Slack notification settings
type SlackConfig struct {
	WebhookURL      string `json:"webhook_url"`
	NotifyStartup   bool   `json:"notify_startup"`
	NotifyShutdown  bool   `json:"notify_shutdown"`
	NotifyErrors    bool   `json:"notify_errors"`
	NotifyRecording bool   `json:"notify_recording"`
}

// Load reads and parses a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Apply defaults
	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for unspecified fields
func (c *Config) applyDefaults() {
	// App defaults
	if c.App.Name == "" {
		c.App.Name = "ECGMonitor"
	}
	if c.App.InstanceID == "" {
		hostname, _ := os.Hostname()
		c.App.InstanceID = hostname
	}

	// Device defaults
	if c.Device.BaudRate == 0 {
		c.Device.BaudRate = 57600
	}
	if c.Device.DataBits == 0 {
		c.Device.DataBits = 8
	}
	if c.Device.StopBits == 0 {
		c.Device.StopBits = 1
	}
	if c.Device.Parity == "" {
		c.Device.Parity = "none"
	}
	if len(c.Device.ConnectTimeoutsSec) == 0 {
		c.Device.ConnectTimeoutsSec = []int{2, 5, 10}
	}

	// Acquisition defaults
	if c.Acquisition.PollIntervalMs == 0 {
		c.Acquisition.PollIntervalMs = 20
	}
	if c.Acquisition.StallThresholdSec == 0 {
		c.Acquisition.StallThresholdSec = 5
	}
	if c.Acquisition.MaxConsecutiveErrors == 0 {
		c.Acquisition.MaxConsecutiveErrors = 10
	}
	if c.Acquisition.MaxReconnectAttempts == 0 {
		c.Acquisition.MaxReconnectAttempts = 5
	}

	// Buffer defaults
	if c.Buffers.RingCapacity == 0 {
		c.Buffers.RingCapacity = 2000
	}
	if c.Buffers.WindowCapacity == 0 {
		c.Buffers.WindowCapacity = 5000
	}

	// Analysis defaults
	if c.Analysis.SamplingRateHz == 0 {
		c.Analysis.SamplingRateHz = 250
	}
	if c.Analysis.PeakMinDistance == 0 {
		c.Analysis.PeakMinDistance = 50
	}

	// Recording defaults
	if c.Recording.Directory == "" {
		home, _ := os.UserHomeDir()
		c.Recording.Directory = filepath.Join(home, "ecg_recordings")
	}
	if c.Recording.FilePrefix == "" {
		c.Recording.FilePrefix = "ecg_recording"
	}

	// Diagnosis defaults
	if c.Diagnosis.Model == "" {
		c.Diagnosis.Model = "gemini-2.5-flash-preview-04-17"
	}
	if c.Diagnosis.TimeoutSec == 0 {
		c.Diagnosis.TimeoutSec = 30
	}
	if c.Diagnosis.MaxRetries == 0 {
		c.Diagnosis.MaxRetries = 2
	}
	if c.Diagnosis.AutoIntervalSec == 0 {
		c.Diagnosis.AutoIntervalSec = 30
	}
	if c.Diagnosis.MinSamples == 0 {
		c.Diagnosis.MinSamples = 100
	}
	if c.Diagnosis.WindowSamples == 0 {
		c.Diagnosis.WindowSamples = 2500
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Filename == "" {
		c.Logging.Filename = "ecgmonitor.log"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 50
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 5
	}

	// Monitoring defaults
	if c.Monitoring.Port == 0 {
		c.Monitoring.Port = 8080
	}
}

// PollInterval returns the acquisition poll interval as a duration
func (c *AcquisitionConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// StallThreshold returns the stall detection threshold as a duration
func (c *AcquisitionConfig) StallThreshold() time.Duration {
	return time.Duration(c.StallThresholdSec) * time.Second
}

// ConnectTimeouts returns the connect timeout ladder as durations
func (c *DeviceConfig) ConnectTimeouts() []time.Duration {
	out := make([]time.Duration, 0, len(c.ConnectTimeoutsSec))
	for _, sec := range c.ConnectTimeoutsSec {
		out = append(out, time.Duration(sec)*time.Second)
	}
	return out
}

// Timeout returns the diagnosis request timeout as a duration
func (c *DiagnosisConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// AutoInterval returns the auto-diagnosis interval as a duration
func (c *DiagnosisConfig) AutoInterval() time.Duration {
	return time.Duration(c.AutoIntervalSec) * time.Second
}
