package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError contains details about configuration validation failures
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for errors
func Validate(cfg *Config) error {
	var errors ValidationErrors

	// Validate device
	if cfg.Device.Port == "" {
		errors = append(errors, ValidationError{
			Field:   "device.port",
			Message: "device port is required",
		})
	}

	validBaudRates := []int{300, 1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200}
	if !contains(validBaudRates, cfg.Device.BaudRate) {
		errors = append(errors, ValidationError{
			Field:   "device.baud_rate",
			Message: fmt.Sprintf("invalid baud rate: %d", cfg.Device.BaudRate),
		})
	}

	if cfg.Device.DataBits != 7 && cfg.Device.DataBits != 8 {
		errors = append(errors, ValidationError{
			Field:   "device.data_bits",
			Message: fmt.Sprintf("must be 7 or 8, got %d", cfg.Device.DataBits),
		})
	}

	if cfg.Device.StopBits != 1 && cfg.Device.StopBits != 2 {
		errors = append(errors, ValidationError{
			Field:   "device.stop_bits",
			Message: fmt.Sprintf("must be 1 or 2, got %d", cfg.Device.StopBits),
		})
	}

	validParity := []string{"none", "odd", "even", "mark", "space"}
	if !containsString(validParity, strings.ToLower(cfg.Device.Parity)) {
		errors = append(errors, ValidationError{
			Field:   "device.parity",
			Message: fmt.Sprintf("invalid parity: %s", cfg.Device.Parity),
		})
	}

	for i, sec := range cfg.Device.ConnectTimeoutsSec {
		if sec < 1 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("device.connect_timeouts_sec[%d]", i),
				Message: "must be at least 1 second",
			})
		}
	}

	// Validate acquisition
	if cfg.Acquisition.PollIntervalMs < 1 {
		errors = append(errors, ValidationError{
			Field:   "acquisition.poll_interval_ms",
			Message: "must be at least 1 millisecond",
		})
	}
	if cfg.Acquisition.StallThresholdSec < 1 {
		errors = append(errors, ValidationError{
			Field:   "acquisition.stall_threshold_sec",
			Message: "must be at least 1 second",
		})
	}
	if cfg.Acquisition.MaxReconnectAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "acquisition.max_reconnect_attempts",
			Message: "must be at least 1",
		})
	}

	// Validate buffers
	if cfg.Buffers.RingCapacity < 1 {
		errors = append(errors, ValidationError{
			Field:   "buffers.ring_capacity",
			Message: "must be at least 1",
		})
	}
	if cfg.Buffers.WindowCapacity < cfg.Buffers.RingCapacity {
		errors = append(errors, ValidationError{
			Field:   "buffers.window_capacity",
			Message: "must be at least ring_capacity",
		})
	}

	// Validate analysis
	if cfg.Analysis.SamplingRateHz <= 0 {
		errors = append(errors, ValidationError{
			Field:   "analysis.sampling_rate_hz",
			Message: "must be greater than 0",
		})
	}
	if cfg.Analysis.PeakMinDistance < 1 {
		errors = append(errors, ValidationError{
			Field:   "analysis.peak_min_distance",
			Message: "must be at least 1",
		})
	}

	// Validate diagnosis
	if cfg.Diagnosis.Enabled {
		if cfg.Diagnosis.BaseURL == "" {
			errors = append(errors, ValidationError{
				Field:   "diagnosis.base_url",
				Message: "base_url is required when diagnosis is enabled",
			})
		} else if u, err := url.Parse(cfg.Diagnosis.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "diagnosis.base_url",
				Message: fmt.Sprintf("not a valid URL: %s", cfg.Diagnosis.BaseURL),
			})
		}
		if cfg.Diagnosis.APIKey == "" {
			errors = append(errors, ValidationError{
				Field:   "diagnosis.api_key",
				Message: "api_key is required when diagnosis is enabled",
			})
		}
	}

	// Validate monitoring
	if cfg.Monitoring.Enabled && (cfg.Monitoring.Port < 1 || cfg.Monitoring.Port > 65535) {
		errors = append(errors, ValidationError{
			Field:   "monitoring.port",
			Message: "must be between 1 and 65535",
		})
	}

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func contains(slice []int, val int) bool {
	for _, item := range slice {
		if item == val {
			return true
		}
	}
	return false
}

func containsString(slice []string, val string) bool {
	for _, item := range slice {
		if item == val {
			return true
		}
	}
	return false
}
