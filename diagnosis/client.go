// Package diagnosis calls a remote model-backed diagnosis service
// with features extracted from the sample window. The service is a
// black box behind an OpenAI-compatible chat completion endpoint;
// this client owns the retry and timeout policy and the shape of the
// request/response contract, nothing more.
package diagnosis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ecgmonitor/feature"
)

// PatientInfo is optional metadata attached to an analysis request
type PatientInfo struct {
	Age      int    `json:"age,omitempty"`
	Gender   string `json:"gender,omitempty"`
	Symptoms string `json:"symptoms,omitempty"`
}

// Recommendations groups the advice sections of a report
type Recommendations struct {
	ImmediateActions []string `json:"immediate_actions,omitempty"`
	FollowUp         []string `json:"follow_up,omitempty"`
	Lifestyle        []string `json:"lifestyle,omitempty"`
}

// Report is the structured diagnosis returned by the service.
// PrimaryDiagnosis, Severity and Confidence are always populated,
// defaulting to "unknown"/0.5 when the reply omits them.
type Report struct {
	PrimaryDiagnosis    string            `json:"primary_diagnosis"`
	SecondaryConditions []string          `json:"secondary_conditions,omitempty"`
	Severity            string            `json:"severity"`
	Confidence          float64           `json:"confidence"`
	KeyFindings         []string          `json:"key_findings,omitempty"`
	Recommendations     *Recommendations  `json:"recommendations,omitempty"`
	NormalRanges        map[string]string `json:"normal_ranges_comparison,omitempty"`
	RiskFactors         []string          `json:"risk_factors,omitempty"`
	Prognosis           string            `json:"prognosis,omitempty"`

	Timestamp time.Time `json:"timestamp"`
	Model     string    `json:"model_used"`
}

// Options configures a Client
type Options struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// Client talks to the diagnosis service
type Client struct {
	opts   Options
	client *http.Client
	logger *slog.Logger
}

// NewClient creates a diagnosis client
func NewClient(opts Options, logger *slog.Logger) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 2
	}
	return &Client{
		opts: opts,
		client: &http.Client{
			Timeout: opts.Timeout,
		},
		logger: logger,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Diagnose submits a feature set plus optional patient metadata and
// returns the parsed report. Transport errors and 5xx replies are
// retried up to the configured bound; 4xx replies fail immediately.
func (c *Client) Diagnose(ctx context.Context, fs feature.FeatureSet, patient *PatientInfo) (*Report, error) {
	prompt := buildPrompt(fs, patient)

	body, err := json.Marshal(chatRequest{
		Model: c.opts.Model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		// Low temperature keeps the analysis consistent across calls
		Temperature: 0.1,
		MaxTokens:   2000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal diagnosis request: %w", err)
	}

	url := strings.TrimRight(c.opts.BaseURL, "/") + "/v1/chat/completions"

	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("Retrying diagnosis request", "attempt", attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		content, retryable, err := c.post(ctx, url, body)
		if err == nil {
			report, perr := parseReport(content)
			if perr != nil {
				return nil, perr
			}
			report.Timestamp = time.Now()
			report.Model = c.opts.Model
			return report, nil
		}

		lastErr = err
		if !retryable {
			break
		}
	}

	return nil, fmt.Errorf("diagnosis request failed: %w", lastErr)
}

func (c *Client) post(ctx context.Context, url string, body []byte) (content string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", true, fmt.Errorf("service returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("service returned status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", false, fmt.Errorf("failed to decode service response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", false, fmt.Errorf("no response content from service")
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), false, nil
}

// parseReport extracts the JSON report from the model reply,
// stripping Markdown code fences when present. Missing required
// fields degrade to "unknown" rather than failing the whole call.
func parseReport(content string) (*Report, error) {
	cleaned := content
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	}
	cleaned = strings.TrimSpace(cleaned)

	var report Report
	if err := json.Unmarshal([]byte(cleaned), &report); err != nil {
		return nil, fmt.Errorf("failed to parse diagnosis report: %w", err)
	}

	if report.PrimaryDiagnosis == "" {
		report.PrimaryDiagnosis = "unknown"
	}
	if report.Severity == "" {
		report.Severity = "unknown"
	}
	if report.Confidence < 0 {
		report.Confidence = 0
	}
	if report.Confidence > 1 {
		report.Confidence = 1
	}

	return &report, nil
}
