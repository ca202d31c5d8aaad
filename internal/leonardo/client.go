// Package leonardo implements a client for the Leonardo.ai REST API: prompt
// refinement, generation job submission, reference image upload, and the
// polling protocol that observes asynchronous jobs to completion.
package leonardo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://cloud.leonardo.ai/api/rest/v1"
	defaultTimeout = 120 * time.Second

	// scratchModelID drives generations without reference conditioning.
	scratchModelID = "6b645e3a-d64f-4341-a6d8-7a3690fbf042"
	// referenceModelID drives generations conditioned on an uploaded image.
	referenceModelID = "e71a1c2f-4f80-4800-934f-2c68979d8cc8"

	// stylePreprocessorID selects the Style Reference controlnet.
	stylePreprocessorID = 67

	defaultPollInterval   = 2 * time.Second
	defaultPollAttempts   = 30
	defaultReferenceDelay = 20 * time.Second
)

type Config struct {
	APIKey     string
	BaseURL    string
	TimeoutSec int

	// PollInterval and PollAttempts bound the status-polling loop for
	// generations without a reference image. Zero values take the defaults
	// (2s interval, 30 attempts, so roughly a 60-second ceiling).
	PollInterval time.Duration
	PollAttempts int

	// ReferenceDelay is the single fixed wait before the one status check
	// performed for reference-conditioned generations.
	ReferenceDelay time.Duration

	Logger *zap.Logger
}

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	pollInterval   time.Duration
	pollAttempts   int
	referenceDelay time.Duration

	logger *zap.Logger
}

func New(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyRequired
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := defaultTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	pollAttempts := cfg.PollAttempts
	if pollAttempts <= 0 {
		pollAttempts = defaultPollAttempts
	}
	referenceDelay := cfg.ReferenceDelay
	if referenceDelay <= 0 {
		referenceDelay = defaultReferenceDelay
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		pollInterval:   pollInterval,
		pollAttempts:   pollAttempts,
		referenceDelay: referenceDelay,
		logger:         logger,
	}, nil
}

// postJSON sends an authorized JSON POST to path and returns the status code
// and raw body. Transport-level failures are returned as-is for the caller
// to classify.
func (c *Client) postJSON(ctx context.Context, path string, payload any) (int, []byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, body, nil
}

func (c *Client) getJSON(ctx context.Context, path string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, body, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}
