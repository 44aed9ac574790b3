package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// ClientConfig holds the settings of an agent talking to the daemon
type ClientConfig struct {
	ServerURL    string        // Daemon base URL (e.g. "http://127.0.0.1:8080")
	Token        string        // Bearer token for /v1/agent
	PollInterval time.Duration // How often to poll for directives (default: 1s)
	Timeout      time.Duration // HTTP timeout per request (default: 10s)
}

// DefaultClientConfig returns a config with default values
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ServerURL:    "http://127.0.0.1:8080",
		PollInterval: time.Second,
		Timeout:      10 * time.Second,
	}
}

// Validate validates the configuration
func (c *ClientConfig) Validate() error {
	if c.Token == "" {
		return ErrMissingToken
	}
	if c.ServerURL == "" {
		return ErrMissingURL
	}
	if c.PollInterval <= 0 {
		return ErrInvalidInterval
	}
	return nil
}

// Client is the agent side of the /v1/agent endpoints
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new agent client
func NewClient(config *ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: config.ServerURL,
		token:   config.Token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "agent-client"),
	}
}

// ReportForeground posts the current foreground app
func (c *Client) ReportForeground(ctx context.Context, packageID string, observedAt time.Time) error {
	return c.do(ctx, http.MethodPost, "/v1/agent/foreground", ForegroundReport{
		PackageID:  packageID,
		ObservedAt: observedAt,
	}, nil)
}

// ReportUsageStats posts a usage stats snapshot
func (c *Client) ReportUsageStats(ctx context.Context, report UsageStatsReport) error {
	return c.do(ctx, http.MethodPost, "/v1/agent/usage-stats", report, nil)
}

// PollDirective returns the pending overlay directive, or nil when none
func (c *Client) PollDirective(ctx context.Context) (*Directive, error) {
	var resp struct {
		Directive *Directive `json:"directive"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/agent/directive", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Directive, nil
}

// AckDismissed tells the daemon the user closed the overlay with handle
func (c *Client) AckDismissed(ctx context.Context, handle string) error {
	err := c.do(ctx, http.MethodPost, "/v1/agent/directive/"+url.PathEscape(handle)+"/dismissed", nil, nil)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
		return ErrUnknownOverlay
	}
	return err
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Code == http.StatusUnauthorized {
		return "unauthorized: invalid agent token"
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	u = u.JoinPath(path)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("agent request", "method", method, "path", path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
