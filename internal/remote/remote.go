// Package remote holds the HTTP plumbing shared by the backend clients in
// its subpackages: request construction, request ids and error decoding.
package remote

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
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries a per-request uuid so backend logs can be correlated.
const RequestIDHeader = "X-Request-ID"

// maxBodySize caps how much of a response body is read.
const maxBodySize = 16 << 20

// ErrBaseURL is returned when a client is created without a usable base URL.
var ErrBaseURL = errors.New("base URL is required")

// APIError is a non-2xx response, or a 2xx response carrying error messages.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	RequestID  string
	Messages   []string
}

func (e *APIError) Error() string {
	msg := strings.Join(e.Messages, "; ")
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}

	return fmt.Sprintf("%s %s: %d: %s (request %s)", e.Method, e.URL, e.StatusCode, msg, e.RequestID)
}

// NotFound reports whether the backend answered 404.
func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// Temporary reports whether retrying may succeed (429 and 5xx).
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// Config configures a [Client].
type Config struct {
	BaseURL string
	// HTTPClient is used for all requests. If nil, a client with Timeout is created.
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *slog.Logger
	// Name tags log lines, e.g. "graph".
	Name string
}

// Client performs JSON requests against one base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	name       string
}

// NewClient validates cfg and returns a client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrBaseURL
	}

	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q has no http(s) scheme", ErrBaseURL, cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		name:       cfg.Name,
	}, nil
}

// BaseURL returns the base URL without trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Do sends requestBody (JSON-encoded when non-nil) to path and returns the
// response body. Non-2xx responses return an [*APIError]; errMessages, when
// non-nil, extracts messages from the error body.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, requestBody any,
	errMessages func([]byte) []string,
) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader

	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}

		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	requestID := uuid.NewString()

	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")

	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response of %s %s: %w", method, path, err)
	}

	c.logger.Debug("backend request", "client", c.name, "method", method, "path", path,
		"status", resp.StatusCode, "request_id", requestID, "elapsed", time.Since(start))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	apiErr := &APIError{
		Method:     method,
		URL:        path,
		StatusCode: resp.StatusCode,
		RequestID:  requestID,
	}

	if errMessages != nil {
		apiErr.Messages = errMessages(body)
	}

	if len(apiErr.Messages) == 0 && len(body) > 0 && len(body) < 512 {
		apiErr.Messages = []string{strings.TrimSpace(string(body))}
	}

	return nil, apiErr
}
