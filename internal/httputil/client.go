// Package httputil provides HTTP client and response utilities for
// service-to-service communication.
package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coach-dss/coach/internal/logging"
)

const (
	// TraceIDHeader propagates the trace id between services.
	TraceIDHeader = "X-Trace-ID"

	// ServiceIDHeader identifies the calling service.
	ServiceIDHeader = "X-Service-ID"

	// UserIDHeader carries the end user on whose behalf a call is made.
	UserIDHeader = "X-User-ID"

	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 8 << 20
	maxErrorBytes  = 64 << 10
)

// =============================================================================
// Service Client
// =============================================================================

// ServiceClient issues requests against one peer service. It attaches the
// caller's service id and propagates trace and user ids from the context.
type ServiceClient struct {
	httpClient *http.Client
	serviceID  string
	baseURL    string
}

// ServiceClientConfig configures the service client.
type ServiceClientConfig struct {
	ServiceID  string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewServiceClient creates a new service client.
func NewServiceClient(cfg ServiceClientConfig) *ServiceClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &ServiceClient{
		httpClient: httpClient,
		serviceID:  cfg.ServiceID,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// BaseURL returns the peer's base URL.
func (c *ServiceClient) BaseURL() string {
	return c.baseURL
}

// Do executes a request with an optional JSON body.
func (c *ServiceClient) Do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(ctx, req)
}

// DoForm executes a request carrying values as a query string (GET, DELETE)
// or as a form-encoded body (everything else).
func (c *ServiceClient) DoForm(ctx context.Context, method, path string, values url.Values) (*http.Response, error) {
	target := c.baseURL + path
	var bodyReader io.Reader

	switch method {
	case http.MethodGet, http.MethodDelete, http.MethodHead:
		if len(values) > 0 {
			target += "?" + values.Encode()
		}
	default:
		bodyReader = strings.NewReader(values.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return c.send(ctx, req)
}

func (c *ServiceClient) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.serviceID != "" {
		req.Header.Set(ServiceIDHeader, c.serviceID)
	}
	if traceID := logging.GetTraceID(ctx); traceID != "" {
		req.Header.Set(TraceIDHeader, traceID)
	}
	if userID := logging.GetUserID(ctx); userID != "" {
		req.Header.Set(UserIDHeader, userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// Get performs a GET request.
func (c *ServiceClient) Get(ctx context.Context, path string) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with JSON body.
func (c *ServiceClient) Post(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

// PostForm performs a form-encoded POST request.
func (c *ServiceClient) PostForm(ctx context.Context, path string, values url.Values) (*http.Response, error) {
	return c.DoForm(ctx, http.MethodPost, path, values)
}

// DecodeResponse decodes a JSON response into the target struct.
func DecodeResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, truncated, err := ReadAllWithLimit(resp.Body, maxErrorBytes)
		if err != nil {
			return fmt.Errorf("read error response body: %w", err)
		}
		msg := strings.TrimSpace(string(body))
		if truncated {
			msg += "...(truncated)"
		}
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, msg)
	}

	if target == nil {
		if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes)); err != nil {
			return fmt.Errorf("discard response body: %w", err)
		}
		return nil
	}

	body, err := ReadAllStrict(resp.Body, maxBodyBytes)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// ReadAllWithLimit reads up to limit bytes and reports whether more remained.
func ReadAllWithLimit(r io.Reader, limit int64) ([]byte, bool, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > limit {
		return data[:limit], true, nil
	}
	return data, false, nil
}

// ReadAllStrict reads everything from r and fails if it exceeds limit bytes.
func ReadAllStrict(r io.Reader, limit int64) ([]byte, error) {
	data, truncated, err := ReadAllWithLimit(r, limit)
	if err != nil {
		return nil, err
	}
	if truncated {
		return nil, fmt.Errorf("body exceeds %d bytes", limit)
	}
	return data, nil
}
