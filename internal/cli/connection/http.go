package connection

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AdminClient talks to the server's admin HTTP endpoints.
type AdminClient struct {
	baseURL   string
	client    *http.Client
	userAgent string
}

// NewAdminClient creates a client for the admin server at addr. A non-nil
// tlsCfg switches the default scheme to https.
func NewAdminClient(addr, userAgent string, timeout time.Duration, tlsCfg *tls.Config) *AdminClient {
	scheme := "http://"
	hc := &http.Client{Timeout: timeout}
	if tlsCfg != nil {
		scheme = "https://"
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = tlsCfg
		hc.Transport = transport
	}

	baseURL := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = scheme + baseURL
	}
	return &AdminClient{
		baseURL:   baseURL,
		userAgent: userAgent,
		client:    hc,
	}
}

// BaseURL returns the base URL of the client.
func (c *AdminClient) BaseURL() string {
	return c.baseURL
}

// Status fetches GET /admin/v1/status.
func (c *AdminClient) Status(ctx context.Context) (map[string]any, error) {
	var data map[string]any
	err := c.call(ctx, http.MethodGet, "/admin/v1/status", &data)
	return data, err
}

// Snapshot triggers POST /admin/v1/snapshot.
func (c *AdminClient) Snapshot(ctx context.Context) (map[string]any, error) {
	var data map[string]any
	err := c.call(ctx, http.MethodPost, "/admin/v1/snapshot", &data)
	return data, err
}

// Health fetches GET /health.
func (c *AdminClient) Health(ctx context.Context) (map[string]any, error) {
	var data map[string]any
	err := c.call(ctx, http.MethodGet, "/health", &data)
	return data, err
}

func (c *AdminClient) call(ctx context.Context, method, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	return ParseResponse(res, target)
}

// ParseResponse decodes the envelope and unmarshals its data into target.
func ParseResponse(res *http.Response, target any) error {
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		if res.StatusCode >= 400 {
			return fmt.Errorf("request failed with status %d", res.StatusCode)
		}
		return fmt.Errorf("parse response: %w", err)
	}
	if res.StatusCode >= 400 {
		if env.Message != "" {
			return fmt.Errorf("[%s] %s", env.Code, env.Message)
		}
		return fmt.Errorf("request failed with status %d", res.StatusCode)
	}
	if target != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, target); err != nil {
			return fmt.Errorf("parse response data: %w", err)
		}
	}
	return nil
}
