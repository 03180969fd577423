package poller

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MaxResponseBodySize bounds the bytes read from a single response.
const MaxResponseBodySize = 1 << 20 // 1MB

// DefaultRequestTimeout bounds a single request, body included.
const DefaultRequestTimeout = 30 * time.Second

// connection pooling limits; a consumer talks to a handful of hosts
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second // conservative: matches common ALB defaults
)

// Response holds the result of an HTTP request made by [Client.Do].
type Response struct {
	// Body contains the HTTP response body, limited to [MaxResponseBodySize].
	Body []byte

	// StatusCode is the HTTP status code (e.g., 200, 204, 500).
	// Zero if the request failed before receiving a response.
	StatusCode int

	// Status is the HTTP status line, e.g. "200 OK".
	Status string

	// Header holds the response headers.
	Header http.Header

	// URL is the final request URL, after redirects. Relative Link targets
	// resolve against it.
	URL string

	// Latency is the total time taken for the request.
	Latency time.Duration

	// Error contains any error that occurred during the request.
	// nil indicates the request completed (though status may indicate an error).
	Error error
}

// Client is an HTTP client wrapper for talking to the journal and the event
// ingress.
//
// Response bodies are limited to [MaxResponseBodySize] to prevent memory
// issues.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new [Client] around hc. If hc is nil,
// [DefaultHTTPClient] is used.
func NewClient(hc *http.Client) *Client {
	if hc == nil {
		hc = DefaultHTTPClient()
	}
	return &Client{httpClient: hc}
}

// DefaultHTTPClient returns a client with a pooled transport and
// [DefaultRequestTimeout].
//
// Connection pooling configuration:
//   - MaxIdleConns: 100 total idle connections
//   - MaxIdleConnsPerHost: 10 idle connections per host
//   - MaxConnsPerHost: 10 concurrent connections per host
//   - IdleConnTimeout: 60 seconds before closing idle connections
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		Timeout: DefaultRequestTimeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        defaultMaxIdleConns,
			MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
			MaxConnsPerHost:     defaultMaxConnsPerHost,
			IdleConnTimeout:     defaultIdleConnTimeout,
			DisableKeepAlives:   false, // explicitly enable connection reuse
		},
	}
}

// BuildRequest creates a request with the given headers. If method is
// empty, GET is used. A nil body sends no body.
func (c *Client) BuildRequest(ctx context.Context, method, url string, headers map[string]string, body []byte) (*http.Request, error) {
	if method == "" {
		method = http.MethodGet
	}

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// Send issues req and returns the raw response. The caller must close the
// body.
func (c *Client) Send(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// Do issues req and returns a structured [Response].
//
// Do always returns a Response; errors are captured in the Error field
// rather than returned separately.
func (c *Client) Do(req *http.Request) Response {
	start := time.Now()

	resp, err := c.Send(req)
	if err != nil {
		return Response{
			URL:     req.URL.String(),
			Latency: time.Since(start),
			Error:   err,
		}
	}

	r := Read(resp)
	r.Latency = time.Since(start)
	return r
}

// Read consumes and closes resp.Body, enforcing [MaxResponseBodySize].
func Read(resp *http.Response) Response {
	defer func() { _ = resp.Body.Close() }()

	r := Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
	}
	if resp.Request != nil && resp.Request.URL != nil {
		r.URL = resp.Request.URL.String()
	}

	// read one byte past the limit to detect truncation
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBodySize+1))
	if err != nil {
		r.Error = fmt.Errorf("failed to read response body: %w", err)
		return r
	}
	if len(body) > MaxResponseBodySize {
		r.Error = fmt.Errorf("response body exceeds %d bytes", MaxResponseBodySize)
		return r
	}

	r.Body = body
	return r
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times. After Close, the client remains usable but
// new connections will be established as needed.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	c.httpClient.CloseIdleConnections()
}
