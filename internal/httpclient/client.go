// Package httpclient provides the authenticated HTTP transport for the
// external coordination endpoint.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum allowed response size (20MB)
	MaxResponseSize = 20 * 1024 * 1024

	// UserAgent is the user agent string for HTTP requests
	UserAgent = "datashare-coordinator/1.0"

	// ContentTypeFHIR is the media type of FHIR JSON resources
	ContentTypeFHIR = "application/fhir+json"
)

// Client is the interface for HTTP operations against the coordination
// endpoint. Paths are resolved relative to the configured base URL; a target
// that is already an absolute URL is used verbatim.
type Client interface {
	// Get performs an HTTP GET request and returns the response body.
	// params may be nil.
	Get(ctx context.Context, target string, params url.Values) ([]byte, error)

	// Post performs an HTTP POST request with the given JSON body.
	Post(ctx context.Context, target string, body []byte) ([]byte, error)

	// Put performs an HTTP PUT request with the given JSON body.
	Put(ctx context.Context, target string, body []byte) ([]byte, error)

	// BaseURL returns the configured base URL, without a trailing slash.
	// Empty when the client was built without one.
	BaseURL() string
}

// Option configures a DefaultClient
type Option func(*DefaultClient)

// WithTimeout sets the request timeout. Zero keeps DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *DefaultClient) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithTokenSource attaches a bearer token source; the token is refreshed by
// the source independently of in-flight requests.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *DefaultClient) {
		c.tokenSource = ts
	}
}

// WithClientCredentials attaches an OAuth2 client-credentials token source
// for the given token endpoint.
func WithClientCredentials(tokenURL, clientID, clientSecret string) Option {
	return func(c *DefaultClient) {
		cfg := &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
		}
		c.tokenSource = cfg.TokenSource(context.Background())
	}
}

// DefaultClient is the default HTTP client implementation
type DefaultClient struct {
	client      *http.Client
	baseURL     string
	timeout     time.Duration
	tokenSource oauth2.TokenSource
}

// NewDefaultClient creates a new client for the given base URL. A trailing
// slash on the base URL is dropped.
func NewDefaultClient(baseURL string, opts ...Option) *DefaultClient {
	c := &DefaultClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.client = &http.Client{Timeout: c.timeout}
	return c
}

// BaseURL returns the configured base URL without a trailing slash.
func (c *DefaultClient) BaseURL() string {
	return c.baseURL
}

// Get performs an HTTP GET request
func (c *DefaultClient) Get(ctx context.Context, target string, params url.Values) ([]byte, error) {
	u := c.resolve(target)
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + params.Encode()
	}
	return c.do(ctx, http.MethodGet, u, nil)
}

// Post performs an HTTP POST request with a FHIR JSON body
func (c *DefaultClient) Post(ctx context.Context, target string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, c.resolve(target), body)
}

// Put performs an HTTP PUT request with a FHIR JSON body
func (c *DefaultClient) Put(ctx context.Context, target string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPut, c.resolve(target), body)
}

func (c *DefaultClient) resolve(target string) string {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	if !strings.HasPrefix(target, "/") {
		target = "/" + target
	}
	return c.baseURL + target
}

func (c *DefaultClient) do(ctx context.Context, method, u string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", ContentTypeFHIR)
	if body != nil {
		req.Header.Set("Content-Type", ContentTypeFHIR)
	}

	if c.tokenSource != nil {
		token, err := c.tokenSource.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to obtain access token: %w", err)
		}
		token.SetAuthHeader(req)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// +1 to detect if the limit was exceeded
	limitedReader := io.LimitReader(resp.Body, MaxResponseSize+1)
	data, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, NewHTTPError(resp.StatusCode, u, truncate(string(data), 512))
	}

	if int64(len(data)) > MaxResponseSize {
		return nil, fmt.Errorf("response size exceeds maximum allowed size of %d bytes", MaxResponseSize)
	}

	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
