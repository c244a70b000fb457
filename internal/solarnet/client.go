// Package solarnet is an HTTP client for the SolarNetwork API that signs
// every request with SNWS2.
package solarnet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ethanadams/solarnet-synthetics/internal/executor/snws2"
	"github.com/ethanadams/solarnet-synthetics/internal/logging"
)

const (
	// DefaultHost is the public SolarNetwork API host.
	DefaultHost = "data.solarnetwork.net"

	// DefaultAccept is sent when a request names no media type.
	DefaultAccept = "application/json"

	contentTypeJSON = "application/json"

	// maxErrorBody bounds how much of a failed response is read for its envelope.
	maxErrorBody = 64 * 1024
)

// Credentials identify a SolarNetwork security token and the host it is
// used against.
type Credentials struct {
	Token  string
	Secret string
	Host   string
}

// String redacts the secret.
func (c Credentials) String() string {
	return fmt.Sprintf("{Token:%s Secret:<redacted> Host:%s}", c.Token, c.Host)
}

// GoString redacts the secret for %#v.
func (c Credentials) GoString() string {
	return fmt.Sprintf("solarnet.Credentials{Token:%q, Secret:<redacted>, Host:%q}", c.Token, c.Host)
}

// Client sends signed requests to one SolarNetwork host. It is safe for
// concurrent use; Close releases pooled connections.
type Client struct {
	signer     *snws2.Signer
	host       string
	scheme     string
	httpClient *http.Client
	timeout    time.Duration
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithScheme sets the URL scheme, "https" unless overridden.
func WithScheme(scheme string) Option {
	return func(c *Client) {
		c.scheme = scheme
	}
}

// WithClock overrides the signing time source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithTimeout bounds each request, including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// NewClient creates a client for creds. An empty Host means DefaultHost.
func NewClient(creds Credentials, opts ...Option) (*Client, error) {
	c := &Client{
		host:   creds.Host,
		scheme: "https",
		now:    time.Now,
	}
	if c.host == "" {
		c.host = DefaultHost
	}
	for _, opt := range opts {
		opt(c)
	}

	signer, err := snws2.NewSigner(snws2.Credentials{Token: creds.Token, Secret: creds.Secret}, snws2.WithClock(c.now))
	if err != nil {
		return nil, err
	}
	c.signer = signer

	if c.httpClient == nil {
		c.httpClient = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c, nil
}

// Host returns the API host requests are sent to.
func (c *Client) Host() string {
	return c.host
}

// Signer exposes the request signer, for callers that build requests
// themselves.
func (c *Client) Signer() *snws2.Signer {
	return c.signer
}

// URL builds the request URL for path and params.
func (c *Client) URL(path string, params url.Values) *url.URL {
	return &url.URL{
		Scheme:   c.scheme,
		Host:     c.host,
		Path:     path,
		RawQuery: params.Encode(),
	}
}

// Prepare builds and signs a request without sending it. A non-nil body
// is JSON encoded. The signed headers are accept, host and x-sn-date.
func (c *Client) Prepare(ctx context.Context, method Method, path string, params url.Values, body any, accept string) (*http.Request, error) {
	if !method.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, string(method))
	}
	if accept == "" {
		accept = DefaultAccept
	}

	data, err := EncodeBody(body)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if data != nil {
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, string(method), c.URL(path, params).String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", accept)
	if data != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}

	if err := c.signer.Sign(req, data, "accept"); err != nil {
		return nil, err
	}
	return req, nil
}

// EncodeBody JSON encodes a request body. A nil body encodes to nil.
func EncodeBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return data, nil
}

// Request signs and sends a request. The caller closes the response body.
func (c *Client) Request(ctx context.Context, method Method, path string, params url.Values, body any, accept string) (*http.Response, error) {
	req, err := c.Prepare(ctx, method, path, params, body, accept)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Do sends a request built by Prepare.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	logging.Debug("solarnet: %s %s", req.Method, req.URL.Redacted())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", req.Method, req.URL.Path, err)
	}
	return resp, nil
}

// RequestChecked is Request that turns non-2xx responses into *APIError.
func (c *Client) RequestChecked(ctx context.Context, method Method, path string, params url.Values, body any, accept string) (*http.Response, error) {
	resp, err := c.Request(ctx, method, path, params, body, accept)
	if err != nil {
		return nil, err
	}
	if err := CheckResponse(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CheckResponse returns nil for 2xx responses. Otherwise it consumes and
// closes the body and returns an *APIError carrying the envelope code and
// message when the body has one.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()

	apiErr := &APIError{StatusCode: resp.StatusCode}
	if env, err := DecodeEnvelope(io.LimitReader(resp.Body, maxErrorBody)); err == nil {
		apiErr.Code = env.Code
		apiErr.Message = env.Message
	}
	return apiErr
}

// Close releases idle connections held by the client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
