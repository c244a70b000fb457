// Package solarnetwork is a k6 extension that signs SolarNetwork API
// requests, so scripts can call the API with k6/http and keep k6's own
// http_req_* metrics.
//
//	import http from 'k6/http';
//	import sn from 'k6/x/solarnetwork';
//
//	const client = sn.newClient(__ENV.SOLARNETWORK_TOKEN, __ENV.SOLARNETWORK_SECRET, __ENV.SOLARNETWORK_HOST);
//
//	export default function () {
//	  const path = '/solarquery/api/v1/sec/nodes';
//	  http.get(client.url(path, ''), { headers: client.sign('GET', path, '', '', '') });
//	}
package solarnetwork

import (
	"fmt"
	"net/url"

	"go.k6.io/k6/js/modules"

	"github.com/ethanadams/solarnet-synthetics/internal/executor/snws2"
	"github.com/ethanadams/solarnet-synthetics/internal/solarnet"
)

func init() {
	modules.Register("k6/x/solarnetwork", new(SolarNetwork))
}

// SolarNetwork is the k6 extension for SolarNetwork API signing
type SolarNetwork struct{}

// Client signs requests for one token.
type Client struct {
	api    *solarnet.Client
	scheme string
}

// NewClient creates a client. An empty host means data.solarnetwork.net.
func (s *SolarNetwork) NewClient(token, secret, host string) (*Client, error) {
	api, err := solarnet.NewClient(solarnet.Credentials{Token: token, Secret: secret, Host: host})
	if err != nil {
		return nil, err
	}
	return &Client{api: api}, nil
}

// SetScheme switches the scheme used by URL. Empty keeps https.
func (c *Client) SetScheme(scheme string) error {
	switch scheme {
	case "":
	case "http", "https":
		c.scheme = scheme
	default:
		return fmt.Errorf("unsupported scheme %q", scheme)
	}
	return nil
}

// URL returns the absolute URL for path and a raw query string.
func (c *Client) URL(path, query string) string {
	u := c.api.URL(path, nil)
	u.RawQuery = query
	if c.scheme != "" {
		u.Scheme = c.scheme
	}
	return u.String()
}

// Sign returns the headers to send with a request: Accept, Host,
// X-SN-Date and Authorization. body is the exact request body, if any.
// method must be upper case, since the server verifies the method it
// receives.
func (c *Client) Sign(method, path, query, body, accept string) (map[string]string, error) {
	m := solarnet.Method(method)
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %q (use upper case)", solarnet.ErrUnsupportedMethod, method)
	}
	if accept == "" {
		accept = solarnet.DefaultAccept
	}

	var data []byte
	if body != "" {
		data = []byte(body)
	}

	u := url.URL{Path: path, RawQuery: query}
	if u.Path == "" {
		u.Path = "/"
	}
	headers, err := c.api.Signer().Headers(string(m), u.EscapedPath(), u.RawQuery, c.api.Host(),
		snws2.NewSignedHeaders("accept", accept), data)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(headers))
	for name := range headers {
		out[name] = headers.Get(name)
	}
	return out, nil
}

// Token returns the token requests are signed for.
func (c *Client) Token() string {
	return c.api.Signer().Token()
}
