// Package solarnettest provides a fake SolarNetwork API that verifies SNWS2
// signatures the way the real service does.
package solarnettest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethanadams/solarnet-synthetics/internal/executor/snws2"
)

// Request is what the server received.
type Request struct {
	Method        string
	Path          string
	RawQuery      string
	Token         string
	SignedHeaders string
	Accept        string
	ContentType   string
	Body          []byte
	Verified      bool
}

// Server is an httptest.Server that answers 403 with a SolarNetwork error
// envelope when a signature does not verify, and otherwise passes the
// request to its handler.
type Server struct {
	*httptest.Server

	secret  string
	handler http.Handler

	mu       sync.Mutex
	requests []Request
}

// NewServer starts a server that verifies signatures made with secret. A
// nil handler answers every verified request with
// {"success":true,"data":{"path":<request path>}}. The server is closed
// when the test ends.
func NewServer(t testing.TB, secret string, handler http.Handler) *Server {
	t.Helper()

	s := &Server{secret: secret, handler: handler}
	if s.handler == nil {
		s.handler = http.HandlerFunc(echoPath)
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Host returns host:port for use as the client host.
func (s *Server) Host() string {
	u, err := url.Parse(s.URL)
	if err != nil {
		return ""
	}
	return u.Host
}

// Requests returns a copy of every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	fields := ParseAuthorization(r.Header.Get(snws2.HeaderAuthorization))
	verified := s.verify(r, fields, body)

	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method:        r.Method,
		Path:          r.URL.Path,
		RawQuery:      r.URL.RawQuery,
		Token:         fields["Credential"],
		SignedHeaders: fields["SignedHeaders"],
		Accept:        r.Header.Get("Accept"),
		ContentType:   r.Header.Get("Content-Type"),
		Body:          body,
		Verified:      verified,
	})
	s.mu.Unlock()

	if !verified {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"success":false,"code":"SNWS2.0001","message":"Signature mismatch"}`)
		return
	}

	r.Body = io.NopCloser(strings.NewReader(string(body)))
	s.handler.ServeHTTP(w, r)
}

func (s *Server) verify(r *http.Request, fields map[string]string, body []byte) bool {
	if fields["Credential"] == "" || fields["SignedHeaders"] == "" {
		return false
	}
	date, err := time.Parse(http.TimeFormat, r.Header.Get(snws2.DateHeader))
	if err != nil {
		return false
	}

	headers := &snws2.SignedHeaders{}
	for _, name := range strings.Split(fields["SignedHeaders"], ";") {
		if name == snws2.HostHeader {
			headers.Set(name, r.Host)
			continue
		}
		headers.Set(name, r.Header.Get(name))
	}

	expected, err := snws2.AuthHeader(fields["Credential"], s.secret, r.Method, r.URL.EscapedPath(), r.URL.RawQuery, headers, body, date)
	return err == nil && expected == r.Header.Get(snws2.HeaderAuthorization)
}

// ParseAuthorization splits an SNWS2 Authorization value into its
// Credential, SignedHeaders and Signature fields.
func ParseAuthorization(value string) map[string]string {
	out := make(map[string]string, 3)
	value, ok := strings.CutPrefix(value, snws2.Scheme+" ")
	if !ok {
		return out
	}
	for _, part := range strings.Split(value, ",") {
		k, v, _ := strings.Cut(part, "=")
		out[k] = v
	}
	return out
}

func echoPath(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"success":true,"data":{"path":%q}}`, r.URL.Path)
}
