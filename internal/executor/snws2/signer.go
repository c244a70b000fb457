package snws2

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethanadams/solarnet-synthetics/internal/logging"
)

// Credentials holds a SolarNetwork security token and its secret.
type Credentials struct {
	Token  string
	Secret string
}

// String redacts the secret.
func (c Credentials) String() string {
	return fmt.Sprintf("{Token:%s Secret:<redacted>}", c.Token)
}

// GoString redacts the secret for %#v.
func (c Credentials) GoString() string {
	return fmt.Sprintf("snws2.Credentials{Token:%q, Secret:<redacted>}", c.Token)
}

// Signer signs requests for one token, caching the signing key for a day to
// avoid repeated HMAC computation. A Signer is safe for concurrent use.
type Signer struct {
	creds Credentials
	keys  keyCache
	now   func() time.Time
}

// SignerOption configures a Signer.
type SignerOption func(*Signer)

// WithClock overrides the time source used by Sign and Headers.
func WithClock(now func() time.Time) SignerOption {
	return func(s *Signer) {
		s.now = now
	}
}

// NewSigner creates a signer that caches the signing key.
func NewSigner(creds Credentials, opts ...SignerOption) (*Signer, error) {
	if creds.Token == "" || creds.Secret == "" {
		return nil, ErrMissingCredentials
	}
	s := &Signer{creds: creds, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Token returns the token requests are signed for.
func (s *Signer) Token() string {
	return s.creds.Token
}

// String identifies the signer by token only.
func (s *Signer) String() string {
	return fmt.Sprintf("snws2.Signer{Token:%s}", s.creds.Token)
}

// GoString keeps %#v from printing the unexported credentials.
func (s *Signer) GoString() string {
	return s.String()
}

// Sign signs req at the current time. See SignAt.
func (s *Signer) Sign(req *http.Request, body []byte, headerNames ...string) error {
	return s.SignAt(req, body, s.now(), headerNames...)
}

// SignAt sets the X-SN-Date and Authorization headers on req.
//
// The signed headers are the listed header names (values read from req) in
// the order given, followed by host and x-sn-date unless already listed. body
// must be the exact bytes that will be sent.
func (s *Signer) SignAt(req *http.Request, body []byte, t time.Time, headerNames ...string) error {
	st := NewSigningTime(t)

	host := req.Host
	if host == "" {
		host = req.URL.Host
	}
	req.Host = host
	req.Header.Set(DateHeader, st.DateHeader())

	headers := &SignedHeaders{}
	for _, name := range headerNames {
		name = strings.ToLower(name)
		switch name {
		case HostHeader:
			headers.Set(name, host)
		case DateHeader:
			headers.Set(name, st.DateHeader())
		default:
			headers.Set(name, req.Header.Get(name))
		}
	}
	addRequired(headers, host, st)

	path := req.URL.EscapedPath()
	if path == "" {
		path = "/"
	}

	auth, err := s.assemble(req.Method, path, req.URL.RawQuery, headers, body, st)
	if err != nil {
		return fmt.Errorf("failed to sign %s %s: %w", req.Method, path, err)
	}
	req.Header.Set(HeaderAuthorization, auth)
	return nil
}

// Headers returns the Authorization, X-SN-Date and Host headers, plus any
// extra signed headers, for a request that is not an *http.Request, such as
// a generated curl command.
func (s *Signer) Headers(method, path, rawQuery, host string, extra *SignedHeaders, body []byte) (http.Header, error) {
	st := NewSigningTime(s.now())

	headers := &SignedHeaders{}
	for _, name := range extra.Names() {
		value, _ := extra.Get(name)
		headers.Set(name, value)
	}
	addRequired(headers, host, st)

	auth, err := s.assemble(method, path, rawQuery, headers, body, st)
	if err != nil {
		return nil, err
	}

	out := make(http.Header, headers.Len()+1)
	for _, name := range headers.Names() {
		value, _ := headers.Get(name)
		out.Set(name, value)
	}
	out.Set(HeaderAuthorization, auth)
	return out, nil
}

func (s *Signer) assemble(method, path, rawQuery string, headers *SignedHeaders, body []byte, st SigningTime) (string, error) {
	if !headers.InSortedOrder() {
		logging.Debug("snws2: signed headers declared as %s, canonical order is %s",
			strings.Join(headers.Names(), ";"), strings.Join(headers.SortedNames(), ";"))
	}
	return assemble(s.creds.Token, method, path, rawQuery, headers, body, st, func() ([]byte, error) {
		return s.keys.get(s.creds.Secret, st)
	})
}

func addRequired(headers *SignedHeaders, host string, st SigningTime) {
	if _, ok := headers.Get(HostHeader); !ok {
		headers.Set(HostHeader, host)
	}
	if _, ok := headers.Get(DateHeader); !ok {
		headers.Set(DateHeader, st.DateHeader())
	}
}
