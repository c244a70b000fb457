package snws2

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	exampleSignature = "21a668f9b2489fcd038ee6d5c2f9d2392ffbedb9ed653ad488ccabaadabac112"
	postSignature    = "e6397a55dff327819f7d08f1e90309ca2dd7edc1ec5b2ae860c25f7459e59b43"
	latin1Signature  = "e36c7bcf6c7cab02659cfe10a36fd7296bf5b9b20b72c593e2f62b1429f11006"
)

func TestSigningMessage(t *testing.T) {
	canonical, err := CanonicalRequest("GET", "/api/v1/data", "foo=1&bar=2", exampleHeaders(), nil)
	require.NoError(t, err)

	msg, err := SigningMessage(NewSigningTime(testTime), canonical)
	require.NoError(t, err)

	lines := strings.Split(msg, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, Algorithm, lines[0])
	assert.Equal(t, "20240204T123045Z", lines[1])
	assert.Equal(t, "8d42bbec5fb2f1feab5e3ca5a2d9e662c68fcbf025fbb39fab61a8b38c351f9b", lines[2])
}

func TestSigningMessageHashesLatin1(t *testing.T) {
	headers := NewSignedHeaders(
		"host", "api.example.com",
		"x-sn-date", testDateHeader,
		"x-sn-note", "café",
	)
	canonical, err := CanonicalRequest("GET", "/api/v1/data", "", headers, nil)
	require.NoError(t, err)

	msg, err := SigningMessage(NewSigningTime(testTime), canonical)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(msg, "\nb5244e16f348268aa1506e9b4e63d53ba5ba70a476153a7324122c02cb351441"))
}

func TestSign(t *testing.T) {
	key, err := DeriveSigningKey("test_secret", NewSigningTime(testTime), RequestScope)
	require.NoError(t, err)

	msg := Algorithm + "\n20240204T123045Z\n8d42bbec5fb2f1feab5e3ca5a2d9e662c68fcbf025fbb39fab61a8b38c351f9b"
	sig := Sign(msg, key)

	assert.Regexp(t, hexPattern, sig)
	assert.Equal(t, exampleSignature, sig)
	assert.Equal(t, sig, Sign(msg, key))
}

func TestAuthorizationHeader(t *testing.T) {
	got := AuthorizationHeader("tok", []string{"x-sn-date", "host"}, "abc")
	assert.Equal(t, "SNWS2 Credential=tok,SignedHeaders=x-sn-date;host,Signature=abc", got)
}

func TestAuthHeader(t *testing.T) {
	cases := []struct {
		name     string
		method   string
		path     string
		query    string
		headers  *SignedHeaders
		body     []byte
		expected string
	}{
		{
			name:     "example GET",
			method:   "GET",
			path:     "/api/v1/data",
			query:    "foo=1&bar=2",
			headers:  exampleHeaders(),
			expected: "SNWS2 Credential=test_token,SignedHeaders=host;x-sn-date,Signature=" + exampleSignature,
		},
		{
			name:   "POST with JSON body",
			method: "POST",
			path:   "/solaruser/api/v1/sec/instr/add",
			query:  "nodeId=42",
			headers: NewSignedHeaders(
				"accept", "application/json",
				"content-type", "application/json",
				"host", "data.solarnetwork.net",
				"x-sn-date", testDateHeader,
			),
			body:     []byte(`{"topic":"Test"}`),
			expected: "SNWS2 Credential=test_token,SignedHeaders=accept;content-type;host;x-sn-date,Signature=" + postSignature,
		},
		{
			name:   "insertion order kept in SignedHeaders",
			method: "POST",
			path:   "/solaruser/api/v1/sec/instr/add",
			query:  "nodeId=42",
			headers: NewSignedHeaders(
				"host", "data.solarnetwork.net",
				"x-sn-date", testDateHeader,
				"accept", "application/json",
				"content-type", "application/json",
			),
			body:     []byte(`{"topic":"Test"}`),
			expected: "SNWS2 Credential=test_token,SignedHeaders=host;x-sn-date;accept;content-type,Signature=" + postSignature,
		},
		{
			name:   "latin-1 header value",
			method: "GET",
			path:   "/api/v1/data",
			headers: NewSignedHeaders(
				"host", "api.example.com",
				"x-sn-date", testDateHeader,
				"x-sn-note", "café",
			),
			expected: "SNWS2 Credential=test_token,SignedHeaders=host;x-sn-date;x-sn-note,Signature=" + latin1Signature,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := AuthHeader("test_token", "test_secret", tc.method, tc.path, tc.query, tc.headers, tc.body, testTime)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestAuthHeaderDeterministic(t *testing.T) {
	first, err := AuthHeader("test_token", "test_secret", "GET", "/api/v1/data", "foo=1&bar=2", exampleHeaders(), nil, testTime)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := AuthHeader("test_token", "test_secret", "GET", "/api/v1/data", "bar=2&foo=1", exampleHeaders(), nil, testTime.Add(500*time.Millisecond))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestAuthHeaderSensitivity(t *testing.T) {
	base, err := AuthHeader("test_token", "test_secret", "GET", "/api/v1/data", "foo=1", exampleHeaders(), nil, testTime)
	require.NoError(t, err)

	variants := map[string]func() (string, error){
		"method": func() (string, error) {
			return AuthHeader("test_token", "test_secret", "POST", "/api/v1/data", "foo=1", exampleHeaders(), nil, testTime)
		},
		"path": func() (string, error) {
			return AuthHeader("test_token", "test_secret", "GET", "/api/v1/datum", "foo=1", exampleHeaders(), nil, testTime)
		},
		"query": func() (string, error) {
			return AuthHeader("test_token", "test_secret", "GET", "/api/v1/data", "foo=2", exampleHeaders(), nil, testTime)
		},
		"body": func() (string, error) {
			return AuthHeader("test_token", "test_secret", "GET", "/api/v1/data", "foo=1", exampleHeaders(), []byte("x"), testTime)
		},
		"secret": func() (string, error) {
			return AuthHeader("test_token", "other_secret", "GET", "/api/v1/data", "foo=1", exampleHeaders(), nil, testTime)
		},
		"timestamp": func() (string, error) {
			return AuthHeader("test_token", "test_secret", "GET", "/api/v1/data", "foo=1", exampleHeaders(), nil, testTime.Add(time.Second))
		},
	}

	baseSig := base[strings.LastIndex(base, "=")+1:]
	for name, fn := range variants {
		t.Run(name, func(t *testing.T) {
			got, err := fn()
			require.NoError(t, err)
			assert.NotEqual(t, baseSig, got[strings.LastIndex(got, "=")+1:])
		})
	}
}

func TestAuthHeaderEncodingErrors(t *testing.T) {
	cases := []struct {
		name      string
		secret    string
		headers   *SignedHeaders
		component string
	}{
		{
			name:      "euro sign in header value",
			secret:    "test_secret",
			headers:   NewSignedHeaders("host", "api.example.com", "x-sn-note", "5€"),
			component: "header x-sn-note",
		},
		{
			name:      "cjk in header value",
			secret:    "test_secret",
			headers:   NewSignedHeaders("host", "api.example.com", "x-sn-note", "日本"),
			component: "header x-sn-note",
		},
		{
			name:      "secret outside latin-1",
			secret:    "s€cret",
			headers:   exampleHeaders(),
			component: "secret",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := AuthHeader("test_token", tc.secret, "GET", "/api/v1/data", "", tc.headers, nil, testTime)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrEncoding)

			var encErr *EncodingError
			require.True(t, errors.As(err, &encErr))
			assert.Equal(t, tc.component, encErr.Component)
			assert.NotContains(t, err.Error(), tc.secret)
		})
	}
}

func TestAuthHeaderMalformedQuery(t *testing.T) {
	_, err := AuthHeader("test_token", "test_secret", "GET", "/", "a=%zz", exampleHeaders(), nil, testTime)
	assert.ErrorIs(t, err, ErrMalformedQuery)
}
