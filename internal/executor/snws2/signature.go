package snws2

import (
	"encoding/hex"
	"strings"
	"time"
)

// SigningMessage creates the message to sign:
//
//	SNWS2-HMAC-SHA256
//	YYYYMMDDTHHMMSSZ
//	HEX(SHA256(canonicalRequest))
//
// The canonical request is hashed as Latin-1 bytes.
func SigningMessage(t SigningTime, canonicalRequest string) (string, error) {
	data, err := latin1("canonical request", canonicalRequest)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{
		Algorithm,
		t.Timestamp(),
		hashSHA256(data),
	}, "\n"), nil
}

// Sign returns the lowercase hex HMAC-SHA256 of message. Signing messages
// are ASCII by construction, so their bytes are used directly.
func Sign(message string, key []byte) string {
	return hex.EncodeToString(hmacSHA256(key, []byte(message)))
}

// AuthorizationHeader formats the Authorization header value. Header names
// are listed in the order given.
func AuthorizationHeader(token string, signedHeaders []string, signature string) string {
	const credential = "Credential="
	const signedHeadersKey = "SignedHeaders="
	const signatureKey = "Signature="

	names := strings.Join(signedHeaders, ";")

	var b strings.Builder
	b.Grow(len(Scheme) + 1 + len(credential) + len(token) + 1 +
		len(signedHeadersKey) + len(names) + 1 + len(signatureKey) + len(signature))
	b.WriteString(Scheme)
	b.WriteByte(' ')
	b.WriteString(credential)
	b.WriteString(token)
	b.WriteByte(',')
	b.WriteString(signedHeadersKey)
	b.WriteString(names)
	b.WriteByte(',')
	b.WriteString(signatureKey)
	b.WriteString(signature)
	return b.String()
}

// AuthHeader signs a request described by its parts and returns the
// Authorization header value. SignedHeaders lists names in insertion order
// while the canonical request sorts them.
func AuthHeader(token, secret, method, path, rawQuery string, headers *SignedHeaders, body []byte, t time.Time) (string, error) {
	st := NewSigningTime(t)
	return assemble(token, method, path, rawQuery, headers, body, st, func() ([]byte, error) {
		return DeriveSigningKey(secret, st, RequestScope)
	})
}

// assemble runs canonical request, key, signing message and signature in
// that order. signingKey lets the Signer substitute its cached day key.
func assemble(token, method, path, rawQuery string, headers *SignedHeaders, body []byte, st SigningTime, signingKey func() ([]byte, error)) (string, error) {
	canonical, err := CanonicalRequest(method, path, rawQuery, headers, body)
	if err != nil {
		return "", err
	}
	if err := checkHeaderEncoding(headers); err != nil {
		return "", err
	}
	key, err := signingKey()
	if err != nil {
		return "", err
	}
	message, err := SigningMessage(st, canonical)
	if err != nil {
		return "", err
	}
	return AuthorizationHeader(token, headers.Names(), Sign(message, key)), nil
}

// checkHeaderEncoding names the first header that cannot be signed, which is
// more useful than a failure on the canonical request as a whole.
func checkHeaderEncoding(headers *SignedHeaders) error {
	for _, name := range headers.Names() {
		if _, err := latin1("header "+name, name); err != nil {
			return err
		}
		value, _ := headers.Get(name)
		if _, err := latin1("header "+name, value); err != nil {
			return err
		}
	}
	return nil
}
