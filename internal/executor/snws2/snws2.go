// Package snws2 provides SolarNetwork API authentication scheme V2 (SNWS2)
// request signing.
//
// See https://github.com/SolarNetwork/solarnetwork/wiki/SolarNet-API-authentication-scheme-V2
package snws2

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

const (
	// Algorithm is the first line of every signing message.
	Algorithm = "SNWS2-HMAC-SHA256"

	// Scheme prefixes the Authorization header value.
	Scheme = "SNWS2"

	// RequestScope is the literal the day key is scoped to.
	RequestScope = "snws2_request"

	// EmptyBodySHA256 is the hex SHA-256 of an empty body.
	EmptyBodySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	// Header names as they appear in the canonical request.
	HostHeader = "host"
	DateHeader = "x-sn-date"

	// HeaderAuthorization is the HTTP header carrying the signature.
	HeaderAuthorization = "Authorization"

	keyPrefix        = "SNWS2"
	timestampFormat  = "20060102T150405Z"
	dateStampFormat  = "20060102"
	dateHeaderFormat = "Mon, 02 Jan 2006 15:04:05 GMT"
)

// SigningTime is the single instant every rendering in a signature derives from.
type SigningTime struct {
	time.Time
}

// NewSigningTime converts t to UTC with second precision.
func NewSigningTime(t time.Time) SigningTime {
	return SigningTime{Time: t.UTC().Truncate(time.Second)}
}

// DateHeader renders the X-SN-Date header value, e.g. "Sun, 04 Feb 2024 12:30:45 GMT".
func (t SigningTime) DateHeader() string {
	return t.Time.Format(dateHeaderFormat)
}

// Timestamp renders the compact ISO-8601 form used in the signing message.
func (t SigningTime) Timestamp() string {
	return t.Time.Format(timestampFormat)
}

// DateStamp renders the YYYYMMDD form the signing key is scoped to.
func (t SigningTime) DateStamp() string {
	return t.Time.Format(dateStampFormat)
}

// hashSHA256 computes the SHA256 hash of data and returns hex string.
func hashSHA256(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// HashBody returns the lowercase hex SHA-256 of a request body.
func HashBody(body []byte) string {
	if len(body) == 0 {
		return EmptyBodySHA256
	}
	return hashSHA256(body)
}
