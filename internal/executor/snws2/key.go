package snws2

import (
	"crypto/hmac"
	"crypto/sha256"
	"sync"
)

// DeriveSigningKey derives the day key using the SNWS2 HMAC chain:
//   - kDate = HMAC-SHA256("SNWS2" + secret, YYYYMMDD)
//   - kSigning = HMAC-SHA256(kDate, scope)
//
// The result is always 32 bytes. The only error is an EncodingError when
// secret or scope is not representable in Latin-1.
func DeriveSigningKey(secret string, t SigningTime, scope string) ([]byte, error) {
	secretBytes, err := latin1("secret", keyPrefix+secret)
	if err != nil {
		return nil, err
	}
	scopeBytes, err := latin1("scope", scope)
	if err != nil {
		return nil, err
	}

	kDate := hmacSHA256(secretBytes, []byte(t.DateStamp()))
	return hmacSHA256(kDate, scopeBytes), nil
}

// hmacSHA256 computes HMAC-SHA256 of data using the given key.
func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// keyCache holds the signing key for a single secret, refreshed when the
// date stamp changes.
type keyCache struct {
	mu        sync.RWMutex
	dateStamp string
	key       []byte
}

func (c *keyCache) get(secret string, t SigningTime) ([]byte, error) {
	dateStamp := t.DateStamp()

	c.mu.RLock()
	if c.dateStamp == dateStamp {
		key := c.key
		c.mu.RUnlock()
		return key, nil
	}
	c.mu.RUnlock()

	key, err := DeriveSigningKey(secret, t, RequestScope)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.dateStamp = dateStamp
	c.key = key
	c.mu.Unlock()

	return key, nil
}
