package snws2

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/aws/smithy-go/encoding/httpbinding"
)

// CanonicalQuery creates the canonical query string.
//
// Keys are sorted by their decoded value; values sharing a key stay in their
// original relative order. Keys and values are re-encoded escaping every byte
// outside A-Z a-z 0-9 "-._~", so a space becomes %20 and "/" becomes %2F.
// Pairs with an empty value are dropped and a pair with no "=" is malformed.
func CanonicalQuery(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}

	for _, pair := range strings.Split(raw, "&") {
		if pair != "" && !strings.Contains(pair, "=") {
			return "", fmt.Errorf("%w: pair %q has no value", ErrMalformedQuery, pair)
		}
	}

	values, err := url.ParseQuery(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedQuery, err)
	}

	keys := make([]string, 0, len(values))
	for key, vs := range values {
		for _, v := range vs {
			if v != "" {
				keys = append(keys, key)
				break
			}
		}
	}
	if len(keys) == 0 {
		return "", nil
	}
	sort.Strings(keys)

	var b strings.Builder
	b.Grow(len(raw) + len(raw)/2)
	for _, key := range keys {
		escapedKey := escape(key)
		for _, value := range values[key] {
			if value == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(escapedKey)
			b.WriteByte('=')
			b.WriteString(escape(value))
		}
	}
	return b.String(), nil
}

// A space becomes %20. The reference client's quote_plus sends "+", so check
// queries with spaces against the live API.
func escape(s string) string {
	return httpbinding.EscapePath(s, true)
}
