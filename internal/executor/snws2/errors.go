package snws2

import (
	"errors"
	"fmt"
)

var (
	// ErrEncoding is matched by every EncodingError.
	ErrEncoding = errors.New("text not representable in ISO-8859-1")

	// ErrMalformedQuery reports a query string that cannot be canonicalized.
	ErrMalformedQuery = errors.New("malformed query string")

	// ErrMissingCredentials reports an empty token or secret.
	ErrMissingCredentials = errors.New("token and secret are required")
)

// EncodingError reports which part of a request could not be mapped to
// Latin-1 bytes. It never carries the offending value.
type EncodingError struct {
	Component string
	Err       error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("snws2: %s: %v", e.Component, ErrEncoding)
}

// Unwrap exposes both ErrEncoding and the underlying transform error.
func (e *EncodingError) Unwrap() []error {
	return []error{ErrEncoding, e.Err}
}
