package solarnet

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrAuthentication is matched by APIErrors for 401 and 403 responses,
// which SolarNetwork returns when a signature does not verify.
var ErrAuthentication = errors.New("authentication failed")

// Envelope is the standard SolarNetwork response wrapper.
type Envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// DecodeEnvelope decodes a response body.
func DecodeEnvelope(r io.Reader) (*Envelope, error) {
	var env Envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode response envelope: %w", err)
	}
	return &env, nil
}

// DecodeData unmarshals the envelope payload into v.
func (e *Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// APIError is returned by RequestChecked for non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("solarnetwork: HTTP %d", e.StatusCode)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Unwrap maps authentication failures to ErrAuthentication.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrAuthentication
	}
	return nil
}
