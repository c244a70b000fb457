package solarnet

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnsupportedMethod reports an HTTP method outside the supported set.
var ErrUnsupportedMethod = errors.New("unsupported HTTP method")

// Method is an HTTP verb accepted by the SolarNetwork API.
type Method string

const (
	MethodGet     Method = http.MethodGet
	MethodPost    Method = http.MethodPost
	MethodPut     Method = http.MethodPut
	MethodDelete  Method = http.MethodDelete
	MethodPatch   Method = http.MethodPatch
	MethodHead    Method = http.MethodHead
	MethodOptions Method = http.MethodOptions
)

// Methods lists every supported method.
var Methods = []Method{
	MethodGet,
	MethodPost,
	MethodPut,
	MethodDelete,
	MethodPatch,
	MethodHead,
	MethodOptions,
}

// ParseMethod accepts a method name in any case.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMethod, s)
	}
	return m, nil
}

// Valid reports whether m is one of Methods.
func (m Method) Valid() bool {
	for _, known := range Methods {
		if m == known {
			return true
		}
	}
	return false
}

func (m Method) String() string {
	return string(m)
}

// UnmarshalText lets configuration files name methods in any case.
func (m *Method) UnmarshalText(text []byte) error {
	parsed, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// AllowsBody reports whether requests with this method normally carry a body.
func (m Method) AllowsBody() bool {
	switch m {
	case MethodPost, MethodPut, MethodPatch:
		return true
	default:
		return false
	}
}
