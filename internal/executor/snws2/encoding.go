package snws2

import (
	"golang.org/x/text/encoding/charmap"
)

// latin1 maps s to ISO-8859-1 bytes. Encoders are stateful, so one is
// created per call.
func latin1(component, s string) ([]byte, error) {
	if isASCII(s) {
		return []byte(s), nil
	}
	b, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, &EncodingError{Component: component, Err: err}
	}
	return b, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
