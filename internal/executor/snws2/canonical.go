package snws2

import (
	"sort"
	"strings"
)

// SignedHeaders is the set of headers covered by a signature. Names keep
// the order they were first set in; the canonical request sorts them.
// Names are used exactly as given and are lowercase by convention.
//
// The zero value is an empty set ready to use.
type SignedHeaders struct {
	names  []string
	values map[string]string
}

// NewSignedHeaders builds a set from name, value pairs. A trailing name
// without a value is ignored.
func NewSignedHeaders(pairs ...string) *SignedHeaders {
	h := &SignedHeaders{}
	for i := 0; i+1 < len(pairs); i += 2 {
		h.Set(pairs[i], pairs[i+1])
	}
	return h
}

// Set adds a header or replaces the value of an existing one in place.
func (h *SignedHeaders) Set(name, value string) {
	if h.values == nil {
		h.values = make(map[string]string)
	}
	if _, ok := h.values[name]; !ok {
		h.names = append(h.names, name)
	}
	h.values[name] = value
}

// Get returns the value of name.
func (h *SignedHeaders) Get(name string) (string, bool) {
	if h == nil {
		return "", false
	}
	v, ok := h.values[name]
	return v, ok
}

// Len returns the number of headers.
func (h *SignedHeaders) Len() int {
	if h == nil {
		return 0
	}
	return len(h.names)
}

// Names returns header names in insertion order.
func (h *SignedHeaders) Names() []string {
	if h == nil {
		return nil
	}
	return append([]string(nil), h.names...)
}

// SortedNames returns header names in ascending order.
func (h *SignedHeaders) SortedNames() []string {
	names := h.Names()
	sort.Strings(names)
	return names
}

// InSortedOrder reports whether insertion order already matches the
// canonical order.
func (h *SignedHeaders) InSortedOrder() bool {
	if h == nil {
		return true
	}
	return sort.StringsAreSorted(h.names)
}

// CanonicalRequest creates the canonical request string:
//
//	METHOD
//	PATH
//	CANONICAL_QUERY
//	name:value (one line per header, sorted by name)
//	SORTED_NAMES joined by ";"
//	HEX(SHA256(BODY))
//
// Method and path are used verbatim.
func CanonicalRequest(method, path, rawQuery string, headers *SignedHeaders, body []byte) (string, error) {
	query, err := CanonicalQuery(rawQuery)
	if err != nil {
		return "", err
	}

	names := headers.SortedNames()

	var b strings.Builder
	b.WriteString(method)
	b.WriteByte('\n')
	b.WriteString(path)
	b.WriteByte('\n')
	b.WriteString(query)
	b.WriteByte('\n')
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(headers.values[name])
		b.WriteByte('\n')
	}
	b.WriteString(strings.Join(names, ";"))
	b.WriteByte('\n')
	b.WriteString(HashBody(body))

	return b.String(), nil
}
