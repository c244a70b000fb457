package main

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/ethanadams/solarnet-synthetics/internal/executor/snws2"
	"github.com/ethanadams/solarnet-synthetics/internal/solarnet"
)

type request struct {
	Scheme string
	Host   string
	Method string
	Path   string
	Query  string
	Accept string
	Data   string
}

// buildCommand signs r and renders it as a multi-line curl command.
func buildCommand(signer *snws2.Signer, r request) (string, error) {
	method, err := solarnet.ParseMethod(r.Method)
	if err != nil {
		return "", err
	}
	if r.Path == "" {
		r.Path = "/"
	}
	if r.Accept == "" {
		r.Accept = solarnet.DefaultAccept
	}

	u := url.URL{Scheme: r.Scheme, Host: r.Host, Path: r.Path, RawQuery: r.Query}

	var body []byte
	if r.Data != "" {
		body = []byte(r.Data)
	}

	headers, err := signer.Headers(string(method), u.EscapedPath(), u.RawQuery, r.Host,
		snws2.NewSignedHeaders("accept", r.Accept), body)
	if err != nil {
		return "", err
	}

	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "curl -sS -X %s \\\n", method)
	for _, name := range names {
		fmt.Fprintf(&b, "  -H %s \\\n", shellQuote(name+": "+headers.Get(name)))
	}
	if body != nil {
		fmt.Fprintf(&b, "  -H %s \\\n", shellQuote("Content-Type: application/json"))
		fmt.Fprintf(&b, "  --data-binary %s \\\n", shellQuote(r.Data))
	}
	fmt.Fprintf(&b, "  %s\n", shellQuote(u.String()))
	return b.String(), nil
}

// shellQuote wraps s in single quotes for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
