// Package archive stores probe response bodies in object storage so failed
// or surprising API responses can be inspected later.
package archive

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/ethanadams/solarnet-synthetics/internal/config"
)

// Sink writes objects to a storage backend.
type Sink interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Close() error
}

// New opens the sink selected by cfg.Backend, or returns nil when
// archiving is disabled.
func New(ctx context.Context, cfg config.ArchiveConfig) (Sink, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case config.ArchiveBackendS3:
		return NewS3Sink(ctx, cfg)
	case config.ArchiveBackendStorj:
		return NewStorjSink(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
}

// ObjectKey builds <prefix>/<test>/<YYYY/MM/DD>/<runID>-<step>.<ext>. The
// date is taken in UTC and the extension follows contentType.
func ObjectKey(prefix, test, step, runID string, t time.Time, contentType string) string {
	name := fmt.Sprintf("%s-%s.%s", runID, keySegment(step), Extension(contentType))
	parts := []string{keySegment(test), t.UTC().Format("2006/01/02"), name}
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append([]string{p}, parts...)
	}
	return path.Join(parts...)
}

// Extension maps a response media type to a file extension.
func Extension(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "bin"
	}
	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		return "json"
	case mediaType == "text/csv":
		return "csv"
	case mediaType == "application/xml" || mediaType == "text/xml":
		return "xml"
	case strings.HasPrefix(mediaType, "text/"):
		return "txt"
	default:
		return "bin"
	}
}

// keySegment keeps a name from introducing extra path levels.
func keySegment(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '-'
		case r == ' ' || r == '\t':
			return '_'
		default:
			return r
		}
	}, strings.TrimSpace(s))
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}
