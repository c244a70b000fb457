package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"storj.io/uplink"

	"github.com/ethanadams/solarnet-synthetics/internal/config"
)

// StorjSink archives directly to a Storj satellite with uplink.
type StorjSink struct {
	project *uplink.Project
	bucket  string
	ttl     time.Duration
}

// NewStorjSink opens a project from the access grant and ensures the
// bucket exists.
func NewStorjSink(ctx context.Context, cfg config.ArchiveConfig) (*StorjSink, error) {
	if cfg.Storj.AccessGrant == "" {
		return nil, errors.New("access grant is required")
	}

	access, err := uplink.ParseAccess(cfg.Storj.AccessGrant)
	if err != nil {
		return nil, fmt.Errorf("invalid access grant: %w", err)
	}

	project, err := uplink.OpenProject(ctx, access)
	if err != nil {
		return nil, fmt.Errorf("failed to open project: %w", err)
	}

	if _, err := project.EnsureBucket(ctx, cfg.Bucket); err != nil {
		_ = project.Close()
		return nil, fmt.Errorf("failed to ensure bucket %s: %w", cfg.Bucket, err)
	}

	return &StorjSink{
		project: project,
		bucket:  cfg.Bucket,
		ttl:     cfg.TTL(),
	}, nil
}

// Name implements Sink.
func (s *StorjSink) Name() string {
	return config.ArchiveBackendStorj
}

// Put implements Sink. Objects expire after the configured TTL.
func (s *StorjSink) Put(ctx context.Context, key string, data []byte, contentType string) error {
	var opts *uplink.UploadOptions
	if s.ttl > 0 {
		opts = &uplink.UploadOptions{Expires: time.Now().Add(s.ttl)}
	}

	upload, err := s.project.UploadObject(ctx, s.bucket, key, opts)
	if err != nil {
		return fmt.Errorf("failed to start upload of %s: %w", key, err)
	}
	defer upload.Abort()

	if err := upload.SetCustomMetadata(ctx, uplink.CustomMetadata{"content-type": contentType}); err != nil {
		return fmt.Errorf("failed to set metadata on %s: %w", key, err)
	}
	if _, err := io.Copy(upload, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return upload.Commit()
}

// Close closes the Storj project connection
func (s *StorjSink) Close() error {
	if s.project == nil {
		return nil
	}
	return s.project.Close()
}

var _ Sink = (*StorjSink)(nil)
