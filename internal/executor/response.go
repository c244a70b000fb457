package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"time"

	"github.com/ethanadams/solarnet-synthetics/internal/archive"
	"github.com/ethanadams/solarnet-synthetics/internal/config"
	"github.com/ethanadams/solarnet-synthetics/internal/logging"
	"github.com/ethanadams/solarnet-synthetics/internal/metrics"
	"github.com/ethanadams/solarnet-synthetics/internal/solarnet"
)

// readBody reads at most limit bytes and reports whether more were available.
func readBody(r io.Reader, limit int64) ([]byte, bool, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if int64(len(data)) > limit {
		return data[:limit], true, err
	}
	return data, false, err
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}

// checkResponse compares a response with what the step expects. For
// successful JSON responses the SolarNetwork envelope must report success.
func checkResponse(step *config.TestStep, statusCode int, contentType string, body []byte, truncated bool) error {
	canDecode := isJSON(contentType) && !truncated && len(body) > 0

	expected := step.GetExpectStatus()
	if statusCode != expected {
		apiErr := &solarnet.APIError{StatusCode: statusCode}
		if canDecode {
			if env, err := solarnet.DecodeEnvelope(bytes.NewReader(body)); err == nil {
				apiErr.Code = env.Code
				apiErr.Message = env.Message
			}
		}
		return fmt.Errorf("expected status %d: %w", expected, apiErr)
	}

	if !canDecode || statusCode < 200 || statusCode > 299 {
		return nil
	}
	env, err := solarnet.DecodeEnvelope(bytes.NewReader(body))
	if err != nil {
		return err
	}
	if !env.Success {
		return fmt.Errorf("API reported failure: %w", &solarnet.APIError{
			StatusCode: statusCode,
			Code:       env.Code,
			Message:    env.Message,
		})
	}
	return nil
}

// archiver stores response bodies for tests that ask for it. A nil sink
// disables it.
type archiver struct {
	sink    archive.Sink
	prefix  string
	metrics *metrics.Collector
}

func (a archiver) store(ctx context.Context, test *config.Test, step *config.TestStep, runID string, at time.Time, contentType string, body []byte) {
	if a.sink == nil || !test.Archive {
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := archive.ObjectKey(a.prefix, test.Name, step.Name, runID, at, contentType)
	err := a.sink.Put(ctx, key, body, contentType)
	a.metrics.RecordArchive(a.sink.Name(), int64(len(body)), err == nil)
	if err != nil {
		logging.Warn("    Archive of %s failed: %v", key, err)
		return
	}
	logging.Debug("    Archived %d bytes to %s:%s", len(body), a.sink.Name(), key)
}
