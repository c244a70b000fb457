package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector(reg), reg
}

func TestRecordTestRun(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordTestRun("nodes", "list", "http", true, 250*time.Millisecond)
	c.RecordTestRun("nodes", "list", "http", true, 150*time.Millisecond)
	c.RecordTestRun("nodes", "list", "http", false, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.probeRunsTotal.WithLabelValues("nodes", "list", "http", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.probeRunsTotal.WithLabelValues("nodes", "list", "http", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.lastDuration.WithLabelValues("nodes", "list", "http")))
}

func TestRecordAPIResponse(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordAPIResponse("nodes", "list", "http", "GET", 200, 512)
	c.RecordAPIResponse("nodes", "list", "http", "GET", 403, 64)
	c.RecordAPIResponse("nodes", "list", "http", "GET", 500, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.apiRequests.WithLabelValues("nodes", "list", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.apiRequests.WithLabelValues("nodes", "list", "GET", "403")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.authFailures.WithLabelValues("nodes", "list")))
	assert.Equal(t, 576.0, testutil.ToFloat64(c.responseBytes.WithLabelValues("nodes", "list", "http")))
}

func TestRecordHTTPTimingSkipsZeroPhases(t *testing.T) {
	c, reg := newTestCollector(t)

	c.RecordHTTPTiming("nodes", "list", "http", HTTPTimings{
		TTFB:  40 * time.Millisecond,
		Total: 50 * time.Millisecond,
	})
	c.RecordHTTPTimingPhase("nodes", "list", "http", "sign", 20*time.Microsecond)

	count, err := testutil.GatherAndCount(reg, "snsynth_http_timing_seconds")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	assert.Equal(t, 0.05, testutil.ToFloat64(c.lastHTTPPhase.WithLabelValues("nodes", "list", "http", "total")))
}

func TestRecordArchive(t *testing.T) {
	c, reg := newTestCollector(t)

	c.RecordArchive("s3", 1024, true)
	c.RecordArchive("s3", 2048, false)

	expected := `
# HELP snsynth_archive_bytes_total Bytes written to the response archive
# TYPE snsynth_archive_bytes_total counter
snsynth_archive_bytes_total{backend="s3"} 1024
# HELP snsynth_archive_operations_total Response archive uploads by backend and status
# TYPE snsynth_archive_operations_total counter
snsynth_archive_operations_total{backend="s3",status="failure"} 1
snsynth_archive_operations_total{backend="s3",status="success"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"snsynth_archive_bytes_total", "snsynth_archive_operations_total"))
}

func TestNewCollectorSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollector(prometheus.NewRegistry())
		NewCollector(prometheus.NewRegistry())
		NewCollector(nil)
	})
}
