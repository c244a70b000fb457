package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ethanadams/solarnet-synthetics/internal/logging"
)

const namespace = "snsynth"

// Collector manages Prometheus metrics for SolarNetwork probes
type Collector struct {
	// Probe execution metrics
	probeRunsTotal   *prometheus.CounterVec
	probeRunDuration *prometheus.HistogramVec

	// API call metrics
	apiRequests   *prometheus.CounterVec
	authFailures  *prometheus.CounterVec
	responseBytes *prometheus.CounterVec

	// Granular HTTP timing metrics
	httpTiming *prometheus.HistogramVec

	// Live/instant metrics (Gauges for real-time visibility)
	lastDuration  *prometheus.GaugeVec
	lastHTTPPhase *prometheus.GaugeVec

	// Response archive metrics
	archiveOperations *prometheus.CounterVec
	archiveBytes      *prometheus.CounterVec
}

// HTTPTimings holds detailed HTTP timing breakdown
type HTTPTimings struct {
	DNSLookup    time.Duration
	TCPConnect   time.Duration
	TLSHandshake time.Duration
	TTFB         time.Duration // Time to first byte (from request sent to first response byte)
	Transfer     time.Duration // Data transfer time
	Total        time.Duration
}

// NewCollector creates a collector registered with reg. A nil reg leaves
// the metrics unregistered.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		probeRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probe_runs_total",
				Help:      "Total number of probe runs",
			},
			[]string{"test", "step", "executor", "status"},
		),
		probeRunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "probe_duration_seconds",
				Help:      "Duration of probe runs and steps",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"test", "step", "executor"},
		),
		apiRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "SolarNetwork API requests by response status",
			},
			[]string{"test", "step", "method", "code"},
		),
		authFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_failures_total",
				Help:      "Requests rejected by SolarNetwork authentication (401/403)",
			},
			[]string{"test", "step"},
		),
		responseBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "response_bytes_total",
				Help:      "Response body bytes read from the API",
			},
			[]string{"test", "step", "executor"},
		),
		httpTiming: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_timing_seconds",
				Help:      "Granular HTTP timing breakdown (sign, dns, connect, tls, ttfb, transfer, total)",
				Buckets:   []float64{0.0001, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"test", "step", "executor", "phase"},
		),
		lastDuration: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_duration_seconds",
				Help:      "Duration of the most recent probe step (live/instant value)",
			},
			[]string{"test", "step", "executor"},
		),
		lastHTTPPhase: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_http_phase_seconds",
				Help:      "Most recent HTTP phase timing (live/instant value)",
			},
			[]string{"test", "step", "executor", "phase"},
		),
		archiveOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archive_operations_total",
				Help:      "Response archive uploads by backend and status",
			},
			[]string{"backend", "status"},
		),
		archiveBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archive_bytes_total",
				Help:      "Bytes written to the response archive",
			},
			[]string{"backend"},
		),
	}
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordTestRun records a probe run. An empty step means the whole test.
func (c *Collector) RecordTestRun(testName, stepName, executor string, success bool, duration time.Duration) {
	c.probeRunsTotal.WithLabelValues(testName, stepName, executor, statusLabel(success)).Inc()
	c.probeRunDuration.WithLabelValues(testName, stepName, executor).Observe(duration.Seconds())
	if duration > 0 {
		c.lastDuration.WithLabelValues(testName, stepName, executor).Set(duration.Seconds())
	}
}

// RecordAPIResponse records one API response. 401 and 403 also count as
// authentication failures.
func (c *Collector) RecordAPIResponse(testName, stepName, executor, method string, statusCode int, bytes int64) {
	c.apiRequests.WithLabelValues(testName, stepName, method, strconv.Itoa(statusCode)).Inc()
	if bytes > 0 {
		c.responseBytes.WithLabelValues(testName, stepName, executor).Add(float64(bytes))
	}
	if statusCode == 401 || statusCode == 403 {
		c.authFailures.WithLabelValues(testName, stepName).Inc()
		logging.Debug("    RecordAPIResponse auth failure: test=%s step=%s status=%d", testName, stepName, statusCode)
	}
}

// RecordHTTPTiming records granular HTTP timing breakdown
func (c *Collector) RecordHTTPTiming(testName, stepName, executor string, timings HTTPTimings) {
	c.RecordHTTPTimingPhase(testName, stepName, executor, "dns", timings.DNSLookup)
	c.RecordHTTPTimingPhase(testName, stepName, executor, "connect", timings.TCPConnect)
	c.RecordHTTPTimingPhase(testName, stepName, executor, "tls", timings.TLSHandshake)
	c.RecordHTTPTimingPhase(testName, stepName, executor, "ttfb", timings.TTFB)
	c.RecordHTTPTimingPhase(testName, stepName, executor, "transfer", timings.Transfer)
	c.RecordHTTPTimingPhase(testName, stepName, executor, "total", timings.Total)
}

// RecordHTTPTimingPhase records a single timing phase (e.g., "sign")
func (c *Collector) RecordHTTPTimingPhase(testName, stepName, executor, phase string, duration time.Duration) {
	if duration > 0 {
		c.httpTiming.WithLabelValues(testName, stepName, executor, phase).Observe(duration.Seconds())
		c.lastHTTPPhase.WithLabelValues(testName, stepName, executor, phase).Set(duration.Seconds())
	}
}

// RecordArchive records an archive upload.
func (c *Collector) RecordArchive(backend string, bytes int64, success bool) {
	c.archiveOperations.WithLabelValues(backend, statusLabel(success)).Inc()
	if success {
		c.archiveBytes.WithLabelValues(backend).Add(float64(bytes))
	}
}
