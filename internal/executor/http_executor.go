package executor

import (
	"context"
	"fmt"
	"net/http/httptrace"
	"time"

	"github.com/ethanadams/solarnet-synthetics/internal/archive"
	"github.com/ethanadams/solarnet-synthetics/internal/config"
	"github.com/ethanadams/solarnet-synthetics/internal/logging"
	"github.com/ethanadams/solarnet-synthetics/internal/metrics"
	"github.com/ethanadams/solarnet-synthetics/internal/solarnet"
)

const executorNameHTTP = config.ExecutorHTTP

// HTTPExecutor runs probes in-process with the signing client.
type HTTPExecutor struct {
	client   *solarnet.Client
	archiver archiver
	metrics  *metrics.Collector
}

// NewHTTP creates an HTTP executor. sink may be nil.
func NewHTTP(client *solarnet.Client, mc *metrics.Collector, sink archive.Sink, archivePrefix string) *HTTPExecutor {
	return &HTTPExecutor{
		client:   client,
		archiver: archiver{sink: sink, prefix: archivePrefix, metrics: mc},
		metrics:  mc,
	}
}

// RunTest executes an HTTP test (handles single or multi-step).
func (e *HTTPExecutor) RunTest(ctx context.Context, test *config.Test) error {
	logging.Info("Running HTTP test: %s", test.Name)
	testStart := time.Now()

	_, err := runSteps(ctx, "HTTP", test, e.runStep)
	duration := time.Since(testStart)
	if err != nil {
		e.metrics.RecordTestRun(test.Name, "", executorNameHTTP, false, duration)
		return err
	}

	logging.Info("HTTP test %s completed successfully in %v", test.Name, duration)
	e.metrics.RecordTestRun(test.Name, "", executorNameHTTP, true, duration)
	return nil
}

// runStep executes a single HTTP test step.
func (e *HTTPExecutor) runStep(ctx context.Context, test *config.Test, step *config.TestStep, runID string) error {
	if err := applyStepJitter(ctx, test.Name, step); err != nil {
		return err
	}

	stepStart := time.Now()
	ctx, cancel := context.WithTimeout(ctx, step.TimeoutDuration())
	defer cancel()

	err := e.call(ctx, test, step, runID, stepStart)
	duration := time.Since(stepStart)

	if err != nil {
		logging.Warn("    HTTP step %s failed: %v", step.Name, err)
		e.metrics.RecordTestRun(test.Name, step.Name, executorNameHTTP, false, duration)
		return fmt.Errorf("step execution failed: %w", err)
	}

	e.metrics.RecordTestRun(test.Name, step.Name, executorNameHTTP, true, duration)
	return nil
}

func (e *HTTPExecutor) call(ctx context.Context, test *config.Test, step *config.TestStep, runID string, started time.Time) error {
	signStart := time.Now()
	req, err := e.client.Prepare(ctx, step.GetMethod(), step.Path, step.Params.Values(), step.Body, step.Accept)
	if err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}
	signDuration := time.Since(signStart)

	tracer := newHTTPTimingTracer()
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), tracer.trace()))

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, truncated, err := readBody(resp.Body, step.GetMaxBody().Int64())
	timings := tracer.toMetrics(time.Now())

	e.metrics.RecordHTTPTiming(test.Name, step.Name, executorNameHTTP, timings)
	e.metrics.RecordHTTPTimingPhase(test.Name, step.Name, executorNameHTTP, "sign", signDuration)
	e.metrics.RecordAPIResponse(test.Name, step.Name, executorNameHTTP, req.Method, resp.StatusCode, int64(len(body)))

	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	e.archiver.store(ctx, test, step, runID, started, contentType, body)

	logging.Debug("    HTTP %s %s -> %d (%d bytes, truncated=%t) in %v (sign=%v, dns=%v, tls=%v, ttfb=%v)",
		req.Method, req.URL.Path, resp.StatusCode, len(body), truncated, timings.Total, signDuration,
		timings.DNSLookup, timings.TLSHandshake, timings.TTFB)

	return checkResponse(step, resp.StatusCode, contentType, body, truncated)
}

var _ TestExecutor = (*HTTPExecutor)(nil)
