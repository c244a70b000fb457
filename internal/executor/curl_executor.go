package executor

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethanadams/solarnet-synthetics/internal/archive"
	"github.com/ethanadams/solarnet-synthetics/internal/config"
	"github.com/ethanadams/solarnet-synthetics/internal/executor/snws2"
	"github.com/ethanadams/solarnet-synthetics/internal/logging"
	"github.com/ethanadams/solarnet-synthetics/internal/metrics"
	"github.com/ethanadams/solarnet-synthetics/internal/solarnet"
)

// curlWriteFormat is the format string for curl -w to get timing info
// Format: http_code|time_namelookup|time_connect|time_appconnect|time_starttransfer|time_total|content_type
const curlWriteFormat = "%{http_code}|%{time_namelookup}|%{time_connect}|%{time_appconnect}|%{time_starttransfer}|%{time_total}|%{content_type}"

// curlResult is what curl reports about a finished transfer.
type curlResult struct {
	StatusCode  int
	ContentType string
	Timings     metrics.HTTPTimings
}

// parseCurlOutput parses curl -w output and returns status code and timings
func parseCurlOutput(output string) (curlResult, error) {
	parts := strings.SplitN(strings.TrimSpace(output), "|", 7)
	if len(parts) != 7 {
		return curlResult{}, fmt.Errorf("unexpected curl output format: %s", output)
	}

	statusCode, err := strconv.Atoi(parts[0])
	if err != nil {
		return curlResult{}, fmt.Errorf("invalid curl status code %q", parts[0])
	}

	parseSeconds := func(s string) time.Duration {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return time.Duration(f * float64(time.Second))
	}

	dnsLookup := parseSeconds(parts[1])
	tcpConnect := parseSeconds(parts[2])
	tlsHandshake := parseSeconds(parts[3])
	ttfb := parseSeconds(parts[4])
	total := parseSeconds(parts[5])

	// Plain HTTP reports time_appconnect as 0.
	connected := tlsHandshake
	if connected < tcpConnect {
		connected = tcpConnect
	}

	// Curl times are cumulative, convert to individual phases
	return curlResult{
		StatusCode:  statusCode,
		ContentType: parts[6],
		Timings: metrics.HTTPTimings{
			DNSLookup:    dnsLookup,
			TCPConnect:   nonNegative(tcpConnect - dnsLookup),
			TLSHandshake: nonNegative(tlsHandshake - tcpConnect),
			TTFB:         nonNegative(ttfb - connected),
			Transfer:     nonNegative(total - ttfb),
			Total:        total,
		},
	}, nil
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

// curlArgs builds the curl command line. Headers are emitted sorted by name
// so the command is stable. A body is read from stdin.
func curlArgs(method solarnet.Method, rawURL string, headers http.Header, hasBody bool, outputPath string) []string {
	args := []string{
		"-s", "-S", // Silent but show errors
		"-o", outputPath,
		"-w", curlWriteFormat,
	}
	if method == solarnet.MethodHead {
		args = append(args, "--head")
	} else {
		args = append(args, "-X", string(method))
	}

	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, value := range headers[name] {
			args = append(args, "-H", fmt.Sprintf("%s: %s", name, value))
		}
	}

	if hasBody {
		args = append(args, "--data-binary", "@-")
	}
	return append(args, rawURL)
}

const executorNameCurl = config.ExecutorCurl

// CurlExecutor runs probes through a curl subprocess, signing each request
// with the same signer the HTTP executor uses.
type CurlExecutor struct {
	curlPath string
	client   *solarnet.Client
	archiver archiver
	metrics  *metrics.Collector
}

// NewCurl creates a curl executor. It fails when curl is not on PATH.
func NewCurl(client *solarnet.Client, mc *metrics.Collector, sink archive.Sink, archivePrefix string) (*CurlExecutor, error) {
	curlPath, err := exec.LookPath("curl")
	if err != nil {
		return nil, fmt.Errorf("curl not found in PATH: %w", err)
	}

	return &CurlExecutor{
		curlPath: curlPath,
		client:   client,
		archiver: archiver{sink: sink, prefix: archivePrefix, metrics: mc},
		metrics:  mc,
	}, nil
}

// RunTest executes a curl test (handles single or multi-step).
func (e *CurlExecutor) RunTest(ctx context.Context, test *config.Test) error {
	logging.Info("Running curl test: %s", test.Name)
	testStart := time.Now()

	_, err := runSteps(ctx, "Curl", test, e.runStep)
	duration := time.Since(testStart)
	if err != nil {
		e.metrics.RecordTestRun(test.Name, "", executorNameCurl, false, duration)
		return err
	}

	logging.Info("Curl test %s completed successfully in %v", test.Name, duration)
	e.metrics.RecordTestRun(test.Name, "", executorNameCurl, true, duration)
	return nil
}

// runStep executes a single curl test step.
func (e *CurlExecutor) runStep(ctx context.Context, test *config.Test, step *config.TestStep, runID string) error {
	if err := applyStepJitter(ctx, test.Name, step); err != nil {
		return err
	}

	stepStart := time.Now()
	ctx, cancel := context.WithTimeout(ctx, step.TimeoutDuration())
	defer cancel()

	err := e.call(ctx, test, step, runID, stepStart)
	duration := time.Since(stepStart)

	if err != nil {
		logging.Warn("    Curl step %s failed: %v", step.Name, err)
		e.metrics.RecordTestRun(test.Name, step.Name, executorNameCurl, false, duration)
		return fmt.Errorf("step execution failed: %w", err)
	}

	e.metrics.RecordTestRun(test.Name, step.Name, executorNameCurl, true, duration)
	return nil
}

func (e *CurlExecutor) call(ctx context.Context, test *config.Test, step *config.TestStep, runID string, started time.Time) error {
	method := step.GetMethod()
	if !method.Valid() {
		return fmt.Errorf("%w: %q", solarnet.ErrUnsupportedMethod, string(method))
	}
	accept := step.Accept
	if accept == "" {
		accept = solarnet.DefaultAccept
	}

	data, err := solarnet.EncodeBody(step.Body)
	if err != nil {
		return err
	}

	u := e.client.URL(step.Path, step.Params.Values())

	signStart := time.Now()
	headers, err := e.client.Signer().Headers(string(method), u.EscapedPath(), u.RawQuery, u.Host,
		snws2.NewSignedHeaders("accept", accept), data)
	if err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}
	signDuration := time.Since(signStart)

	if data != nil {
		headers.Set("Content-Type", "application/json")
	}

	tmpFile, err := os.CreateTemp("", "curl-response-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cmd := exec.CommandContext(ctx, e.curlPath, curlArgs(method, u.String(), headers, data != nil, tmpPath)...)
	if data != nil {
		cmd.Stdin = bytes.NewReader(data)
	}

	output, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("curl %s failed: %w", method, err)
	}

	result, err := parseCurlOutput(string(output))
	if err != nil {
		return fmt.Errorf("failed to parse curl output: %w", err)
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to open curl output: %w", err)
	}
	defer f.Close()
	body, truncated, err := readBody(f, step.GetMaxBody().Int64())
	if err != nil {
		return fmt.Errorf("failed to read curl output: %w", err)
	}
	if method == solarnet.MethodHead {
		// --head writes the response headers where the body would go.
		body, truncated = nil, false
	}

	e.metrics.RecordHTTPTiming(test.Name, step.Name, executorNameCurl, result.Timings)
	e.metrics.RecordHTTPTimingPhase(test.Name, step.Name, executorNameCurl, "sign", signDuration)
	e.metrics.RecordAPIResponse(test.Name, step.Name, executorNameCurl, string(method), result.StatusCode, int64(len(body)))

	e.archiver.store(ctx, test, step, runID, started, result.ContentType, body)

	logging.Debug("    Curl %s %s -> %d (%d bytes, truncated=%t) in %v (sign=%v, dns=%v, tls=%v, ttfb=%v)",
		method, u.Path, result.StatusCode, len(body), truncated, result.Timings.Total, signDuration,
		result.Timings.DNSLookup, result.Timings.TLSHandshake, result.Timings.TTFB)

	return checkResponse(step, result.StatusCode, result.ContentType, body, truncated)
}

var _ TestExecutor = (*CurlExecutor)(nil)
