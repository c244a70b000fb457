package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ethanadams/solarnet-synthetics/internal/config"
	"github.com/ethanadams/solarnet-synthetics/internal/k6output"
	"github.com/ethanadams/solarnet-synthetics/internal/logging"
	"github.com/ethanadams/solarnet-synthetics/internal/metrics"
)

const executorNameK6 = config.ExecutorK6

// k6 built-in trend metrics and the timing phase each one is recorded as.
var k6Phases = map[string]string{
	"http_req_duration":        "total",
	"http_req_blocked":         "blocked",
	"http_req_connecting":      "connect",
	"http_req_tls_handshaking": "tls",
	"http_req_waiting":         "ttfb",
	"http_req_receiving":       "transfer",
}

// K6Executor runs k6 scripts built with the xk6-solarnetwork extension.
// Credentials reach the script through the environment.
type K6Executor struct {
	k6Binary string
	api      config.SolarNetworkConfig
	metrics  *metrics.Collector
}

// NewK6 creates a k6 executor.
func NewK6(cfg *config.Config, mc *metrics.Collector) *K6Executor {
	return &K6Executor{
		k6Binary: cfg.K6.BinaryPath,
		api:      cfg.SolarNetwork,
		metrics:  mc,
	}
}

// RunTest executes a k6 test (handles single or multi-step).
func (e *K6Executor) RunTest(ctx context.Context, test *config.Test) error {
	logging.Info("Running k6 test: %s", test.Name)
	testStart := time.Now()

	_, err := runSteps(ctx, "k6", test, e.runStep)
	duration := time.Since(testStart)
	if err != nil {
		e.metrics.RecordTestRun(test.Name, "", executorNameK6, false, duration)
		return err
	}

	logging.Info("k6 test %s completed successfully in %v", test.Name, duration)
	e.metrics.RecordTestRun(test.Name, "", executorNameK6, true, duration)
	return nil
}

// environment returns the variables a step's script sees, on top of the
// process environment.
func (e *K6Executor) environment(test *config.Test, step *config.TestStep, runID string) []string {
	env := []string{
		"SOLARNETWORK_HOST=" + e.api.Host,
		"SOLARNETWORK_TOKEN=" + e.api.Token,
		"SOLARNETWORK_SECRET=" + e.api.Secret,
		"SOLARNETWORK_SCHEME=" + e.api.Scheme,
		"TEST_NAME=" + test.Name,
		"STEP_NAME=" + step.Name,
		"SN_RUN_ID=" + runID,
		"SN_METHOD=" + string(step.GetMethod()),
		"SN_EXPECT_STATUS=" + strconv.Itoa(step.GetExpectStatus()),
	}
	if step.Path != "" {
		env = append(env, "SN_PATH="+step.Path)
	}
	if len(step.Params) > 0 {
		env = append(env, "SN_QUERY="+step.Params.Values().Encode())
	}
	if step.Accept != "" {
		env = append(env, "SN_ACCEPT="+step.Accept)
	}
	return env
}

// runStep executes a single k6 script.
func (e *K6Executor) runStep(ctx context.Context, test *config.Test, step *config.TestStep, runID string) error {
	if err := applyStepJitter(ctx, test.Name, step); err != nil {
		return err
	}

	stepStart := time.Now()

	outputFile := filepath.Join(os.TempDir(), fmt.Sprintf("k6-output-%s-%s-%s.json", test.Name, step.Name, runID))
	defer os.Remove(outputFile)

	ctx, cancel := context.WithTimeout(ctx, step.TimeoutDuration())
	defer cancel()

	args := []string{
		"run",
		"--out", fmt.Sprintf("json=%s", outputFile),
		"--summary-mode=disabled", // Disable end-of-test summary
		"--no-usage-report",       // No usage reporting
		"--quiet",                 // Suppress verbose output
		step.Script,
	}

	cmd := exec.CommandContext(ctx, e.k6Binary, args...)
	cmd.Env = append(os.Environ(), e.environment(test, step, runID)...)

	output, err := cmd.CombinedOutput()
	duration := time.Since(stepStart)

	if err != nil {
		logging.Warn("    Step %s failed: %v", step.Name, err)
		if len(output) > 0 {
			logging.Warn("    Output: %s", string(output))
		}
		e.metrics.RecordTestRun(test.Name, step.Name, executorNameK6, false, duration)
		return fmt.Errorf("step execution failed: %w", err)
	}

	if len(output) > 0 {
		logging.Debug("    k6 output: %s", string(output))
	}

	failedChecks, err := e.parseAndRecordMetrics(outputFile, test.Name, step.Name)
	if err != nil {
		logging.Warn("    Warning: failed to parse k6 output: %v", err)
	}
	if failedChecks > 0 {
		e.metrics.RecordTestRun(test.Name, step.Name, executorNameK6, false, duration)
		return fmt.Errorf("step execution failed: %d k6 checks failed", failedChecks)
	}

	e.metrics.RecordTestRun(test.Name, step.Name, executorNameK6, true, duration)
	return nil
}

// parseAndRecordMetrics parses k6 JSON output, records metrics and returns
// the number of failed checks.
func (e *K6Executor) parseAndRecordMetrics(outputFile, testName, stepName string) (int, error) {
	points, err := k6output.ParseJSONOutput(outputFile)
	if err != nil {
		return 0, err
	}

	grouped := k6output.GroupMetricsByName(points)
	logging.Debug("    Parsed %d metric points, found metric types: %v", len(points), k6output.Names(grouped))

	for metric, phase := range k6Phases {
		stats, ok := k6output.CalculateStats(k6output.Values(grouped[metric]))
		if !ok {
			continue
		}
		avg := time.Duration(stats.Avg * float64(time.Millisecond))
		e.metrics.RecordHTTPTimingPhase(testName, stepName, executorNameK6, phase, avg)
	}

	for _, point := range grouped["http_reqs"] {
		status, err := strconv.Atoi(point.Tags["status"])
		if err != nil {
			continue
		}
		e.metrics.RecordAPIResponse(testName, stepName, executorNameK6, point.Tags["method"], status, 0)
	}

	failed := 0
	for _, point := range grouped["checks"] {
		if point.Value == 0 {
			failed++
		}
	}

	logging.Debug("Parsed %d metric points from test %s", len(points), testName)
	return failed, nil
}

var _ TestExecutor = (*K6Executor)(nil)
