package executor

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ethanadams/solarnet-synthetics/internal/config"
	"github.com/ethanadams/solarnet-synthetics/internal/jitter"
	"github.com/ethanadams/solarnet-synthetics/internal/logging"
)

// TestExecutor defines the interface for test execution
type TestExecutor interface {
	RunTest(ctx context.Context, test *config.Test) error
}

// stepFunc runs one step of a test run identified by runID.
type stepFunc func(ctx context.Context, test *config.Test, step *config.TestStep, runID string) error

// newRunID returns a ULID for a test run. Run IDs sort by start time, which
// keeps archived responses in order.
func newRunID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// runSteps executes test steps sequentially, stopping at the first failure.
func runSteps(ctx context.Context, name string, test *config.Test, run stepFunc) (string, error) {
	runID := newRunID(time.Now())
	isSingleStep := test.IsSingleStep()

	if isSingleStep {
		logging.Info("%s test %s using run ID: %s", name, test.Name, runID)
	} else {
		logging.Info("%s test %s (%d steps) using run ID: %s", name, test.Name, len(test.Steps), runID)
	}

	for i := range test.Steps {
		step := &test.Steps[i]
		if !isSingleStep {
			logging.Info("  [%d/%d] Running: %s", i+1, len(test.Steps), step.Name)
		}

		if err := run(ctx, test, step, runID); err != nil {
			if !isSingleStep {
				logging.Warn("  [%d/%d] Failed: %s - %v", i+1, len(test.Steps), step.Name, err)
			}
			return runID, fmt.Errorf("%s test %s failed at step %s: %w", name, test.Name, step.Name, err)
		}

		if !isSingleStep {
			logging.Info("  [%d/%d] Completed: %s", i+1, len(test.Steps), step.Name)
		}
	}
	return runID, nil
}

// applyStepJitter sleeps for the step's jitter, if any. Steps only accept
// durations since they have no schedule to take a percentage of.
func applyStepJitter(ctx context.Context, testName string, step *config.TestStep) error {
	if !step.Jitter.IsEnabled() {
		return nil
	}
	maxJitter, _ := step.Jitter.ParseMaxJitter(0)
	if maxJitter <= 0 {
		return nil
	}
	if err := jitter.Apply(ctx, maxJitter, fmt.Sprintf("step %s/%s", testName, step.Name)); err != nil {
		return fmt.Errorf("step jitter interrupted: %w", err)
	}
	return nil
}
