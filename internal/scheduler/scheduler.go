// Package scheduler runs configured probes on their cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ethanadams/solarnet-synthetics/internal/config"
	"github.com/ethanadams/solarnet-synthetics/internal/executor"
	"github.com/ethanadams/solarnet-synthetics/internal/jitter"
	"github.com/ethanadams/solarnet-synthetics/internal/logging"
)

// cronLogger sends cron's own messages to the process logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logging.Debugw("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logging.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}

// Scheduler manages scheduled test execution
type Scheduler struct {
	cron      *cron.Cron
	executors map[string]executor.TestExecutor
	config    *config.Config

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// New creates a new scheduler. A run that is still going when its next
// tick arrives causes that tick to be skipped, and a panicking run is
// logged rather than taking the process down.
func New(cfg *config.Config, executors map[string]executor.TestExecutor) *Scheduler {
	logger := cronLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		executors: executors,
		config:    cfg,
		entries:   make(map[string]cron.EntryID),
	}
}

// Start begins scheduling tests
func (s *Scheduler) Start(ctx context.Context) error {
	enabledCount := 0

	for i := range s.config.Tests {
		test := &s.config.Tests[i]
		if !test.Enabled {
			logging.Info("Skipping disabled test: %s", test.Name)
			continue
		}

		executorType := test.GetExecutor()
		exec, ok := s.executors[executorType]
		if !ok {
			logging.Warn("Skipping test %s: executor '%s' is not available", test.Name, executorType)
			continue
		}

		testType := "single-step"
		if len(test.Steps) > 1 {
			testType = fmt.Sprintf("%d-step", len(test.Steps))
		}

		maxJitter := s.testJitter(test)

		entryID, err := s.cron.AddFunc(test.Schedule, s.job(ctx, test, exec, maxJitter))
		if err != nil {
			return fmt.Errorf("failed to schedule test %s: %w", test.Name, err)
		}

		s.mu.Lock()
		s.entries[test.Name] = entryID
		s.mu.Unlock()

		enabledCount++
		if maxJitter > 0 {
			logging.Info("Scheduled test: %s (%s, executor: %s, schedule: %s, jitter: max %v, entry ID: %d)",
				test.Name, testType, executorType, test.Schedule, maxJitter, entryID)
		} else {
			logging.Info("Scheduled test: %s (%s, executor: %s, schedule: %s, entry ID: %d)",
				test.Name, testType, executorType, test.Schedule, entryID)
		}
	}

	if enabledCount == 0 {
		logging.Warn("Warning: No tests enabled in configuration")
	} else {
		logging.Info("Successfully scheduled %d test(s)", enabledCount)
	}

	s.cron.Start()
	logging.Info("Scheduler started")

	return nil
}

// testJitter returns the effective maximum jitter before each run of test.
func (s *Scheduler) testJitter(test *config.Test) time.Duration {
	effective := test.GetTestJitter(s.config.Jitter)
	if !effective.IsEnabled() {
		return 0
	}
	scheduleInterval, _ := config.ParseCronInterval(test.Schedule)
	maxJitter, _ := effective.ParseMaxJitter(scheduleInterval)
	return maxJitter
}

func (s *Scheduler) job(ctx context.Context, test *config.Test, exec executor.TestExecutor, maxJitter time.Duration) func() {
	return func() {
		if maxJitter > 0 {
			if err := jitter.Apply(ctx, maxJitter, fmt.Sprintf("test %s", test.Name)); err != nil {
				logging.Warn("Test %s jitter interrupted: %v", test.Name, err)
				return
			}
		}

		logging.Info("Scheduled execution: %s (executor: %s)", test.Name, test.GetExecutor())
		start := time.Now()
		if err := exec.RunTest(ctx, test); err != nil {
			logging.Error("Test %s failed: %v", test.Name, err)
			return
		}
		logging.Infow("Scheduled execution finished",
			"test", test.Name,
			"executor", test.GetExecutor(),
			"duration", time.Since(start).Round(time.Millisecond))
	}
}

// Scheduled returns the sorted names of the tests Start scheduled.
func (s *Scheduler) Scheduled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Next returns when a scheduled test runs next.
func (s *Scheduler) Next(testName string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[testName]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// Stop stops the scheduler and waits for running tests to finish.
func (s *Scheduler) Stop() {
	logging.Info("Stopping scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	logging.Info("Scheduler stopped")
}

// RunNow immediately runs a specific test, enabled or not.
func (s *Scheduler) RunNow(ctx context.Context, testName string) error {
	for i := range s.config.Tests {
		test := &s.config.Tests[i]
		if test.Name != testName {
			continue
		}
		executorType := test.GetExecutor()
		exec, ok := s.executors[executorType]
		if !ok {
			return fmt.Errorf("unknown executor type '%s' for test %s", executorType, testName)
		}
		logging.Info("Running test on demand: %s (executor: %s)", testName, executorType)
		return exec.RunTest(ctx, test)
	}
	return fmt.Errorf("test not found: %s", testName)
}
