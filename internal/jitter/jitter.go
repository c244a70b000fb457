// Package jitter spreads scheduled probes so they do not hit the API in
// lockstep.
package jitter

import (
	"context"
	"math/rand"
	"time"

	"github.com/ethanadams/solarnet-synthetics/internal/logging"
)

// Duration returns a random duration in [0, maxJitter).
func Duration(maxJitter time.Duration) time.Duration {
	if maxJitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(maxJitter)))
}

// Apply sleeps for a random duration between 0 and maxJitter
// Returns immediately if maxJitter <= 0 or context is cancelled
func Apply(ctx context.Context, maxJitter time.Duration, label string) error {
	if maxJitter <= 0 {
		return nil
	}

	jitterDuration := Duration(maxJitter)
	if jitterDuration > 0 {
		logging.Debug("Applying jitter: %v (max: %v) for %s", jitterDuration, maxJitter, label)
	}

	timer := time.NewTimer(jitterDuration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
