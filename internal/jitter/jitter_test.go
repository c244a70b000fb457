package jitter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDuration(t *testing.T) {
	assert.Zero(t, Duration(0))
	assert.Zero(t, Duration(-time.Second))

	for i := 0; i < 100; i++ {
		d := Duration(10 * time.Millisecond)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, 10*time.Millisecond)
	}
}

func TestApplyNoJitter(t *testing.T) {
	start := time.Now()
	assert.NoError(t, Apply(context.Background(), 0, "none"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestApplyShortJitter(t *testing.T) {
	assert.NoError(t, Apply(context.Background(), 5*time.Millisecond, "short"))
}

func TestApplyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Apply(ctx, time.Hour, "cancelled")
	assert.ErrorIs(t, err, context.Canceled)
}
