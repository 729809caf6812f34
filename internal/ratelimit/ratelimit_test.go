package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacerZeroDelayNeverWaits(t *testing.T) {
	p := NewPacer(0, 0)
	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestPacerEnforcesGap(t *testing.T) {
	p := NewPacer(40*time.Millisecond, 40*time.Millisecond)

	require.NoError(t, p.Wait(context.Background()))
	start := time.Now()
	require.NoError(t, p.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestPacerHonorsCancellation(t *testing.T) {
	p := NewPacer(time.Minute, time.Minute)
	require.NoError(t, p.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Wait(ctx), context.Canceled)
}

func TestPacerSwapsInvertedBounds(t *testing.T) {
	p := NewPacer(20*time.Millisecond, 10*time.Millisecond)
	minDelay, maxDelay := p.Delay()
	assert.Equal(t, 20*time.Millisecond, minDelay)
	assert.Equal(t, 20*time.Millisecond, maxDelay)
}

func TestAdaptiveBacksOffAfterErrors(t *testing.T) {
	a := NewAdaptive(10*time.Millisecond, 20*time.Millisecond)

	a.RecordError()
	a.RecordError()
	minDelay, _ := a.Delay()
	assert.Equal(t, 10*time.Millisecond, minDelay, "below the threshold nothing changes")

	a.RecordError()
	minDelay, maxDelay := a.Delay()
	assert.Equal(t, 15*time.Millisecond, minDelay)
	assert.Equal(t, 30*time.Millisecond, maxDelay)
}

func TestAdaptiveRecoversTowardFloor(t *testing.T) {
	a := NewAdaptive(10*time.Millisecond, 20*time.Millisecond)
	for i := 0; i < 3; i++ {
		a.RecordError()
	}

	for i := 0; i < 25; i++ {
		a.RecordSuccess()
	}
	minDelay, _ := a.Delay()
	assert.Equal(t, 10*time.Millisecond, minDelay, "never shrinks below the configured floor")
}
