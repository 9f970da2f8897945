package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSleeper struct {
	calls []time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.calls = append(r.calls, d)
	return nil
}

func TestNextPauseRoundsToMillisecond(t *testing.T) {
	t.Parallel()

	p := NewPacer(DefaultExtraDelay)
	testCases := []struct {
		elapsed  time.Duration
		expected time.Duration
	}{
		{1234567 * time.Microsecond, 1735 * time.Millisecond},
		{1234400 * time.Microsecond, 1734 * time.Millisecond},
		{0, 500 * time.Millisecond},
		{250 * time.Millisecond, 750 * time.Millisecond},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, p.NextPause(tc.elapsed), "elapsed %v", tc.elapsed)
	}
}

func TestFirstWaitDoesNotSleep(t *testing.T) {
	t.Parallel()

	rec := &recordingSleeper{}
	p := NewPacer(DefaultExtraDelay, WithSleeper(rec.sleep))

	slept, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Zero(t, slept)
	assert.Empty(t, rec.calls)

	_, primed := p.Pause()
	assert.False(t, primed)
}

func TestWaitSleepsForRecordedPause(t *testing.T) {
	t.Parallel()

	rec := &recordingSleeper{}
	p := NewPacer(DefaultExtraDelay, WithSleeper(rec.sleep))

	next := p.Record(1200 * time.Millisecond)
	require.Equal(t, 1700*time.Millisecond, next)

	slept, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1700*time.Millisecond, slept)
	assert.Equal(t, []time.Duration{1700 * time.Millisecond}, rec.calls)
}

func TestInitialPauseIsExplicitState(t *testing.T) {
	t.Parallel()

	rec := &recordingSleeper{}
	p := NewPacer(DefaultExtraDelay, WithInitialPause(2*time.Second), WithSleeper(rec.sleep))

	pause, primed := p.Pause()
	require.True(t, primed)
	assert.Equal(t, 2*time.Second, pause)

	_, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second}, rec.calls)
}

func TestNegativeExtraIsClamped(t *testing.T) {
	t.Parallel()

	p := NewPacer(-time.Second)
	assert.Equal(t, 100*time.Millisecond, p.NextPause(100*time.Millisecond))
}

func TestTimerSleepHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPacer(DefaultExtraDelay, WithInitialPause(5*time.Second))
	start := time.Now()
	_, err := p.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), time.Second, "pause should exit immediately when context is done")
}
