// Package throttle paces outbound requests by the latency of the previous one.
package throttle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultExtraDelay is added to each measured response time.
const DefaultExtraDelay = 500 * time.Millisecond

// Sleeper blocks for the given duration or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Pacer carries the pause computed from the last request into the next one.
// The zero pause with primed=false means the next Wait returns immediately.
type Pacer struct {
	mu     sync.Mutex
	extra  time.Duration
	pause  time.Duration
	primed bool
	sleep  Sleeper
}

// Option customizes a Pacer.
type Option func(*Pacer)

// WithInitialPause seeds the pause carried into the first Wait.
func WithInitialPause(d time.Duration) Option {
	return func(p *Pacer) {
		if d > 0 {
			p.pause = d
			p.primed = true
		}
	}
}

// WithSleeper swaps the blocking sleep, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(p *Pacer) {
		if s != nil {
			p.sleep = s
		}
	}
}

// NewPacer builds a Pacer adding extra to every measured elapsed time.
func NewPacer(extra time.Duration, opts ...Option) *Pacer {
	if extra < 0 {
		extra = 0
	}
	p := &Pacer{extra: extra, sleep: timerSleep}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NextPause returns elapsed plus the extra delay, rounded to the millisecond.
func (p *Pacer) NextPause(elapsed time.Duration) time.Duration {
	return (elapsed + p.extra).Round(time.Millisecond)
}

// Pause reports the pending pause and whether one has been recorded.
func (p *Pacer) Pause() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pause, p.primed
}

// Wait sleeps for the pending pause, if any, and returns how long it slept.
func (p *Pacer) Wait(ctx context.Context) (time.Duration, error) {
	pause, primed := p.Pause()
	if !primed {
		return 0, nil
	}
	if err := p.sleep(ctx, pause); err != nil {
		return 0, fmt.Errorf("throttle pause: %w", err)
	}
	return pause, nil
}

// Record stores the pause for the next Wait based on the last request's latency.
func (p *Pacer) Record(elapsed time.Duration) time.Duration {
	next := p.NextPause(elapsed)
	p.mu.Lock()
	p.pause = next
	p.primed = true
	p.mu.Unlock()
	return next
}

func timerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
