// Package ratelimit paces page navigations so a crawl reads like a person
// browsing, not a burst of requests.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter blocks until the next navigation is allowed to go out.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Pacer enforces a jittered minimum gap between consecutive navigations.
// With both bounds zero it never waits.
type Pacer struct {
	mu       sync.Mutex
	minDelay time.Duration
	maxDelay time.Duration
	last     time.Time
}

func NewPacer(minDelay, maxDelay time.Duration) *Pacer {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Pacer{minDelay: minDelay, maxDelay: maxDelay}
}

func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	gap := p.gap()
	if elapsed := time.Since(p.last); elapsed < gap {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(gap - elapsed):
		}
	}
	p.last = time.Now()
	return nil
}

// SetDelay replaces both bounds. Used by the adaptive wrapper.
func (p *Pacer) SetDelay(minDelay, maxDelay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	p.minDelay = minDelay
	p.maxDelay = maxDelay
}

// Delay reports the current bounds.
func (p *Pacer) Delay() (time.Duration, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.minDelay, p.maxDelay
}

func (p *Pacer) gap() time.Duration {
	if p.maxDelay <= p.minDelay {
		return p.minDelay
	}
	return p.minDelay + time.Duration(rand.Int63n(int64(p.maxDelay-p.minDelay)))
}

// Adaptive widens the gap after repeated navigation failures and narrows it
// back on sustained success. Sites that throttle respond well to backing off
// before they escalate to captchas.
type Adaptive struct {
	*Pacer

	mu        sync.Mutex
	errors    int
	successes int

	errorThreshold int
	backoffFactor  float64
	floor          time.Duration
	ceiling        time.Duration

	currentMin time.Duration
	currentMax time.Duration
}

func NewAdaptive(minDelay, maxDelay time.Duration) *Adaptive {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Adaptive{
		Pacer:          NewPacer(minDelay, maxDelay),
		errorThreshold: 3,
		backoffFactor:  1.5,
		floor:          minDelay,
		ceiling:        60 * time.Second,
		currentMin:     minDelay,
		currentMax:     maxDelay,
	}
}

// RecordSuccess notes a successful navigation. After five in a row the gap
// shrinks toward the configured floor.
func (a *Adaptive) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successes++
	a.errors = 0
	if a.successes < 5 {
		return
	}
	a.successes = 0

	a.currentMin = time.Duration(float64(a.currentMin) * 0.9)
	if a.currentMin < a.floor {
		a.currentMin = a.floor
	}
	a.currentMax = time.Duration(float64(a.currentMax) * 0.9)
	if a.currentMax < a.currentMin {
		a.currentMax = a.currentMin
	}
	a.SetDelay(a.currentMin, a.currentMax)
}

// RecordError notes a failed navigation. Hitting the threshold widens the gap.
func (a *Adaptive) RecordError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errors++
	a.successes = 0
	if a.errors < a.errorThreshold {
		return
	}
	a.errors = 0

	a.currentMin = time.Duration(float64(a.currentMin) * a.backoffFactor)
	a.currentMax = time.Duration(float64(a.currentMax) * a.backoffFactor)
	if a.currentMin > a.ceiling {
		a.currentMin = a.ceiling
	}
	if a.currentMax > a.ceiling {
		a.currentMax = a.ceiling
	}
	a.SetDelay(a.currentMin, a.currentMax)
}
