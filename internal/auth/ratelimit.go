// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"sync"
	"time"
)

// Default admission-control settings, applied when config leaves them zero.
const (
	DefaultRateLimitWindow    = time.Minute
	DefaultRateLimitThreshold = 10
)

// Decision is the outcome of an admission check.
type Decision struct {
	// Admit reports whether the request may proceed.
	Admit bool

	// RetryAfter is the time until the current window elapses. Only set on
	// rejection; surfaced to clients as a retry hint.
	RetryAfter time.Duration
}

// limiterEntry is the per-key fixed-window counter state.
type limiterEntry struct {
	windowStart time.Time
	count       int
	lastSeen    time.Time
}

// Limiter is a fixed-window admission-control gate keyed by client
// identity (IP or account identifier). Check-and-increment is a single
// atomic step under one lock; the counter stops growing once over the
// threshold so a hammering client cannot inflate it unboundedly.
//
// Login and creation paths use separate Limiter instances — the two have
// different abuse profiles.
type Limiter struct {
	mu        sync.Mutex
	entries   map[string]*limiterEntry
	threshold int
	window    time.Duration
	stopC     chan struct{}
	stopOnce  sync.Once
	now       func() time.Time
}

// NewLimiter creates a Limiter admitting up to threshold requests per key
// within each window. A background sweep evicts keys idle for two full
// windows; call Stop to terminate it.
func NewLimiter(threshold int, window time.Duration) *Limiter {
	if threshold <= 0 {
		threshold = DefaultRateLimitThreshold
	}
	if window <= 0 {
		window = DefaultRateLimitWindow
	}

	l := &Limiter{
		entries:   make(map[string]*limiterEntry),
		threshold: threshold,
		window:    window,
		stopC:     make(chan struct{}),
		now:       time.Now,
	}

	go l.sweep()

	return l
}

// CheckAndRecord atomically counts a request for key within the current
// window and decides admission. Exactly threshold requests are admitted
// per window; the next is rejected with a retry-after hint until the
// window elapses.
func (l *Limiter) CheckAndRecord(key string) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &limiterEntry{windowStart: now}
		l.entries[key] = e
	}
	e.lastSeen = now

	// Monotonic reset once the window elapses.
	if now.Sub(e.windowStart) >= l.window {
		e.windowStart = now
		e.count = 0
	}

	if e.count >= l.threshold {
		return Decision{
			Admit:      false,
			RetryAfter: e.windowStart.Add(l.window).Sub(now),
		}
	}

	e.count++
	return Decision{Admit: true}
}

// Stop terminates the background sweep. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopC) })
}

// sweep periodically evicts entries idle for two full windows. It runs on
// its own cadence and never blocks foreground admission checks beyond the
// shared lock held per eviction pass.
func (l *Limiter) sweep() {
	ticker := time.NewTicker(l.window * 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.evictStale()
		case <-l.stopC:
			return
		}
	}
}

func (l *Limiter) evictStale() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, e := range l.entries {
		if now.Sub(e.lastSeen) > l.window*2 {
			delete(l.entries, key)
		}
	}
}
