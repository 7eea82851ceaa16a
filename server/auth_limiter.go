package server

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/hrmny/jig/config"
	"github.com/hrmny/jig/logger"
)

// AuthLimiter applies progressive delays to repeated authentication
// failures from the same client IP. It does not block outright; it slows
// brute-force attempts down while leaving legitimate retries usable.
// A nil *AuthLimiter is valid and disables limiting.
type AuthLimiter struct {
	threshold  int
	initial    time.Duration
	max        time.Duration
	multiplier float64
	window     time.Duration

	mu       sync.Mutex
	failures map[string][]time.Time

	stopCleanup chan struct{}
}

// NewAuthLimiter creates an auth limiter from configuration. Returns nil
// when limiting is disabled.
func NewAuthLimiter(cfg config.AuthLimiterConfig) *AuthLimiter {
	if !cfg.Enabled {
		return nil
	}

	initial, err := cfg.GetInitialDelay()
	if err != nil {
		initial = time.Second
	}
	max, err := cfg.GetMaxDelay()
	if err != nil {
		max = 30 * time.Second
	}
	window, err := cfg.GetWindowDuration()
	if err != nil {
		window = 15 * time.Minute
	}

	threshold := cfg.DelayStartThreshold
	if threshold <= 0 {
		threshold = 3
	}
	multiplier := cfg.DelayMultiplier
	if multiplier <= 1 {
		multiplier = 2.0
	}

	l := &AuthLimiter{
		threshold:   threshold,
		initial:     initial,
		max:         max,
		multiplier:  multiplier,
		window:      window,
		failures:    make(map[string][]time.Time),
		stopCleanup: make(chan struct{}),
	}
	go l.cleanupRoutine()

	return l
}

// Delay blocks for the current progressive delay of the client, if any.
// Returns early when ctx is cancelled.
func (l *AuthLimiter) Delay(ctx context.Context, remoteAddr string) {
	if l == nil {
		return
	}

	d := l.delayFor(clientIP(remoteAddr))
	if d == 0 {
		return
	}

	logger.Debug("delaying authentication attempt", "remote", remoteAddr, "delay", d)
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Record notes the outcome of an authentication attempt. A success clears
// the client's failure history.
func (l *AuthLimiter) Record(remoteAddr string, success bool) {
	if l == nil {
		return
	}

	ip := clientIP(remoteAddr)

	l.mu.Lock()
	defer l.mu.Unlock()

	if success {
		delete(l.failures, ip)
		return
	}
	l.failures[ip] = append(l.pruneLocked(ip, time.Now()), time.Now())
}

// delayFor computes the delay owed by a client given its recent failures:
// zero below the threshold, then initial*multiplier^n capped at max.
func (l *AuthLimiter) delayFor(ip string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.pruneLocked(ip, time.Now())
	l.failures[ip] = recent

	excess := len(recent) - l.threshold + 1
	if excess <= 0 {
		return 0
	}

	d := l.initial
	for i := 1; i < excess; i++ {
		d = time.Duration(float64(d) * l.multiplier)
		if d >= l.max {
			return l.max
		}
	}
	if d > l.max {
		d = l.max
	}
	return d
}

// pruneLocked drops failures older than the window. Caller holds l.mu.
func (l *AuthLimiter) pruneLocked(ip string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	var recent []time.Time
	for _, t := range l.failures[ip] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	return recent
}

func (l *AuthLimiter) cleanupRoutine() {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCleanup:
			return
		}
	}
}

func (l *AuthLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for ip := range l.failures {
		if recent := l.pruneLocked(ip, now); len(recent) == 0 {
			delete(l.failures, ip)
		} else {
			l.failures[ip] = recent
		}
	}
}

// Stop terminates the background cleanup routine.
func (l *AuthLimiter) Stop() {
	if l == nil {
		return
	}
	close(l.stopCleanup)
}

func clientIP(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
