package server

import (
	"testing"
	"time"

	"github.com/hrmny/jig/config"
)

func limiterConfig() config.AuthLimiterConfig {
	return config.AuthLimiterConfig{
		Enabled:             true,
		DelayStartThreshold: 3,
		InitialDelay:        "100ms",
		MaxDelay:            "400ms",
		DelayMultiplier:     2.0,
		WindowDuration:      "15m",
	}
}

func TestAuthLimiterProgressiveDelays(t *testing.T) {
	l := NewAuthLimiter(limiterConfig())
	defer l.Stop()

	addr := "192.0.2.10:41234"

	l.Record(addr, false)
	l.Record(addr, false)
	if d := l.delayFor(clientIP(addr)); d != 0 {
		t.Errorf("below threshold should have no delay, got %v", d)
	}

	l.Record(addr, false)
	if d := l.delayFor(clientIP(addr)); d != 100*time.Millisecond {
		t.Errorf("at threshold want initial delay 100ms, got %v", d)
	}

	l.Record(addr, false)
	if d := l.delayFor(clientIP(addr)); d != 200*time.Millisecond {
		t.Errorf("want doubled delay 200ms, got %v", d)
	}

	// Delay is capped at the configured maximum.
	for i := 0; i < 10; i++ {
		l.Record(addr, false)
	}
	if d := l.delayFor(clientIP(addr)); d != 400*time.Millisecond {
		t.Errorf("want capped delay 400ms, got %v", d)
	}
}

func TestAuthLimiterSuccessClearsFailures(t *testing.T) {
	l := NewAuthLimiter(limiterConfig())
	defer l.Stop()

	addr := "192.0.2.11:41234"
	for i := 0; i < 5; i++ {
		l.Record(addr, false)
	}
	if d := l.delayFor(clientIP(addr)); d == 0 {
		t.Fatal("expected a delay after repeated failures")
	}

	l.Record(addr, true)
	if d := l.delayFor(clientIP(addr)); d != 0 {
		t.Errorf("success should clear history, got delay %v", d)
	}
}

func TestAuthLimiterIndependentClients(t *testing.T) {
	l := NewAuthLimiter(limiterConfig())
	defer l.Stop()

	for i := 0; i < 5; i++ {
		l.Record("192.0.2.12:1", false)
	}
	if d := l.delayFor("192.0.2.13"); d != 0 {
		t.Errorf("an unrelated client must not be delayed, got %v", d)
	}
}

func TestAuthLimiterDisabled(t *testing.T) {
	l := NewAuthLimiter(config.AuthLimiterConfig{Enabled: false})
	if l != nil {
		t.Fatal("disabled limiter should be nil")
	}

	// Nil receivers are safe no-ops.
	l.Record("192.0.2.14:1", false)
	l.Stop()
}
