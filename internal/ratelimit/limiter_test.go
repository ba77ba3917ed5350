package ratelimit

import (
	"context"
	"testing"
	"time"
)

// =============================================================================
// Limiter Tests
// =============================================================================

func TestNewLimiter(t *testing.T) {
	l := NewLimiter(10.0, 5)

	if l == nil {
		t.Fatal("NewLimiter() returned nil")
	}
	stats := l.Stats()
	if stats.Rate != 10.0 {
		t.Errorf("Rate = %v, want 10.0", stats.Rate)
	}
	if stats.Burst != 5 {
		t.Errorf("Burst = %d, want 5", stats.Burst)
	}
}

func TestNewLimiter_ZeroMeansUnlimited(t *testing.T) {
	l := NewLimiter(0, 1)

	for i := 0; i < 100; i++ {
		if !l.Allow() {
			t.Fatal("unlimited limiter should always allow")
		}
	}
}

func TestNewLimiter_BurstFloor(t *testing.T) {
	l := NewLimiter(10, 0)
	if l.Stats().Burst != 1 {
		t.Errorf("Burst = %d, want floor of 1", l.Stats().Burst)
	}
}

func TestLimiter_Allow_Burst(t *testing.T) {
	l := NewLimiter(1, 3)

	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Errorf("Allow() should return true for burst request %d", i+1)
		}
	}
	if l.Allow() {
		t.Error("Allow() should return false after burst exhausted")
	}
}

func TestLimiter_Wait(t *testing.T) {
	l := NewLimiter(1000, 10)

	if err := l.Wait(context.Background()); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
}

func TestLimiter_Wait_ContextCancelled(t *testing.T) {
	l := NewLimiter(0.1, 1)
	l.Allow() // exhaust burst

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.Wait(ctx); err == nil {
		t.Error("Wait() should return error for cancelled context")
	}
}

func TestLimiter_SetRate(t *testing.T) {
	l := NewLimiter(10.0, 5)
	l.SetRate(20.0, 10)

	stats := l.Stats()
	if stats.Rate != 20.0 {
		t.Errorf("Rate = %v, want 20.0", stats.Rate)
	}
	if stats.Burst != 10 {
		t.Errorf("Burst = %d, want 10", stats.Burst)
	}
}

// =============================================================================
// AdaptiveLimiter Tests
// =============================================================================

func TestNewAdaptiveLimiter(t *testing.T) {
	a := NewAdaptiveLimiter(1.0, 100.0, 10)

	if a == nil {
		t.Fatal("NewAdaptiveLimiter() returned nil")
	}
	if a.CurrentRate() != 100.0 {
		t.Errorf("CurrentRate() = %v, want 100.0 (starts at max)", a.CurrentRate())
	}
}

func TestAdaptiveLimiter_SlowDown(t *testing.T) {
	a := NewAdaptiveLimiter(1.0, 100.0, 10)
	a.windowSize = 10

	for i := 0; i < 5; i++ {
		a.RecordSuccess()
	}
	for i := 0; i < 5; i++ {
		a.RecordError()
	}

	if rate := a.CurrentRate(); rate >= 100.0 {
		t.Errorf("CurrentRate() = %v, should be below max after 50%% errors", rate)
	}
}

func TestAdaptiveLimiter_SpeedUp(t *testing.T) {
	a := NewAdaptiveLimiter(1.0, 100.0, 10)
	a.windowSize = 10
	a.currentRate = 50.0
	a.SetRate(50.0, 10)

	for i := 0; i < 10; i++ {
		a.RecordSuccess()
	}

	if rate := a.CurrentRate(); rate <= 50.0 {
		t.Errorf("CurrentRate() = %v, should rise after clean window", rate)
	}
}

func TestAdaptiveLimiter_MinRateFloor(t *testing.T) {
	a := NewAdaptiveLimiter(10.0, 100.0, 10)
	a.windowSize = 10
	a.currentRate = 11.0
	a.SetRate(11.0, 10)

	for i := 0; i < 10; i++ {
		a.RecordError()
	}

	if rate := a.CurrentRate(); rate < 10.0 {
		t.Errorf("CurrentRate() = %v, must not fall below minRate", rate)
	}
}

// =============================================================================
// Delay Tests
// =============================================================================

func TestDelay(t *testing.T) {
	start := time.Now()
	if err := Delay(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatalf("Delay() error = %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Delay returned early")
	}
}

func TestDelay_Zero(t *testing.T) {
	if err := Delay(context.Background(), 0); err != nil {
		t.Errorf("Delay(0) error = %v", err)
	}
}

func TestDelay_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Delay(ctx, time.Hour); err == nil {
		t.Error("Delay should honor cancellation")
	}
}
