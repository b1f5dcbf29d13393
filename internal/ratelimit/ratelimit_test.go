package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestUnlimitedWhenRateZero(t *testing.T) {
	l := NewLimiter(Config{})
	for i := 0; i < 100; i++ {
		if err := l.Allow("o1"); err != nil {
			t.Fatalf("unlimited limiter refused request %d: %v", i, err)
		}
	}
}

func TestBurstExhaustion(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 3})
	for i := 0; i < 3; i++ {
		if err := l.Allow("o1"); err != nil {
			t.Fatalf("request %d refused: %v", i, err)
		}
	}
	if err := l.Allow("o1"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("err = %v, want ErrRateLimited", err)
	}
}

func TestOwnersAreIndependent(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 1})
	if err := l.Allow("o1"); err != nil {
		t.Fatal(err)
	}
	if err := l.Allow("o1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("o1 should be limited, got %v", err)
	}
	if err := l.Allow("o2"); err != nil {
		t.Errorf("o2 must not be affected by o1's quota: %v", err)
	}
}

func TestRefillOverTime(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 600, BurstSize: 1})
	if err := l.Allow("o1"); err != nil {
		t.Fatal(err)
	}
	if err := l.Allow("o1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("bucket should be empty, got %v", err)
	}
	// 600/min refills one token in 100ms.
	time.Sleep(150 * time.Millisecond)
	if err := l.Allow("o1"); err != nil {
		t.Errorf("bucket should have refilled: %v", err)
	}
}

func TestPruneDropsStaleBuckets(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 1})
	if err := l.Allow("old"); err != nil {
		t.Fatal(err)
	}
	l.mu.Lock()
	l.buckets["old"].lastFill = time.Now().Add(-time.Hour)
	l.mu.Unlock()

	// A new owner's first request triggers the prune.
	if err := l.Allow("new"); err != nil {
		t.Fatal(err)
	}
	l.mu.Lock()
	_, has := l.buckets["old"]
	l.mu.Unlock()
	if has {
		t.Error("stale bucket should have been pruned")
	}
}
