package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterAllowsBurstPerKey(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := New(10, 10*time.Second)
	l.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		if !l.Allow("a:u1") {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if l.Allow("a:u1") {
		t.Fatal("11th request inside the window should be rejected")
	}
	if !l.Allow("a:u2") {
		t.Fatal("other keys have their own budget")
	}

	now = now.Add(time.Second)
	if !l.Allow("a:u1") {
		t.Fatal("a token should refill after one second")
	}
}

func TestLimiterDisabled(t *testing.T) {
	l := New(0, time.Second)
	for i := 0; i < 100; i++ {
		if !l.Allow("k") {
			t.Fatal("disabled limiter must always allow")
		}
	}
	var nilLimiter *Limiter
	if !nilLimiter.Allow("k") {
		t.Fatal("nil limiter must allow")
	}
}
