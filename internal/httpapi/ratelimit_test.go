package httpapi

import (
	"testing"
	"time"
)

func TestRateLimiterSlidingWindow(t *testing.T) {
	limiter := newRateLimiter(3)
	now := time.Now()

	for i := 0; i < 3; i++ {
		if !limiter.allow("key:abc", now.Add(time.Duration(i)*time.Second)) {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if limiter.allow("key:abc", now.Add(3*time.Second)) {
		t.Fatal("fourth request within the window should be rejected")
	}

	// Other clients have independent windows.
	if !limiter.allow("key:other", now.Add(3*time.Second)) {
		t.Fatal("a different client must not be throttled")
	}

	// Once the first request ages out, capacity frees up.
	if !limiter.allow("key:abc", now.Add(61*time.Second)) {
		t.Fatal("request after the window expired should be allowed")
	}
}

func TestRateLimiterDefaults(t *testing.T) {
	limiter := newRateLimiter(0)
	if limiter.rpm != 120 {
		t.Fatalf("rpm = %d, want default 120", limiter.rpm)
	}
}
