package ratelimit

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestNew(t *testing.T) {
	limiter := New(time.Second)
	if limiter == nil {
		t.Fatal("New() returned nil")
	}
	if limiter.hosts == nil {
		t.Fatal("New() returned limiter with nil hosts map")
	}
	if limiter.minInterval != time.Second {
		t.Errorf("New() minInterval = %v, want %v", limiter.minInterval, time.Second)
	}
}

func TestAllow(t *testing.T) {
	limiter := New(100 * time.Millisecond)

	if !limiter.Allow("feeds.arstechnica.com") {
		t.Error("Allow() should return true for first request to a host")
	}
	if limiter.Allow("feeds.arstechnica.com") {
		t.Error("Allow() should return false for second request before minInterval")
	}
	if !limiter.Allow("news.ycombinator.com") {
		t.Error("Allow() should return true for a different host")
	}
}

func TestAllow_AfterInterval(t *testing.T) {
	limiter := New(50 * time.Millisecond)

	limiter.Allow("example.com")
	time.Sleep(60 * time.Millisecond)

	if !limiter.Allow("example.com") {
		t.Error("Allow() should return true after minInterval has passed")
	}
}

func TestAllow_RefusalKeepsWindow(t *testing.T) {
	limiter := New(50 * time.Millisecond)

	limiter.Allow("example.com")
	time.Sleep(30 * time.Millisecond)
	limiter.Allow("example.com")
	time.Sleep(30 * time.Millisecond)

	if !limiter.Allow("example.com") {
		t.Error("a refused Allow() must not push the window forward")
	}
}

func TestAllow_ZeroInterval(t *testing.T) {
	limiter := New(0)

	for i := 0; i < 10; i++ {
		if !limiter.Allow("example.com") {
			t.Errorf("Allow() should always return true with zero interval, iteration %d", i)
		}
	}
}

func TestWait(t *testing.T) {
	limiter := New(50 * time.Millisecond)

	start := time.Now()
	limiter.Wait("example.com")
	if elapsed := time.Since(start); elapsed >= 50*time.Millisecond {
		t.Errorf("Wait() should not block the first request, elapsed: %v", elapsed)
	}

	start = time.Now()
	limiter.Wait("example.com")
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Wait() should block for minInterval, elapsed: %v", elapsed)
	}

	start = time.Now()
	limiter.Wait("other.com")
	if elapsed := time.Since(start); elapsed >= 40*time.Millisecond {
		t.Errorf("Wait() should not block a different host, elapsed: %v", elapsed)
	}
}

func TestWait_ConcurrentCallersGetSlots(t *testing.T) {
	limiter := New(30 * time.Millisecond)

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			limiter.Wait("example.com")
		}()
	}
	wg.Wait()

	// Three callers: immediate, +30ms, +60ms.
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("concurrent Wait() calls should be spaced out, elapsed: %v", elapsed)
	}
}

func TestReset(t *testing.T) {
	limiter := New(100 * time.Millisecond)

	limiter.Allow("example.com")
	limiter.Allow("other.com")

	limiter.Reset("example.com")
	if !limiter.Allow("example.com") {
		t.Error("Allow() should return true after Reset()")
	}
	if limiter.Allow("other.com") {
		t.Error("Reset() should only clear the given host")
	}

	limiter.ResetAll()
	if !limiter.Allow("other.com") {
		t.Error("Allow() should return true after ResetAll()")
	}

	limiter.Reset("never-seen.com")
}

func TestRedisLimiter(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("Skipping test: REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping test: redis unavailable: %v", err)
	}

	prefix := "feeddash-test:ratelimit:" + time.Now().Format("150405.000000") + ":"
	limiter := NewRedis(client, prefix, 200*time.Millisecond)

	if !limiter.Allow("refresh") {
		t.Fatal("first Allow() should succeed")
	}
	if limiter.Allow("refresh") {
		t.Error("second Allow() inside the interval should fail")
	}
	time.Sleep(250 * time.Millisecond)
	if !limiter.Allow("refresh") {
		t.Error("Allow() should succeed once the key expires")
	}
}

func TestRedisLimiter_ZeroIntervalAlwaysAllows(t *testing.T) {
	limiter := NewRedis(nil, "unused:", 0)
	if !limiter.Allow("refresh") {
		t.Error("Allow() with zero interval should not touch redis and return true")
	}
}
