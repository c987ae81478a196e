package ratelimit

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestAllowConsumesBurst(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := New(Config{Capacity: 3, Interval: time.Minute, Now: clock.Now})

	for i := 0; i < 3; i++ {
		if !l.Allow("ingest:alice") {
			t.Fatalf("request %d should be admitted", i)
		}
	}
	if l.Allow("ingest:alice") {
		t.Fatal("burst exhausted, request should be denied")
	}
}

func TestRefillAfterInterval(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := New(Config{Capacity: 1, Interval: time.Second, Now: clock.Now})

	if !l.Allow("k") {
		t.Fatal("first request should be admitted")
	}
	if l.Allow("k") {
		t.Fatal("empty bucket should deny immediately")
	}

	clock.Advance(999 * time.Millisecond)
	if l.Allow("k") {
		t.Fatal("bucket should still be short of one token")
	}

	clock.Advance(1 * time.Millisecond)
	if !l.Allow("k") {
		t.Fatal("bucket should have refilled after the full interval")
	}
}

func TestRefillCappedAtCapacity(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := New(Config{Capacity: 2, Interval: time.Second, Now: clock.Now})

	l.Allow("k")
	l.Allow("k")

	// A long idle period must not accumulate beyond capacity.
	clock.Advance(time.Hour)

	for i := 0; i < 2; i++ {
		if !l.Allow("k") {
			t.Fatalf("request %d should be admitted after refill", i)
		}
	}
	if l.Allow("k") {
		t.Fatal("refill must be capped at capacity")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := New(Config{Capacity: 1, Interval: time.Minute, Now: clock.Now})

	if !l.Allow("ingest:alice") {
		t.Fatal("alice should be admitted")
	}
	if !l.Allow("ingest:bob") {
		t.Fatal("bob has his own bucket")
	}
	if l.Allow("ingest:alice") {
		t.Fatal("alice's bucket is empty")
	}
}

func TestConcurrentSameKey(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := New(Config{Capacity: 50, Interval: time.Hour, Now: clock.Now})

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared") {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 50 {
		t.Fatalf("expected exactly 50 admissions, got %d", admitted)
	}
}
