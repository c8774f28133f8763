package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
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

func TestGetSet(t *testing.T) {
	c := New[string](time.Hour)

	if _, ok := c.Get("missing"); ok {
		t.Error("Get(missing) ok = true, want false")
	}

	c.Set("k", "v1")
	got, ok := c.Get("k")
	if !ok || got != "v1" {
		t.Errorf("Get(k) = %q, %v, want v1, true", got, ok)
	}

	c.Set("k", "v2")
	got, _ = c.Get("k")
	if got != "v2" {
		t.Errorf("Get(k) after overwrite = %q, want v2", got)
	}

	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("Get(k) after Delete ok = true, want false")
	}
}

func TestExpiry(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		wantHit bool
	}{
		{"fresh", 0, true},
		{"just before ttl", time.Hour - time.Nanosecond, true},
		{"exactly ttl", time.Hour, false},
		{"after ttl", 2 * time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			c := New[int](time.Hour, WithClock(clock.Now))

			c.Set("k", 1)
			clock.Advance(tt.elapsed)

			_, ok := c.Get("k")
			if ok != tt.wantHit {
				t.Errorf("Get(k) ok = %v, want %v", ok, tt.wantHit)
			}
			if !tt.wantHit && c.Len() != 0 {
				t.Errorf("Len() = %d after expired Get, want 0", c.Len())
			}
		})
	}
}

func TestNoSlidingExpiry(t *testing.T) {
	clock := newFakeClock()
	c := New[int](time.Hour, WithClock(clock.Now))

	c.Set("k", 1)
	clock.Advance(40 * time.Minute)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("Get(k) at 40m should hit")
	}
	clock.Advance(20 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Error("Get(k) at 60m should miss; reads must not extend the lifetime")
	}
}

func TestDefaultTTL(t *testing.T) {
	c := New[int](0)
	if c.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", c.ttl, DefaultTTL)
	}
}

func TestSweep(t *testing.T) {
	clock := newFakeClock()
	c := New[int](time.Hour, WithClock(clock.Now))

	c.Set("old1", 1)
	c.Set("old2", 2)
	clock.Advance(30 * time.Minute)
	c.Set("new", 3)
	clock.Advance(30 * time.Minute)

	if removed := c.Sweep(); removed != 2 {
		t.Errorf("Sweep() = %d, want 2", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
	if _, ok := c.Get("new"); !ok {
		t.Error("Get(new) should still hit")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	c := New[int](time.Millisecond)
	c.Set("k", 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, time.Millisecond)
		close(done)
	}()

	deadline := time.After(time.Second)
	for c.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("background sweep did not remove expired entry")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int](time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", j%10)
				c.Set(key, i)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if c.Len() != 10 {
		t.Errorf("Len() = %d, want 10", c.Len())
	}
}
