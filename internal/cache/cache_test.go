// v1
// internal/cache/cache_test.go
package cache

import (
	"testing"
	"time"
)

type countObs struct {
	hits, misses int
}

func (c *countObs) CacheHit()  { c.hits++ }
func (c *countObs) CacheMiss() { c.misses++ }

func TestGetSetInvalidate(t *testing.T) {
	obs := &countObs{}
	c := New[int](time.Minute, obs)

	if _, ok := c.Get("day/2024-03-09"); ok {
		t.Fatal("unexpected hit on empty cache")
	}
	c.Set("day/2024-03-09", 42)
	v, ok := c.Get("day/2024-03-09")
	if !ok || v != 42 {
		t.Fatalf("got %d/%t, want 42/true", v, ok)
	}
	c.Invalidate("day/2024-03-09")
	if _, ok := c.Get("day/2024-03-09"); ok {
		t.Fatal("hit after invalidation")
	}
	if obs.hits != 1 || obs.misses != 2 {
		t.Fatalf("observer = %d hits / %d misses, want 1/2", obs.hits, obs.misses)
	}
}

func TestExpiry(t *testing.T) {
	c := New[string](time.Millisecond, nil)
	c.Set("k", "v")
	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry should have expired")
	}
}
