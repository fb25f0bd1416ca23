package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestLRUEviction(t *testing.T) {
	c := NewLRU[float64](3, time.Minute)
	for i := 0; i < 4; i++ {
		c.Set(fmt.Sprintf("k%d", i), float64(i), 0)
	}
	if c.Len() != 3 {
		t.Fatalf("expected 3 items after eviction, got %d", c.Len())
	}
	if _, ok := c.Get("k0"); ok {
		t.Errorf("oldest entry should have been evicted")
	}
	if v, ok := c.Get("k3"); !ok || v != 3 {
		t.Errorf("expected k3=3, got %v ok=%v", v, ok)
	}
}

func TestLRURecencyOnGet(t *testing.T) {
	c := NewLRU[string](2, time.Minute)
	c.Set("a", "1", 0)
	c.Set("b", "2", 0)
	c.Get("a") // refresh a
	c.Set("c", "3", 0)
	if _, ok := c.Get("b"); ok {
		t.Errorf("b should have been evicted, not a")
	}
	if _, ok := c.Get("a"); !ok {
		t.Errorf("a should survive after refresh")
	}
}

func TestLRUExpiry(t *testing.T) {
	c := NewLRU[int](8, time.Minute)
	c.Set("x", 42, time.Nanosecond)
	time.Sleep(2 * time.Millisecond)
	if _, ok := c.Get("x"); ok {
		t.Errorf("expired entry should not be returned")
	}
}
