package cache

import (
	"testing"
	"time"
)

func TestLRUCache_GetSet(t *testing.T) {
	c := NewLRUCache[int](3, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for unknown key")
	}
	if c.Size() != 2 {
		t.Errorf("size = %d, want 2", c.Size())
	}
}

func TestLRUCache_EvictsOldest(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // refresh a; b becomes oldest
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should survive eviction")
	}
}

func TestLRUCache_TTLExpiry(t *testing.T) {
	c := NewLRUCache[int](10, 10*time.Millisecond)

	c.Set("a", 1)
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("a"); ok {
		t.Error("expired entry should miss")
	}
	c.Set("b", 2)
	if cleaned := c.CleanExpired(); cleaned != 0 {
		t.Errorf("CleanExpired removed %d live entries", cleaned)
	}
}

func TestLRUCache_Delete(t *testing.T) {
	c := NewLRUCache[string](10, time.Minute)

	c.Set("k", "v")
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("deleted entry should miss")
	}
	c.Delete("k") // deleting a missing key is a no-op
}

func TestPaymentKey_RollsDaily(t *testing.T) {
	day1 := PaymentKey(7, time.Date(2024, 3, 20, 23, 59, 0, 0, time.UTC))
	day2 := PaymentKey(7, time.Date(2024, 3, 21, 0, 1, 0, 0, time.UTC))
	if day1 == day2 {
		t.Error("keys for different days must differ")
	}
	if day1 != PaymentKey(7, time.Date(2024, 3, 20, 1, 0, 0, 0, time.UTC)) {
		t.Error("same day must produce the same key")
	}
}
