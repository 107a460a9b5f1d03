package cache

import (
	"testing"
	"time"
)

func BenchmarkLRUCache_Set(b *testing.B) {
	cache := NewLRUCache(1000, 5*time.Minute)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Set(HashKey(string(rune(i))), "value")
	}
}

func BenchmarkLRUCache_ConcurrentSetNX(b *testing.B) {
	cache := NewLRUCache(1000, 5*time.Minute)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			cache.SetNX(HashKey(string(rune(i%100))), "value", time.Minute)
			i++
		}
	})
}

func TestLRUCache_Basic(t *testing.T) {
	cache := NewLRUCache(3, time.Hour)

	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Set("c", 3)

	if val, ok := cache.Get("a"); !ok || val != 1 {
		t.Fatalf("expected 1, got %v", val)
	}

	// "b" is now least recently used.
	cache.Set("d", 4)

	if _, ok := cache.Get("b"); ok {
		t.Fatal("expected 'b' to be evicted")
	}
	if cache.Len() != 3 {
		t.Fatalf("expected cache length 3, got %d", cache.Len())
	}
}

func TestLRUCache_TTL(t *testing.T) {
	cache := NewLRUCache(10, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	cache.now = func() time.Time { return now }

	cache.SetWithTTL("key", "value", 10*time.Second)
	if val, ok := cache.Get("key"); !ok || val != "value" {
		t.Fatal("expected value to be present")
	}

	now = now.Add(11 * time.Second)
	if _, ok := cache.Get("key"); ok {
		t.Fatal("expected value to be expired")
	}
}

func TestLRUCache_SetNX(t *testing.T) {
	cache := NewLRUCache(10, 0)
	now := time.Unix(1_700_000_000, 0)
	cache.now = func() time.Time { return now }

	if !cache.SetNX("cooldown", "1", 5*time.Minute) {
		t.Fatal("first SetNX should store")
	}
	if cache.SetNX("cooldown", "1", 5*time.Minute) {
		t.Fatal("second SetNX should be rejected while the key is live")
	}
	now = now.Add(5*time.Minute + time.Second)
	if !cache.SetNX("cooldown", "1", 5*time.Minute) {
		t.Fatal("SetNX should store again after expiry")
	}
}

func TestLRUCache_Delete(t *testing.T) {
	cache := NewLRUCache(10, 0)
	cache.Set("a", 1)
	cache.Delete("a")
	if _, ok := cache.Get("a"); ok {
		t.Fatal("expected key to be deleted")
	}
}

func TestLRUCache_EvictsExpiredBeforeLive(t *testing.T) {
	cache := NewLRUCache(2, 0)
	now := time.Unix(1_700_000_000, 0)
	cache.now = func() time.Time { return now }

	cache.SetWithTTL("old", 1, time.Hour)
	cache.SetWithTTL("short", 2, time.Second)
	now = now.Add(2 * time.Second)
	cache.Set("new", 3)

	if _, ok := cache.Get("old"); !ok {
		t.Fatal("expected live 'old' to survive while an expired entry was available")
	}
	if cache.Len() != 2 {
		t.Fatalf("expected cache length 2, got %d", cache.Len())
	}
}

func TestLRUCache_PinnedKeepsLiveEntries(t *testing.T) {
	cache := NewLRUCache(2, 0)
	cache.pinLive = true
	now := time.Unix(1_700_000_000, 0)
	cache.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		cache.SetWithTTL(string(rune('a'+i)), i, time.Minute)
	}
	if cache.Len() != 10 {
		t.Fatalf("expected all 10 live entries kept, got %d", cache.Len())
	}
	if _, ok := cache.Get("a"); !ok {
		t.Fatal("expected oldest live entry to survive")
	}

	now = now.Add(2 * time.Minute)
	cache.SetWithTTL("fresh", 1, time.Minute)
	for i := 0; i < 20; i++ {
		cache.SetWithTTL(string(rune('A'+i)), i, time.Minute)
	}
	if _, ok := cache.Get("a"); ok {
		t.Fatal("expected expired entry to be dropped")
	}
	if _, ok := cache.Get("fresh"); !ok {
		t.Fatal("expected live entry to survive growth")
	}
}
