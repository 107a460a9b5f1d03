package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/go-companion/src/memory/model"
)

func TestNormalizePrompt(t *testing.T) {
	require.Equal(t, "hello world", NormalizePrompt("  Hello \t\n  WORLD "))
	require.Equal(t, NormalizePrompt("Hello"), NormalizePrompt("hello"))
}

func TestResponseKeyIsolatesAgentAndUser(t *testing.T) {
	a := ResponseKey(model.NewKey("a1", "u1"), "Hello")
	require.Equal(t, a, ResponseKey(model.NewKey("a1", "u1"), "  hello "))
	require.NotEqual(t, a, ResponseKey(model.NewKey("a1", "u2"), "Hello"))
	require.NotEqual(t, a, ResponseKey(model.NewKey("a2", "u1"), "Hello"))
	require.Contains(t, a, "response_cache:a1:u1:")

	require.NotEqual(t,
		ResponseKey(model.NewKey("a:b", "c"), "Hello"),
		ResponseKey(model.NewKey("a", "b:c"), "Hello"),
	)
}

func TestResponseCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	rc := NewResponseCache(NewMemoryKV(100), 0, nil)
	key := model.NewKey("a1", "u1")

	_, ok := rc.Lookup(ctx, key, "Hello")
	require.False(t, ok)

	rc.Store(ctx, key, "Hello", "Hi there")
	got, ok := rc.Lookup(ctx, key, "hello  ")
	require.True(t, ok)
	require.Equal(t, "Hi there", got)

	rc.Store(ctx, key, "HELLO", "Hey")
	got, _ = rc.Lookup(ctx, key, "hello")
	require.Equal(t, "Hey", got)

	_, ok = rc.Lookup(ctx, model.NewKey("a1", "u2"), "Hello")
	require.False(t, ok)
}

func TestResponseCacheInvalidKeyIsNoop(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV(10)
	rc := NewResponseCache(kv, 0, nil)

	rc.Store(ctx, model.NewKey("", "u1"), "Hello", "Hi")
	require.Equal(t, 0, kv.lru.Len())
	_, ok := rc.Lookup(ctx, model.NewKey("", "u1"), "Hello")
	require.False(t, ok)
}

type failingKV struct{}

func (failingKV) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("down")
}
func (failingKV) Set(context.Context, string, string, time.Duration) error { return errors.New("down") }
func (failingKV) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("down")
}

func TestResponseCacheBackendFailureIsMiss(t *testing.T) {
	ctx := context.Background()
	rc := NewResponseCache(failingKV{}, 0, nil)
	key := model.NewKey("a1", "u1")

	rc.Store(ctx, key, "Hello", "Hi")
	_, ok := rc.Lookup(ctx, key, "Hello")
	require.False(t, ok)
}

func TestRedisKV(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	kv := NewRedisKVFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = kv.Close() })

	_, ok, err := kv.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, kv.Set(ctx, "k", "v", time.Hour))
	v, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", v)

	stored, err := kv.SetNX(ctx, "cool", "1", 5*time.Minute)
	require.NoError(t, err)
	require.True(t, stored)
	stored, err = kv.SetNX(ctx, "cool", "1", 5*time.Minute)
	require.NoError(t, err)
	require.False(t, stored)

	mr.FastForward(5*time.Minute + time.Second)
	stored, err = kv.SetNX(ctx, "cool", "1", 5*time.Minute)
	require.NoError(t, err)
	require.True(t, stored)
}

func TestRedisResponseTTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rc := NewResponseCache(NewRedisKVFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()})), 0, nil)
	key := model.NewKey("a1", "u1")

	rc.Store(ctx, key, "Hello", "Hi")
	require.Equal(t, ResponseTTL, mr.TTL(ResponseKey(key, "Hello")))

	mr.FastForward(ResponseTTL + time.Second)
	_, ok := rc.Lookup(ctx, key, "Hello")
	require.False(t, ok)
}

func TestMarkerKVSurvivesCacheTraffic(t *testing.T) {
	ctx := context.Background()
	markers := NewMarkerKV()
	ok, err := markers.SetNX(ctx, "cooldown", "1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	for i := 0; i < 5000; i++ {
		require.NoError(t, markers.Set(ctx, HashKey(string(rune(i))), "x", time.Hour))
	}
	ok, err = markers.SetNX(ctx, "cooldown", "1", time.Minute)
	require.NoError(t, err)
	require.False(t, ok, "a live marker must not be evicted")
}

func TestMemoryKVSetNXConcurrent(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV(10)
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := kv.SetNX(ctx, "cooldown", "1", time.Minute); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
}
