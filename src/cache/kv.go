package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KV is the expiring key/value surface shared by the response cache and the
// analysis cooldown.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX atomically stores value only when key is absent and reports
	// whether it did.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

// MemoryKV is an in-process KV backed by LRUCache.
type MemoryKV struct {
	lru *LRUCache
}

// NewMemoryKV returns a KV holding at most capacity keys.
func NewMemoryKV(capacity int) *MemoryKV {
	return &MemoryKV{lru: NewLRUCache(capacity, 0)}
}

// NewMarkerKV returns an in-process KV that never evicts an unexpired key.
// Cooldown markers use it so unrelated cache traffic cannot release them.
func NewMarkerKV() *MemoryKV {
	lru := NewLRUCache(1024, 0)
	lru.pinLive = true
	return &MemoryKV{lru: lru}
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	if m == nil || m.lru == nil {
		return "", false, nil
	}
	v, ok := m.lru.Get(key)
	if !ok {
		return "", false, nil
	}
	s, _ := v.(string)
	return s, true, nil
}

func (m *MemoryKV) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if m == nil || m.lru == nil {
		return errors.New("nil memory kv")
	}
	m.lru.SetWithTTL(key, value, ttl)
	return nil
}

func (m *MemoryKV) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	if m == nil || m.lru == nil {
		return false, errors.New("nil memory kv")
	}
	return m.lru.SetNX(key, value, ttl), nil
}

// RedisKV is a KV backed by Redis, shared across service replicas.
type RedisKV struct {
	client redis.UniversalClient
}

// NewRedisKV parses a redis:// URL and returns a connected KV.
func NewRedisKV(ctx context.Context, url string) (*RedisKV, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisKV{client: client}, nil
}

// NewRedisKVFromClient wraps an existing client.
func NewRedisKVFromClient(client redis.UniversalClient) *RedisKV {
	return &RedisKV{client: client}
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	if r == nil || r.client == nil {
		return "", false, errors.New("nil redis kv")
	}
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return val, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if r == nil || r.client == nil {
		return errors.New("nil redis kv")
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisKV) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if r == nil || r.client == nil {
		return false, errors.New("nil redis kv")
	}
	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Close releases the underlying connection pool.
func (r *RedisKV) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

var (
	_ KV = (*MemoryKV)(nil)
	_ KV = (*RedisKV)(nil)
)
