// Package idempotency records which order an Idempotency-Key produced, in
// process memory or in Redis.
package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/rihla-backoffice/internal/domain/order"
)

// DefaultTTL is how long a key is remembered.
const DefaultTTL = 24 * time.Hour

// pending marks a key whose placement has not finished.
const pending = "pending"

var (
	_ order.IdempotencyStore = (*Memory)(nil)
	_ order.IdempotencyStore = (*Redis)(nil)
)

type entry struct {
	value   string
	expires time.Time
}

// Memory is a process-local store.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
}

// NewMemory returns a Memory that forgets keys after ttl.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{ttl: ttl, now: time.Now, entries: make(map[string]entry)}
}

// Claim implements order.IdempotencyStore.
func (m *Memory) Claim(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.entries[key]; ok && now.Before(e.expires) {
		if e.value == pending {
			return "", false, nil
		}
		return e.value, false, nil
	}
	m.entries[key] = entry{value: pending, expires: now.Add(m.ttl)}
	m.sweep(now)
	return "", true, nil
}

// Complete implements order.IdempotencyStore.
func (m *Memory) Complete(_ context.Context, key, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{value: orderID, expires: m.now().Add(m.ttl)}
	return nil
}

// Release implements order.IdempotencyStore.
func (m *Memory) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) sweep(now time.Time) {
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
		}
	}
}

// Redis stores keys in Redis so replicas share them.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedis returns a Redis store. Keys are namespaced with prefix.
func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) key(k string) string {
	return r.prefix + ":idempotency:" + k
}

// Claim implements order.IdempotencyStore.
func (r *Redis) Claim(ctx context.Context, key string) (string, bool, error) {
	k := r.key(key)
	// A key can expire between SETNX and GET; one more round settles it.
	for range 2 {
		ok, err := r.client.SetNX(ctx, k, pending, r.ttl).Result()
		if err != nil {
			return "", false, errors.Wrap(err, "setnx")
		}
		if ok {
			return "", true, nil
		}

		v, err := r.client.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return "", false, errors.Wrap(err, "get")
		}
		if v == pending {
			return "", false, nil
		}
		return v, false, nil
	}
	return "", false, nil
}

// Complete implements order.IdempotencyStore.
func (r *Redis) Complete(ctx context.Context, key, orderID string) error {
	if err := r.client.Set(ctx, r.key(key), orderID, r.ttl).Err(); err != nil {
		return errors.Wrap(err, "set")
	}
	return nil
}

// Release implements order.IdempotencyStore.
func (r *Redis) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return errors.Wrap(err, "del")
	}
	return nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
