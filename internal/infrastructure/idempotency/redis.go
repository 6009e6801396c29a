package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "idem:"
	pendingMarker = "\x00pending"
)

// RedisStore claims keys with SET NX so concurrent replicas agree on a single owner.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Claim(ctx context.Context, key string) (Claim, error) {
	if key == "" {
		return Claim{}, ErrEmptyKey
	}
	ok, err := s.rdb.SetNX(ctx, keyPrefix+key, pendingMarker, s.ttl).Result()
	if err != nil {
		return Claim{}, fmt.Errorf("idempotency: claim %q: %w", key, err)
	}
	if ok {
		return Claim{State: Acquired}, nil
	}

	val, err := s.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; try once more
		return s.Claim(ctx, key)
	}
	if err != nil {
		return Claim{}, fmt.Errorf("idempotency: read %q: %w", key, err)
	}
	if string(val) == pendingMarker {
		return Claim{State: InFlight}, nil
	}
	return Claim{State: Completed, Response: val}, nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, response []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := s.rdb.Set(ctx, keyPrefix+key, response, s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: complete %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("idempotency: release %q: %w", key, err)
	}
	return nil
}
