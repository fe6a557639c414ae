package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"rollcall/internal/types"
)

// Compile-time assertion that RedisStore implements Store.
var _ Store = (*RedisStore)(nil)

// RedisStore implements Store against a Redis server. All operations are
// routed through a circuit breaker so that a down cache store fails fast
// instead of stalling every mirror write on a network timeout. Breaker-open
// and transport failures surface as a cache_unavailable AppError; callers
// treat that as lost cross-process visibility, never as a fatal condition.
type RedisStore struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker[string]
	timeout time.Duration
	logger  *slog.Logger
}

// NewRedisStore creates a RedisStore around the given client. opTimeout
// bounds each individual cache operation.
func NewRedisStore(client *redis.Client, opTimeout time.Duration, logger *slog.Logger) *RedisStore {
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "cache-store",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			// A miss is a normal outcome and must not trip the breaker.
			return err == nil || errors.Is(err, ErrNotFound)
		},
	})

	return &RedisStore{
		client:  client,
		breaker: cb,
		timeout: opTimeout,
		logger:  logger,
	}
}

// Get returns the value stored under key, or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.breaker.Execute(func() (string, error) {
		opCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		v, err := s.client.Get(opCtx, key).Result()
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return v, err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrNotFound
		}
		return "", s.unavailable("get", key, err)
	}
	return val, nil
}

// Set stores value under key with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	_, err := s.breaker.Execute(func() (string, error) {
		opCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		return "", s.client.Set(opCtx, key, value, ttl).Err()
	})
	if err != nil {
		return s.unavailable("set", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	_, err := s.breaker.Execute(func() (string, error) {
		opCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		return "", s.client.Del(opCtx, key).Err()
	})
	if err != nil {
		return s.unavailable("delete", key, err)
	}
	return nil
}

// DeleteByPattern removes every key beginning with prefix. It scans in
// batches rather than using KEYS so a large shared cache is not blocked.
func (s *RedisStore) DeleteByPattern(ctx context.Context, prefix string) error {
	_, err := s.breaker.Execute(func() (string, error) {
		opCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		iter := s.client.Scan(opCtx, 0, prefix+"*", 100).Iterator()
		var keys []string
		for iter.Next(opCtx) {
			keys = append(keys, iter.Val())
			if len(keys) == 100 {
				if err := s.client.Del(opCtx, keys...).Err(); err != nil {
					return "", err
				}
				keys = keys[:0]
			}
		}
		if err := iter.Err(); err != nil {
			return "", err
		}
		if len(keys) > 0 {
			if err := s.client.Del(opCtx, keys...).Err(); err != nil {
				return "", err
			}
		}
		return "", nil
	})
	if err != nil {
		return s.unavailable("delete_by_pattern", prefix, err)
	}
	return nil
}

// Ping verifies connectivity to the cache store. Used by the health probe.
func (s *RedisStore) Ping(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Ping(opCtx).Err(); err != nil {
		return fmt.Errorf("cache: ping: %w", err)
	}
	return nil
}

// unavailable wraps a transport or breaker-open failure as a
// cache_unavailable AppError and logs it once at the store boundary.
func (s *RedisStore) unavailable(op, key string, err error) error {
	s.logger.Warn("cache store operation failed",
		"op", op,
		"key", key,
		"error", err,
	)
	return types.NewAppError(types.ErrCodeCacheUnavailable,
		fmt.Sprintf("cache store %s failed", op), err)
}
