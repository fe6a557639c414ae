// Package cache provides the shared key-value cache store client used across
// the core: ordinary response caching, connection-mirror bookkeeping, and
// queue depth observability all go through the same four-operation contract.
//
// The cache is an external collaborator and is never the source of truth
// within a process. Every caller must tolerate failure: a down cache store
// degrades cross-process visibility, nothing else.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Namespace prefixes every key written by this service. The cache store is
// shared with other subsystems of the attendance platform, so keys must be
// namespaced to avoid collisions.
const Namespace = "rollcall"

// ErrNotFound is returned by Get when the key does not exist or has expired.
// It is a normal outcome, not a failure of the store.
var ErrNotFound = errors.New("cache: key not found")

// Store is the four-operation contract the core requires from its cache
// collaborator.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key with the given time-to-live. A zero ttl
	// stores the value without expiry.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// DeleteByPattern removes every key beginning with prefix.
	DeleteByPattern(ctx context.Context, prefix string) error
}

// Key builds a namespaced cache key from path segments:
// Key("conn", id) -> "rollcall:conn:<id>".
func Key(parts ...string) string {
	return Namespace + ":" + strings.Join(parts, ":")
}
