package store

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by Get when the key does not exist. Callers
// treat it as a normal negative result, distinct from connectivity errors.
var ErrKeyNotFound = errors.New("key not found")

// KV is the external key-value store that holds session records and attempt
// counters. It is the single source of truth: nothing above it caches state
// across requests. TTLs let stale counters and orphaned sessions self-expire
// even if the cleanup sweep never runs.
//
// Any other error than ErrKeyNotFound means the store is unreachable or
// misbehaving. Lockout-path callers must treat such errors as a denial
// (fail closed); advisory reads and audit logging swallow them (fail open).
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	Keys(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
}

// Key builders. Session records and the per-user index are stored under
// separate keys and updated non-atomically; readers repair dangling index
// entries instead of assuming transactional consistency.

func SessionKey(sessionID string) string {
	return "session:" + sessionID
}

func UserSessionsKey(userID string) string {
	return "user_sessions:" + userID
}

func AttemptCountKey(identifier string) string {
	return "attempt:count:" + identifier
}

func AttemptFirstKey(identifier string) string {
	return "attempt:first:" + identifier
}

func AttemptLastKey(identifier string) string {
	return "attempt:last:" + identifier
}

func AttemptLockKey(identifier string) string {
	return "attempt:lock:" + identifier
}

// SessionKeyPrefix is used by the cleanup sweep to enumerate all sessions.
const SessionKeyPrefix = "session:"
