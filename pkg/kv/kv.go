// Package kv provides the durable string-keyed storage the session is
// persisted in. Backends: a directory of files, SQLite, Redis, and memory.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("kv: key not found")

// Store is a durable, process-independent string key-value store.
// Remove must succeed when the key is already absent.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
