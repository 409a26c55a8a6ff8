// Package storage persists client session state behind a small key/value capability so the
// medium (memory, a YAML file, Redis, SQL) can be swapped without touching the services.
package storage

import (
	"context"
	"errors"
)

// Keys written by the session service. Values are plain strings; the user record is JSON.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUser         = "user"
	KeyMuted        = "muted"
)

// ErrNotFound is returned by Get when the key has never been set or was removed.
var ErrNotFound = errors.New("storage: key not found")

// Store is durable client-side key/value storage with no expiry or versioning.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Closer is implemented by stores holding external connections.
type Closer interface {
	Close() error
}
