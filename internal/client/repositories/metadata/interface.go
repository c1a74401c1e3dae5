// Package metadata stores small client-side facts that outlive a process:
// the signed-in session and bookkeeping of the last sync.
package metadata

import (
	"context"
	"time"
)

// Well-known keys.
const (
	KeySessionToken = "session_token"
	KeyOwnerID      = "owner_id"
	KeyLastSyncAt   = "last_sync_at"
)

// Repository is a key/value store. Get returns (nil, nil) for a missing key.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	GetString(ctx context.Context, key string) (string, error)
	SetString(ctx context.Context, key, value string) error

	// GetTime returns the zero time when the key is missing.
	GetTime(ctx context.Context, key string) (time.Time, error)
	SetTime(ctx context.Context, key string, t time.Time) error
}
