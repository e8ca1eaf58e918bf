// Package cache defines the key-value cache port. The service layer uses it
// to remember which payment webhook deliveries were already applied.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque values by key. A miss is (nil, false, nil), never an
// error. A ttl of zero leaves expiry to the implementation's default.
// Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
