// Package cache is the injected get/set/TTL store used for derived reads such
// as trust reports and identity lookups. Values are JSON encoded.
package cache

import (
	"context"
	"time"
)

type Cache interface {
	// Get decodes the value stored at key into dst. It reports false when the
	// key is missing or expired.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
