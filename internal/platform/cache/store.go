// Package cache provides byte-oriented key/value stores with expiry used to
// hold read-mostly snapshots in front of Postgres.
package cache

import (
	"context"
	"time"
)

// Store is a key/value cache. Get reports a miss with ok == false and a nil
// error; a non-nil error means the backend itself failed.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// DefaultTTL is used when a store is built with a non-positive ttl.
const DefaultTTL = 5 * time.Minute

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
