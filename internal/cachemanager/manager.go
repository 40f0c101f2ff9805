// Package cachemanager provides small generic caches. The source layer uses
// it to skip re-parsing manifests whose file has not changed between builds.
package cachemanager

import (
	"context"
	"time"
)

// CacheManager is a keyed cache with per-entry TTL.
type CacheManager[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K) error
	Flush(ctx context.Context) error
	Len() int
}
