package ports

import (
	"context"

	"github.com/avatarctic/offline-cache/internal/core/domain/cache"
)

// CacheNamespace is one named partition of the cache store.
// Put replaces any entry under the same key atomically.
type CacheNamespace interface {
	Name() string
	// Match returns the entry stored under key. ok=false if not found.
	Match(ctx context.Context, key string) (*cache.Entry, bool, error)
	Put(ctx context.Context, entry *cache.Entry) error
	Keys(ctx context.Context) ([]string, error)
}

// CacheStorage is the persistent set of namespaces.
type CacheStorage interface {
	// Open returns the namespace, creating it when missing.
	Open(ctx context.Context, name string) (CacheNamespace, error)
	Has(ctx context.Context, name string) (bool, error)
	// Delete removes the namespace and all its entries. deleted=false if it did not exist.
	Delete(ctx context.Context, name string) (bool, error)
	// Names lists namespaces in creation order.
	Names(ctx context.Context) ([]string, error)
	// Match searches every namespace in creation order and returns the first hit.
	Match(ctx context.Context, key string) (*cache.Entry, bool, error)
}

// CacheMetrics records cache controller outcomes. Implementations must be safe for concurrent use.
type CacheMetrics interface {
	ObserveLookup(namespace, result string)
	ObserveWrite(namespace, result string)
	ObserveResponse(strategy, outcome string)
	ObserveNamespacesDeleted(n int)
}
