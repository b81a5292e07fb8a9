// Package blob provides the durable, name-keyed cache level. A Store holds
// opaque named payloads that survive process restarts; Cached layers a typed
// build-once value on top of a Store. Entries are invalidated only by
// deleting the backing storage, there is no automatic expiry.
package blob

import (
	"context"
)

// Store is durable named blob storage. Get returns errors.ErrCacheMiss when
// no entry exists under the name and errors.ErrCacheCorrupt when an entry
// exists but fails integrity checks.
type Store interface {
	Get(ctx context.Context, name string) ([]byte, error)
	Put(ctx context.Context, name string, data []byte) error
	Delete(ctx context.Context, name string) error
	Ping(ctx context.Context) error
}
