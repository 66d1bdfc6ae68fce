package db

import "context"

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BlobStore is a flat key/value store of serialized records. It backs the
// persistent cache tier; drivers live in the file and redis subpackages.
type BlobStore interface {
	Pinger
	// Get returns ErrKeyNotFound when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Del is a no-op for absent keys.
	Del(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// KV is one bucket entry.
type KV struct {
	Key   string
	Value []byte
}

// BucketStore groups records into named buckets. Implemented by the bolt driver.
type BucketStore interface {
	Pinger
	PutMulti(ctx context.Context, bucket string, items []KV) error
	DelMulti(ctx context.Context, bucket string, keys []string) error
	ForEach(ctx context.Context, bucket string, fn func(key string, value []byte) error) error
}
