// Package bolt implements db.BucketStore on an embedded bbolt file.
package bolt

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/kailas-cloud/coderag/internal/db"
)

// Compile-time check: Store implements db.BucketStore.
var _ db.BucketStore = (*Store)(nil)

// Store wraps a bbolt database. Buckets are created on first write.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the database file at path.
// Timeout bounds the wait for the file lock held by another process.
func Open(path string, timeout time.Duration) (*Store, error) {
	bdb, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	return &Store{db: bdb}, nil
}

// Ping runs an empty read transaction.
func (s *Store) Ping(_ context.Context) error {
	if err := s.db.View(func(*bbolt.Tx) error { return nil }); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// PutMulti writes items in one transaction.
func (s *Store) PutMulti(ctx context.Context, bucket string, items []db.KV) error {
	if len(items) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := b.Put([]byte(it.Key), it.Value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &db.Error{Op: db.OpBoltPut, Err: err}
	}
	return nil
}

// DelMulti removes keys in one transaction. Absent keys and buckets are ignored.
func (s *Store) DelMulti(ctx context.Context, bucket string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		for _, k := range keys {
			if err := b.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &db.Error{Op: db.OpBoltDelete, Err: err}
	}
	return nil
}

// ForEach calls fn for every entry in bucket in key order. The value slice is
// only valid during the call.
func (s *Store) ForEach(ctx context.Context, bucket string, fn func(key string, value []byte) error) error {
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(string(k), v)
		})
	})
	if err != nil {
		return &db.Error{Op: db.OpBoltScan, Err: err}
	}
	return nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}
