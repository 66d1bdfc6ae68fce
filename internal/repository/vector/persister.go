package vector

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/coderag/internal/db"
	"github.com/kailas-cloud/coderag/internal/domain/document"
)

// DefaultBucket holds the documents of the single workspace store.
const DefaultBucket = "documents"

// bucketStore is the consumer interface for document persistence (ISP).
type bucketStore interface {
	PutMulti(ctx context.Context, bucket string, items []db.KV) error
	DelMulti(ctx context.Context, bucket string, keys []string) error
	ForEach(ctx context.Context, bucket string, fn func(key string, value []byte) error) error
}

// BucketPersister stores documents as JSON records keyed by document ID.
type BucketPersister struct {
	store  bucketStore
	bucket string
	logger *zap.Logger
}

// NewBucketPersister creates a persister over one bucket.
func NewBucketPersister(s bucketStore, bucket string, logger *zap.Logger) *BucketPersister {
	if bucket == "" {
		bucket = DefaultBucket
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BucketPersister{store: s, bucket: bucket, logger: logger}
}

// Put writes docs in one batch.
func (p *BucketPersister) Put(ctx context.Context, docs []document.Document) error {
	items := make([]db.KV, 0, len(docs))
	for i := range docs {
		data, err := json.Marshal(toDTO(&docs[i]))
		if err != nil {
			return fmt.Errorf("marshal document %s: %w", docs[i].ID(), err)
		}
		items = append(items, db.KV{Key: docs[i].ID(), Value: data})
	}
	if err := p.store.PutMulti(ctx, p.bucket, items); err != nil {
		return fmt.Errorf("put %d documents: %w", len(items), err)
	}
	return nil
}

// Delete removes documents by ID.
func (p *BucketPersister) Delete(ctx context.Context, ids []string) error {
	if err := p.store.DelMulti(ctx, p.bucket, ids); err != nil {
		return fmt.Errorf("delete %d documents: %w", len(ids), err)
	}
	return nil
}

// LoadAll reads every document. Undecodable records are logged and skipped.
func (p *BucketPersister) LoadAll(ctx context.Context) ([]document.Document, error) {
	var docs []document.Document
	err := p.store.ForEach(ctx, p.bucket, func(key string, value []byte) error {
		var dto docDTO
		if err := json.Unmarshal(value, &dto); err != nil {
			p.logger.Warn("skipping undecodable document", zap.String("id", key), zap.Error(err))
			return nil
		}
		d, err := fromDTO(key, dto)
		if err != nil {
			p.logger.Warn("skipping undecodable document", zap.String("id", key), zap.Error(err))
			return nil
		}
		docs = append(docs, d)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan bucket %s: %w", p.bucket, err)
	}
	return docs, nil
}
