package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("storage: not found")

// Bucket names for the logical tables the offline core persists.
const (
	BucketTasks    = "tasks"
	BucketQueue    = "queue"
	BucketMetadata = "metadata"
	BucketMarker   = "marker"
)

type Row struct {
	Key   string
	Value []byte
}

// RowStore is the generic persistent row store the offline core runs on.
// Rows are opaque byte values keyed within a named bucket; the stores built
// on top own serialization and all size accounting.
type RowStore interface {
	Put(ctx context.Context, bucket, key string, value []byte) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error
	List(ctx context.Context, bucket string) ([]Row, error)
	Clear(ctx context.Context, bucket string) error
	Close() error
}
