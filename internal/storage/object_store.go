package storage

import (
	"context"
	"io"
)

// Object is a stored blob's name and size, as reported by a listing.
type Object struct {
	Name string
	Size int64
}

// ObjectStore holds sweep artifacts: trained model checkpoints, classification
// reports, and cached corpora. Keys are slash-separated paths within a bucket.
type ObjectStore interface {
	CreateBucket(ctx context.Context, bucket string) error

	PutObject(ctx context.Context, bucket, key string, data io.Reader) error

	DeleteObjects(ctx context.Context, bucket, prefix string) error

	DownloadDir(ctx context.Context, bucket, prefix, dest string, overwrite bool) error

	UploadDir(ctx context.Context, bucket, prefix, src string) error
}
