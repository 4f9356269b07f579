package domain

import (
	"context"
	"io"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader retrieves data from object storage. Get returns ErrNotFound for
// a missing object.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
}
