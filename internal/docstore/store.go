// Package docstore is the document store behind the pipeline: inbound
// documents, produced summaries and failure artifacts, addressed as
// bucket/key blobs with prefix listing.
//
// S3Store is the production implementation. MemStore backs tests and
// DirStore lets the CLI run the pipeline against a local directory tree
// where each top-level directory stands in for a bucket.
package docstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("document not found")

// Content types written by the pipeline.
const (
	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain"
)

// Store is a key→blob map with prefix listing. Implementations must be safe
// for concurrent use; writes are last-write-wins by key.
type Store interface {
	// Get returns the object body. Missing keys return an error wrapping ErrNotFound.
	Get(ctx context.Context, bucket, key string) ([]byte, error)

	// Put creates or replaces the object.
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error

	// List returns every key under prefix, in lexical order.
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}
