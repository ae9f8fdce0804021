// Package storage provides the object store gateway used by the pipeline.
// All heavy consumers (audio tasks, the ASR service) receive presigned URLs
// instead of credentials so the backing store can be swapped without
// touching them.
package storage

import (
	"context"
	"io"
	"time"
)

type (
	// Option adjusts a single gateway call. The only supported adjustment is
	// a bucket override: inbound recordings may live in a different bucket
	// from produced artifacts.
	Option func(*callOptions)

	callOptions struct {
		bucket string
	}

	// ObjectInfo describes one listed object.
	ObjectInfo struct {
		Key  string
		Size int64
	}

	// Store is the narrow object-store surface the pipeline depends on.
	// Implementations must be safe for concurrent use.
	Store interface {
		// Put uploads the reader's content under key.
		Put(ctx context.Context, key string, body io.Reader, opts ...Option) error
		// Get downloads the object at key. The caller owns the returned reader.
		Get(ctx context.Context, key string, opts ...Option) (io.ReadCloser, error)
		// Delete removes the object at key. Deleting a missing key is not an error.
		Delete(ctx context.Context, key string, opts ...Option) error
		// List returns the objects under prefix.
		List(ctx context.Context, prefix string, opts ...Option) ([]ObjectInfo, error)
		// PresignGet returns a time-limited download URL for key.
		PresignGet(ctx context.Context, key string, ttl time.Duration, opts ...Option) (string, error)
		// PresignPut returns a time-limited upload URL for key.
		PresignPut(ctx context.Context, key string, ttl time.Duration, opts ...Option) (string, error)
	}
)

// WithBucket overrides the gateway's default bucket for one call.
func WithBucket(bucket string) Option {
	return func(o *callOptions) { o.bucket = bucket }
}

func applyOptions(defaultBucket string, opts []Option) string {
	o := callOptions{bucket: defaultBucket}
	for _, opt := range opts {
		opt(&o)
	}
	return o.bucket
}
