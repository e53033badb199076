// Package storage provides the source loaders and result stores the
// pipeline orchestrates: HTTP fetch, filesystem, S3-compatible object
// storage and a redis result cache.
package storage

import (
	"context"
	"errors"
	"time"
)

// Blob is one stored or fetched payload.
type Blob struct {
	Data        []byte
	ContentType string
}

// ErrNotFound reports a key or URI no backend could produce. Loaders and
// stores wrap it so callers can branch with errors.Is.
var ErrNotFound = errors.New("not found")

// Loader resolves a source image URI to its bytes.
type Loader interface {
	Load(ctx context.Context, uri string) (Blob, error)
}

// Store persists blobs under a key. TTL of zero means no expiry; stores
// without expiry support ignore it.
type Store interface {
	Get(ctx context.Context, key string) (Blob, error)
	Put(ctx context.Context, key string, blob Blob, ttl time.Duration) error
}

// LoaderChain tries each loader in order and returns the first success.
// Exhausting the chain yields ErrNotFound carrying the last cause.
type LoaderChain []Loader

func (c LoaderChain) Load(ctx context.Context, uri string) (Blob, error) {
	var lastErr error
	for _, l := range c {
		blob, err := l.Load(ctx, uri)
		if err == nil {
			return blob, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return Blob{}, ctx.Err()
		}
	}
	if lastErr == nil {
		lastErr = ErrNotFound
	}
	return Blob{}, lastErr
}
