package ecfr

import (
	"context"
	"time"
)

// Fetcher retrieves a URL body, applying retry policy internally. A 404 is
// surfaced as ErrTitleNotFound without retries.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Hasher computes digests for content checksums.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing date fallback).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
