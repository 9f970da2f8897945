package da

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves the listing page. Implementations pace themselves between calls.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Extractor maps a fetched page to candidates and pagination metadata.
type Extractor interface {
	Extract(page Page) (Listing, error)
}

// RecordStore persists records keyed by council reference.
type RecordStore interface {
	Upsert(ctx context.Context, record Record) error
	CountOlderThan(ctx context.Context, cutoff time.Time) (count int64, oldest time.Time, err error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Compact(ctx context.Context) error
	Close() error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
