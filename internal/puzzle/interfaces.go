package puzzle

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves a URL and returns the raw body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// BlobStore writes artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RetrievalStore records one audit row per pipeline run.
type RetrievalStore interface {
	StoreRetrieval(ctx context.Context, record RetrievalRecord) error
	Close() error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces unique identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// RetrievalRecord is the audit row written for each pipeline run.
type RetrievalRecord struct {
	ID          string
	URL         string
	Strategy    string
	GridPath    string
	Status      string
	ErrorText   string
	ImageURL    string
	ImageDigest string
	StartedAt   time.Time
	CompletedAt time.Time
}

// Notification is published once a puzzle has been assembled.
type Notification struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Date     *string `json:"date,omitempty"`
	ImageURL string  `json:"image_url,omitempty"`
	GridPath string  `json:"grid_path"`
	Rows     int     `json:"rows"`
	Cols     int     `json:"cols"`
}
