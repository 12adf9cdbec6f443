// Package crawler implements the depth-bounded breadth-first crawl
// orchestrator and the core types shared across subsystems.
package crawler

import (
	"context"
	"time"
)

// DownloadResult describes one asset persisted to disk. It is immutable once
// created and corresponds one-to-one with a file under the output directory.
type DownloadResult struct {
	SourceURL   string
	SavedPath   string
	ByteSize    int64
	ContentType string
	Extension   string
}

// Result is the read-only outcome of a finished crawl.
type Result struct {
	Downloaded       []DownloadResult
	VisitedPages     []string
	AssetURLs        []string
	TotalAssetsFound int
}

// Extraction holds the candidate asset URLs and same-host link URLs pulled
// from a single page.
type Extraction struct {
	AssetURLs []string
	LinkURLs  []string
}

// Fetcher retrieves a page body, retrying internally. A returned error means
// all attempts were exhausted; the scheduler skips the page and moves on.
type Fetcher interface {
	FetchPage(ctx context.Context, url string) (string, error)
}

// Extractor maps page content plus its base URL to candidate assets and
// same-host links. Implementations must be pure and deterministic.
type Extractor interface {
	Extract(body, baseURL string) (Extraction, error)
}

// Downloader persists a batch of asset candidates. The returned slice holds
// successes only; per-asset failures are logged and counted by the
// implementation, never surfaced as a batch error.
type Downloader interface {
	Batch(ctx context.Context, urls []string) []DownloadResult
}

// Config holds the settings for a crawl session.
type Config struct {
	MaxDepth  int
	MaxAssets int
	Delay     time.Duration
}
