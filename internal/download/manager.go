// Package download persists asset candidates to disk with content-type
// policy, collision-free naming, and a bounded concurrent worker pool.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/webharvest/imgcrawler/internal/crawler"
	"github.com/webharvest/imgcrawler/internal/extract"
	"github.com/webharvest/imgcrawler/internal/fetch"
	"github.com/webharvest/imgcrawler/internal/metrics"
)

// Permanent rejections; never retried.
var (
	errNotImage       = errors.New("content type is not an image")
	errFormatRejected = errors.New("format not in allow-list")
	errEmptyBody      = errors.New("empty response body")
)

const (
	downloadRetries      = 2
	lowSuccessThreshold  = 0.3
	defaultConcurrency   = 5
	defaultBatchSize     = 10
	defaultBatchDelay    = time.Second
	defaultMaxBatchDelay = 30 * time.Second
)

// Config controls Manager behavior.
type Config struct {
	OutputDir     string
	Formats       []string
	Concurrency   int
	BatchSize     int
	BatchDelay    time.Duration
	MaxBatchDelay time.Duration
}

// Manager implements crawler.Downloader. Within a batch, downloads run on a
// bounded pool; the claimed-path registry is the only state shared across
// workers.
type Manager struct {
	transport fetch.Transport
	cfg       Config
	logger    *zap.Logger
	paths     *pathRegistry

	delayMu   sync.Mutex
	nextDelay time.Duration
}

// NewManager builds a Manager and ensures the output directory exists.
func NewManager(transport fetch.Transport, cfg Config, logger *zap.Logger) (*Manager, error) {
	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = defaultBatchDelay
	}
	if cfg.MaxBatchDelay < cfg.BatchDelay {
		cfg.MaxBatchDelay = defaultMaxBatchDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", cfg.OutputDir, err)
	}
	return &Manager{
		transport: transport,
		cfg:       cfg,
		logger:    logger,
		paths:     newPathRegistry(),
		nextDelay: cfg.BatchDelay,
	}, nil
}

// Batch downloads the given URLs, chunked by BatchSize with an inter-chunk
// delay. Partial success is normal: the returned slice holds successes only.
func (m *Manager) Batch(ctx context.Context, urls []string) []crawler.DownloadResult {
	var out []crawler.DownloadResult
	for start := 0; start < len(urls); start += m.cfg.BatchSize {
		if ctx.Err() != nil {
			break
		}
		end := start + m.cfg.BatchSize
		if end > len(urls) {
			end = len(urls)
		}
		if start > 0 {
			if !fetch.Sleep(ctx, m.currentDelay()) {
				break
			}
		}
		chunk := urls[start:end]
		results := m.runChunk(ctx, chunk)
		m.adaptDelay(len(results), len(chunk))
		out = append(out, results...)
	}
	return out
}

func (m *Manager) runChunk(ctx context.Context, urls []string) []crawler.DownloadResult {
	var (
		mu      sync.Mutex
		results []crawler.DownloadResult
	)
	var g errgroup.Group
	g.SetLimit(m.cfg.Concurrency)
	for _, u := range urls {
		g.Go(func() error {
			res, ok := m.downloadWithRetry(ctx, u)
			if ok {
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// downloadWithRetry wraps the per-URL procedure in up to downloadRetries
// extra attempts with 1s, 2s backoff. Permanent rejections are not retried.
func (m *Manager) downloadWithRetry(ctx context.Context, url string) (crawler.DownloadResult, bool) {
	var lastErr error
	for attempt := 0; attempt <= downloadRetries; attempt++ {
		res, err := m.downloadOne(ctx, url)
		if err == nil {
			return res, true
		}
		if isPermanent(err) {
			m.logger.Debug("asset rejected", zap.String("url", url), zap.Error(err))
			return crawler.DownloadResult{}, false
		}
		lastErr = err
		if attempt < downloadRetries {
			metrics.FetchRetries.Inc()
			m.logger.Warn("download failed, retrying",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			if !fetch.Sleep(ctx, time.Duration(1<<attempt)*time.Second) {
				break
			}
		}
	}
	m.logger.Error("download abandoned", zap.String("url", url), zap.Error(lastErr))
	return crawler.DownloadResult{}, false
}

func isPermanent(err error) bool {
	return errors.Is(err, errNotImage) ||
		errors.Is(err, errFormatRejected) ||
		errors.Is(err, errEmptyBody)
}

func (m *Manager) downloadOne(ctx context.Context, url string) (crawler.DownloadResult, error) {
	contentType, err := m.probeContentType(ctx, url)
	if err != nil {
		return crawler.DownloadResult{}, err
	}
	if !strings.HasPrefix(contentType, "image/") {
		metrics.AssetsRejected.Inc()
		return crawler.DownloadResult{}, fmt.Errorf("%w: %s", errNotImage, contentType)
	}
	if err := m.checkFormat(url, contentType); err != nil {
		return crawler.DownloadResult{}, err
	}

	resp, err := m.transport.Get(ctx, url)
	if err != nil {
		return crawler.DownloadResult{}, err
	}
	defer func() {
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return crawler.DownloadResult{}, &fetch.StatusError{Code: resp.StatusCode}
	}
	if ct := strings.ToLower(resp.Header.Get("Content-Type")); ct != "" {
		contentType = ct
	}

	ext := resolveExtension(url, contentType, m.cfg.Formats)
	name := resolveFilename(url, resp.Header, ext)
	target := m.paths.Claim(m.cfg.OutputDir, name)

	size, err := writeStream(target, resp.Body)
	if err != nil {
		m.paths.Release(target)
		return crawler.DownloadResult{}, fmt.Errorf("write %s: %w", target, err)
	}
	if size == 0 {
		_ = os.Remove(target)
		m.paths.Release(target)
		return crawler.DownloadResult{}, errEmptyBody
	}

	metrics.AssetsDownloaded.Inc()
	m.logger.Info("downloaded asset",
		zap.String("url", url),
		zap.String("path", target),
		zap.String("content_type", contentType),
		zap.Int64("bytes", size),
	)
	return crawler.DownloadResult{
		SourceURL:   url,
		SavedPath:   target,
		ByteSize:    size,
		ContentType: contentType,
		Extension:   ext,
	}, nil
}

// probeContentType prefers a metadata-only HEAD; when the origin does not
// support it, falls back to a streaming GET whose body is abandoned after the
// headers arrive.
func (m *Manager) probeContentType(ctx context.Context, url string) (string, error) {
	if resp, err := m.transport.Head(ctx, url); err == nil {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return strings.ToLower(resp.Header.Get("Content-Type")), nil
		}
	}
	resp, err := m.transport.Get(ctx, url)
	if err != nil {
		return "", err
	}
	if resp.Body != nil {
		_ = resp.Body.Close()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &fetch.StatusError{Code: resp.StatusCode}
	}
	return strings.ToLower(resp.Header.Get("Content-Type")), nil
}

// checkFormat enforces the allow-list. Either the URL's own extension or the
// declared content type may satisfy it: some origins negotiate content and
// serve a different encoding than the URL suggests.
func (m *Manager) checkFormat(url, contentType string) error {
	if len(m.cfg.Formats) == 0 {
		return nil
	}
	urlExt := extract.ExtensionFromURL(url)
	urlAllowed := urlExt != "" && formatListed(m.cfg.Formats, urlExt)
	ctAllowed := contentTypeListed(contentType, m.cfg.Formats)
	if !urlAllowed && !ctAllowed {
		metrics.AssetsRejected.Inc()
		return fmt.Errorf("%w: %s (%s)", errFormatRejected, urlExt, contentType)
	}
	if urlAllowed && !ctAllowed {
		m.logger.Warn("content type differs from URL extension, trusting URL",
			zap.String("url", url),
			zap.String("content_type", contentType),
			zap.String("url_extension", urlExt),
		)
	}
	return nil
}

func contentTypeListed(contentType string, formats []string) bool {
	for _, f := range formats {
		if f == "jpg" && strings.Contains(contentType, "jpeg") {
			return true
		}
		if strings.Contains(contentType, f) {
			return true
		}
	}
	return false
}

// writeStream copies body to target, removing the partial file on failure.
func writeStream(target string, body io.Reader) (int64, error) {
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(target)
		return 0, err
	}
	return n, nil
}

func (m *Manager) currentDelay() time.Duration {
	m.delayMu.Lock()
	defer m.delayMu.Unlock()
	return m.nextDelay
}

// adaptDelay widens the inter-batch pause when a batch mostly failed and
// restores the configured pace once batches are healthy again.
func (m *Manager) adaptDelay(successes, total int) {
	if total == 0 {
		return
	}
	m.delayMu.Lock()
	defer m.delayMu.Unlock()
	if float64(successes)/float64(total) < lowSuccessThreshold {
		widened := m.nextDelay * 2
		if widened > m.cfg.MaxBatchDelay {
			widened = m.cfg.MaxBatchDelay
		}
		m.nextDelay = widened
		m.logger.Warn("low batch success rate, widening inter-batch delay",
			zap.Int("successes", successes),
			zap.Int("batch_size", total),
			zap.Duration("next_delay", m.nextDelay),
		)
		return
	}
	m.nextDelay = m.cfg.BatchDelay
}
