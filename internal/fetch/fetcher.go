package fetch

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/webharvest/imgcrawler/internal/metrics"
)

// FetchError is returned once every attempt at a URL has been exhausted.
type FetchError struct {
	URL       string
	LastCause error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.LastCause)
}

// Unwrap exposes the final attempt's cause.
func (e *FetchError) Unwrap() error { return e.LastCause }

// StatusError marks a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Fetcher retrieves page bodies through a Transport, composing retry and
// backoff at this layer. It implements crawler.Fetcher.
type Fetcher struct {
	transport Transport
	policy    *RetryPolicy
	logger    *zap.Logger
}

// NewFetcher builds a Fetcher allowing maxRetries total attempts per URL.
func NewFetcher(transport Transport, maxRetries int, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		transport: transport,
		policy:    NewRetryPolicy(maxRetries),
		logger:    logger,
	}
}

// FetchPage returns the page body, or a *FetchError after all attempts fail.
func (f *Fetcher) FetchPage(ctx context.Context, url string) (string, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		body, err := f.attempt(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !f.policy.ShouldRetry(err, attempt+1) {
			break
		}
		metrics.FetchRetries.Inc()
		f.logger.Warn("page fetch failed, retrying",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		if !Sleep(ctx, f.policy.Backoff(attempt)) {
			break
		}
	}
	return "", &FetchError{URL: url, LastCause: lastErr}
}

func (f *Fetcher) attempt(ctx context.Context, url string) (string, error) {
	resp, err := f.transport.Get(ctx, url)
	if err != nil {
		return "", err
	}
	defer func() {
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{Code: resp.StatusCode}
	}
	if resp.Body == nil {
		return "", fmt.Errorf("empty response body for %s", url)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}
