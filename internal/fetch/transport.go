// Package fetch provides the transport boundary and the retrying page
// fetcher composed on top of it.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Response is the transport-level result of a single request. Body is nil for
// HEAD requests and must be closed by the caller otherwise.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Transport performs one HTTP exchange. Implementations own connection
// handling, headers, and per-request timeouts; retry composition lives above
// this interface.
type Transport interface {
	Get(ctx context.Context, url string) (*Response, error)
	Head(ctx context.Context, url string) (*Response, error)
}

// Config controls transport behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// HTTPTransport is the primary strategy: a plain pooled HTTP client sending
// browser-shaped headers.
type HTTPTransport struct {
	cfg    Config
	client *http.Client
}

// NewHTTPTransport builds the primary transport.
func NewHTTPTransport(cfg Config) *HTTPTransport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &HTTPTransport{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
	}
}

// Get issues a streaming GET.
func (t *HTTPTransport) Get(ctx context.Context, url string) (*Response, error) {
	return t.do(ctx, http.MethodGet, url)
}

// Head issues a metadata-only request.
func (t *HTTPTransport) Head(ctx context.Context, url string) (*Response, error) {
	resp, err := t.do(ctx, http.MethodHead, url)
	if err != nil {
		return nil, err
	}
	if resp.Body != nil {
		if cerr := resp.Body.Close(); cerr != nil {
			return nil, fmt.Errorf("close head body: %w", cerr)
		}
		resp.Body = nil
	}
	return resp, nil
}

func (t *HTTPTransport) do(ctx context.Context, method, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	applyBrowserHeaders(req.Header, t.cfg.UserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

func applyBrowserHeaders(h http.Header, userAgent string) {
	if userAgent != "" {
		h.Set("User-Agent", userAgent)
	}
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	h.Set("Connection", "keep-alive")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Cache-Control", "max-age=0")
}

// FallbackTransport tries the primary strategy and falls back to the
// secondary on rejection codes that usually mean bot detection. The concrete
// bypass strategy stays behind the Transport interface.
type FallbackTransport struct {
	primary   Transport
	secondary Transport
}

// NewFallbackTransport composes two strategies.
func NewFallbackTransport(primary, secondary Transport) *FallbackTransport {
	return &FallbackTransport{primary: primary, secondary: secondary}
}

// Get tries the primary transport, switching to the secondary on 403/429.
func (t *FallbackTransport) Get(ctx context.Context, url string) (*Response, error) {
	resp, err := t.primary.Get(ctx, url)
	if err != nil || !rejectionStatus(resp.StatusCode) {
		return resp, err
	}
	if resp.Body != nil {
		_ = resp.Body.Close()
	}
	alt, altErr := t.secondary.Get(ctx, url)
	if altErr != nil {
		// Keep the primary's rejection; the caller sees the original status.
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header}, nil
	}
	return alt, nil
}

// Head behaves like Get for metadata-only requests.
func (t *FallbackTransport) Head(ctx context.Context, url string) (*Response, error) {
	resp, err := t.primary.Head(ctx, url)
	if err != nil || !rejectionStatus(resp.StatusCode) {
		return resp, err
	}
	alt, altErr := t.secondary.Head(ctx, url)
	if altErr != nil {
		return resp, nil
	}
	return alt, nil
}

func rejectionStatus(code int) bool {
	return code == http.StatusForbidden || code == http.StatusTooManyRequests
}
