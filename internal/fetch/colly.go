package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gocolly/colly/v2"
)

// CollyTransport is the secondary strategy, used when the plain client is
// rejected. Colly carries its own cookie jar and request shaping, which gets
// past origins that refuse bare clients.
type CollyTransport struct {
	cfg Config
}

// NewCollyTransport builds the secondary transport.
func NewCollyTransport(cfg Config) *CollyTransport {
	return &CollyTransport{cfg: cfg}
}

// Get fetches the URL through a colly collector. The body is buffered by
// colly, so the returned reader is an in-memory view.
func (t *CollyTransport) Get(ctx context.Context, url string) (*Response, error) {
	return t.request(ctx, http.MethodGet, url)
}

// Head issues a metadata-only request through colly.
func (t *CollyTransport) Head(ctx context.Context, url string) (*Response, error) {
	resp, err := t.request(ctx, http.MethodHead, url)
	if err != nil {
		return nil, err
	}
	resp.Body = nil
	return resp, nil
}

func (t *CollyTransport) request(ctx context.Context, method, url string) (*Response, error) {
	opts := []colly.CollectorOption{
		colly.Async(false),
		colly.StdlibContext(ctx),
	}
	if t.cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(t.cfg.UserAgent))
	}
	collector := colly.NewCollector(opts...)
	collector.IgnoreRobotsTxt = true
	if t.cfg.Timeout > 0 {
		collector.SetRequestTimeout(t.cfg.Timeout)
	}

	var (
		resp    *Response
		lastErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		resp = collyResponse(r)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			resp = collyResponse(r)
			return
		}
		lastErr = err
	})

	hdr := make(http.Header)
	applyBrowserHeaders(hdr, t.cfg.UserAgent)
	if err := collector.Request(method, url, nil, nil, hdr); err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	collector.Wait()

	if resp == nil {
		if lastErr != nil {
			return nil, fmt.Errorf("%s %s: %w", method, url, lastErr)
		}
		return nil, fmt.Errorf("%s %s: no response", method, url)
	}
	return resp, nil
}

func collyResponse(r *colly.Response) *Response {
	hdr := make(http.Header)
	if r.Headers != nil {
		for k, vs := range *r.Headers {
			for _, v := range vs {
				hdr.Add(k, v)
			}
		}
	}
	return &Response{
		StatusCode: r.StatusCode,
		Header:     hdr,
		Body:       io.NopCloser(bytes.NewReader(r.Body)),
	}
}
