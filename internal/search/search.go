// Package search implements search-engine asset discovery: it queries
// DuckDuckGo's image API for candidate URLs instead of walking a site. There
// is no traversal state here, only a paginated query loop with shallow
// per-page error tolerance.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/webharvest/imgcrawler/internal/fetch"
)

const (
	tokenURL   = "https://duckduckgo.com/"
	resultsURL = "https://duckduckgo.com/i.js"
	pageSize   = 50
	maxPages   = 10
)

var vqdPatterns = []*regexp.Regexp{
	regexp.MustCompile(`vqd="([^"]+)"`),
	regexp.MustCompile(`vqd=([\d-]+)&`),
}

// Config controls a search run.
type Config struct {
	MaxResults int
	Formats    []string
}

// Client queries the image search API through a fetch.Transport.
type Client struct {
	transport fetch.Transport
	cfg       Config
	logger    *zap.Logger
}

// New builds a search client.
func New(transport fetch.Transport, cfg Config, logger *zap.Logger) *Client {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 25
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{transport: transport, cfg: cfg, logger: logger}
}

// Search returns up to MaxResults candidate image URLs for query, deduped in
// discovery order. Page-level failures are logged and skipped; only a failed
// token handshake aborts the search.
func (c *Client) Search(ctx context.Context, query string) ([]string, error) {
	vqd, err := c.token(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search token: %w", err)
	}

	var (
		urls []string
		seen = make(map[string]struct{})
	)
	pages := c.cfg.MaxResults/pageSize + 1
	if pages > maxPages {
		pages = maxPages
	}
	for page := 0; page < pages; page++ {
		if len(urls) >= c.cfg.MaxResults {
			break
		}
		if page > 0 {
			// Randomized delay between pages to avoid rate limiting.
			if !fetch.Sleep(ctx, time.Second+rand.N(2*time.Second)) {
				break
			}
		}
		batch, err := c.resultsPage(ctx, query, vqd, page*pageSize)
		if err != nil {
			c.logger.Warn("search page failed, continuing",
				zap.Int("page", page+1),
				zap.Error(err),
			)
			continue
		}
		fresh := 0
		for _, u := range batch {
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			urls = append(urls, u)
			fresh++
		}
		c.logger.Info("search page fetched",
			zap.Int("page", page+1),
			zap.Int("new_results", fresh),
		)
		if fresh == 0 || len(batch) < 20 {
			break
		}
	}
	if len(urls) > c.cfg.MaxResults {
		urls = urls[:c.cfg.MaxResults]
	}
	return urls, nil
}

// token fetches the front page to extract the vqd token the API requires.
func (c *Client) token(ctx context.Context, query string) (string, error) {
	resp, err := c.transport.Get(ctx, tokenURL+"?q="+url.QueryEscape(query))
	if err != nil {
		return "", err
	}
	defer func() {
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &fetch.StatusError{Code: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token page: %w", err)
	}
	for _, p := range vqdPatterns {
		if m := p.FindSubmatch(body); m != nil {
			return string(m[1]), nil
		}
	}
	return "", fmt.Errorf("vqd token not found")
}

func (c *Client) resultsPage(ctx context.Context, query, vqd string, offset int) ([]string, error) {
	params := url.Values{
		"q":   {query},
		"o":   {"json"},
		"vqd": {vqd},
		"p":   {"1"},
		"s":   {strconv.Itoa(offset)},
		"t":   {"images"},
		"iax": {"images"},
	}
	if len(c.cfg.Formats) > 0 {
		params.Set("f", strings.Join(c.cfg.Formats, ","))
	}

	resp, err := c.transport.Get(ctx, resultsURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}
	defer func() {
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &fetch.StatusError{Code: resp.StatusCode}
	}

	var payload struct {
		Results []struct {
			Image string `json:"image"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	var out []string
	for _, r := range payload.Results {
		if strings.HasPrefix(r.Image, "http") {
			out = append(out, r.Image)
		}
	}
	return out, nil
}
