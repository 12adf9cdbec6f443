package crawler

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/webharvest/imgcrawler/internal/metrics"
)

// Scheduler drives the depth-bounded breadth-first walk. It is the sole
// owner of crawl state: downloads run concurrently inside the Downloader, but
// their results are merged back here before the walk continues.
type Scheduler struct {
	cfg        Config
	fetcher    Fetcher
	extractor  Extractor
	downloader Downloader
	logger     *zap.Logger
	pause      pauseController
}

// NewScheduler wires the pipeline collaborators together.
func NewScheduler(
	cfg Config,
	fetcher Fetcher,
	extractor Extractor,
	downloader Downloader,
	logger *zap.Logger,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:        cfg,
		fetcher:    fetcher,
		extractor:  extractor,
		downloader: downloader,
		logger:     logger,
		pause:      &timerPauseController{},
	}
}

// crawlState is owned exclusively by the traversal control flow.
type crawlState struct {
	visited    map[string]struct{}
	discovered map[string]struct{}
	frontier   map[int][]string
	downloaded []DownloadResult
}

func newCrawlState(start string) *crawlState {
	return &crawlState{
		visited:    map[string]struct{}{start: {}},
		discovered: make(map[string]struct{}),
		frontier:   map[int][]string{0: {start}},
	}
}

func (st *crawlState) result() Result {
	return Result{
		Downloaded:       st.downloaded,
		VisitedPages:     sortedKeys(st.visited),
		AssetURLs:        sortedKeys(st.discovered),
		TotalAssetsFound: len(st.discovered),
	}
}

// Crawl walks the site breadth-first from startURL, one full depth level
// before the next, downloading assets as pages are processed. Page fetch
// failures skip the page; nothing aborts the crawl except the configured
// bounds being satisfied.
func (s *Scheduler) Crawl(ctx context.Context, startURL string) (Result, error) {
	start, err := normalizeStartURL(startURL)
	if err != nil {
		return Result{}, fmt.Errorf("invalid start url %q: %w", startURL, err)
	}
	s.logger.Info("starting crawl",
		zap.String("start_url", start),
		zap.Int("max_depth", s.cfg.MaxDepth),
		zap.Int("max_assets", s.cfg.MaxAssets),
	)

	state := newCrawlState(start)

depths:
	for depth := 0; depth <= s.cfg.MaxDepth; depth++ {
		pages := state.frontier[depth]
		if len(pages) == 0 {
			// Frontier exhaustion is a normal end condition.
			break
		}
		s.logger.Info("processing depth",
			zap.Int("depth", depth),
			zap.Int("pages", len(pages)),
		)
		for _, pageURL := range pages {
			if ctx.Err() != nil {
				break depths
			}
			if s.processPage(ctx, state, pageURL, depth) {
				break depths
			}
			s.pause.Pause(ctx, s.cfg.Delay)
		}
	}

	res := state.result()
	s.logger.Info("crawl finished",
		zap.Int("visited_pages", len(res.VisitedPages)),
		zap.Int("assets_found", res.TotalAssetsFound),
		zap.Int("assets_downloaded", len(res.Downloaded)),
	)
	return res, nil
}

// processPage fetches, extracts, and dispatches one page. It reports whether
// the asset cap was reached, which terminates the whole crawl.
func (s *Scheduler) processPage(ctx context.Context, state *crawlState, pageURL string, depth int) (capReached bool) {
	body, err := s.fetcher.FetchPage(ctx, pageURL)
	if err != nil {
		metrics.PagesFailed.Inc()
		s.logger.Warn("page fetch failed, skipping",
			zap.String("url", pageURL),
			zap.Error(err),
		)
		return false
	}
	metrics.PagesFetched.Inc()

	ex, err := s.extractor.Extract(body, pageURL)
	if err != nil {
		s.logger.Warn("extraction failed, skipping page",
			zap.String("url", pageURL),
			zap.Error(err),
		)
		return false
	}
	s.logger.Debug("page extracted",
		zap.String("url", pageURL),
		zap.Int("assets", len(ex.AssetURLs)),
		zap.Int("links", len(ex.LinkURLs)),
	)

	fresh := make([]string, 0, len(ex.AssetURLs))
	for _, asset := range ex.AssetURLs {
		if _, seen := state.discovered[asset]; seen {
			continue
		}
		state.discovered[asset] = struct{}{}
		metrics.AssetsDiscovered.Inc()
		fresh = append(fresh, asset)
	}

	if headroom := s.cfg.MaxAssets - len(state.downloaded); headroom > 0 && len(fresh) > 0 {
		if len(fresh) > headroom {
			fresh = fresh[:headroom]
		}
		results := s.downloader.Batch(ctx, fresh)
		state.downloaded = append(state.downloaded, results...)
	}
	if len(state.downloaded) >= s.cfg.MaxAssets {
		s.logger.Info("asset cap reached, stopping crawl",
			zap.Int("downloaded", len(state.downloaded)),
		)
		return true
	}

	if depth < s.cfg.MaxDepth {
		enqueued := 0
		for _, link := range ex.LinkURLs {
			if _, seen := state.visited[link]; seen {
				continue
			}
			// Visited marks intent-to-enqueue so two pages at the same
			// depth cannot queue the same link twice.
			state.visited[link] = struct{}{}
			state.frontier[depth+1] = append(state.frontier[depth+1], link)
			enqueued++
		}
		if enqueued > 0 {
			s.logger.Debug("links enqueued",
				zap.String("url", pageURL),
				zap.Int("count", enqueued),
				zap.Int("next_depth", depth+1),
			)
		}
	}
	return false
}

// normalizeStartURL assumes https for scheme-less input.
func normalizeStartURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty url")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host")
	}
	return u.String(), nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
