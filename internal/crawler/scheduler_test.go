package crawler_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/webharvest/imgcrawler/internal/crawler"
)

type fakeFetcher struct {
	pages map[string]string
	fail  map[string]bool
	calls []string
}

func (f *fakeFetcher) FetchPage(_ context.Context, pageURL string) (string, error) {
	f.calls = append(f.calls, pageURL)
	if f.fail[pageURL] {
		return "", fmt.Errorf("status 500")
	}
	return f.pages[pageURL], nil
}

// fakeExtractor keys pre-built extractions by the page URL the body names.
type fakeExtractor struct {
	byPage map[string]crawler.Extraction
}

func (f *fakeExtractor) Extract(body, _ string) (crawler.Extraction, error) {
	return f.byPage[body], nil
}

type fakeDownloader struct {
	batches [][]string
}

func (f *fakeDownloader) Batch(_ context.Context, urls []string) []crawler.DownloadResult {
	f.batches = append(f.batches, urls)
	out := make([]crawler.DownloadResult, 0, len(urls))
	for _, u := range urls {
		out = append(out, crawler.DownloadResult{SourceURL: u, SavedPath: "/tmp/x", ByteSize: 1})
	}
	return out
}

func newTestScheduler(cfg crawler.Config, f *fakeFetcher, e *fakeExtractor, d *fakeDownloader) *crawler.Scheduler {
	return crawler.NewScheduler(cfg, f, e, d, zap.NewNop())
}

func TestCrawlDepthZeroVisitsOnlyStart(t *testing.T) {
	start := "https://x.test/"
	fetcher := &fakeFetcher{pages: map[string]string{start: start}}
	extractor := &fakeExtractor{byPage: map[string]crawler.Extraction{
		start: {
			AssetURLs: []string{"https://x.test/a.jpg"},
			LinkURLs: []string{
				"https://x.test/p1", "https://x.test/p2", "https://x.test/p3",
			},
		},
	}}
	downloader := &fakeDownloader{}

	sched := newTestScheduler(crawler.Config{MaxDepth: 0, MaxAssets: 100}, fetcher, extractor, downloader)
	res, err := sched.Crawl(context.Background(), start)
	require.NoError(t, err)

	require.Equal(t, []string{start}, fetcher.calls)
	require.Equal(t, []string{start}, res.VisitedPages)
	require.Len(t, res.Downloaded, 1)
}

func TestCrawlBreadthFirstOrder(t *testing.T) {
	const (
		start = "https://x.test/"
		p1    = "https://x.test/p1"
		p2    = "https://x.test/p2"
		p3    = "https://x.test/p3"
	)
	fetcher := &fakeFetcher{pages: map[string]string{start: start, p1: p1, p2: p2, p3: p3}}
	extractor := &fakeExtractor{byPage: map[string]crawler.Extraction{
		start: {LinkURLs: []string{p1, p2}},
		p1:    {LinkURLs: []string{p3}},
		p2:    {LinkURLs: []string{p3}},
	}}
	downloader := &fakeDownloader{}

	sched := newTestScheduler(crawler.Config{MaxDepth: 2, MaxAssets: 100}, fetcher, extractor, downloader)
	_, err := sched.Crawl(context.Background(), start)
	require.NoError(t, err)

	// Depth 0, then both depth-1 pages, then p3 exactly once despite being
	// linked from two pages.
	require.Equal(t, []string{start, p1, p2, p3}, fetcher.calls)
}

func TestCrawlAssetCapTruncatesDispatch(t *testing.T) {
	start := "https://x.test/"
	assets := []string{
		"https://x.test/1.jpg", "https://x.test/2.jpg", "https://x.test/3.jpg",
		"https://x.test/4.jpg", "https://x.test/5.jpg",
	}
	fetcher := &fakeFetcher{pages: map[string]string{start: start}}
	extractor := &fakeExtractor{byPage: map[string]crawler.Extraction{
		start: {AssetURLs: assets, LinkURLs: []string{"https://x.test/next"}},
	}}
	downloader := &fakeDownloader{}

	sched := newTestScheduler(crawler.Config{MaxDepth: 3, MaxAssets: 3}, fetcher, extractor, downloader)
	res, err := sched.Crawl(context.Background(), start)
	require.NoError(t, err)

	require.Len(t, downloader.batches, 1)
	require.Equal(t, assets[:3], downloader.batches[0])
	require.Len(t, res.Downloaded, 3)
	require.Equal(t, 5, res.TotalAssetsFound)
	// Cap reached on the start page, so the depth-1 link is never fetched.
	require.Equal(t, []string{start}, fetcher.calls)
}

func TestCrawlSkipsFailedPages(t *testing.T) {
	const (
		start = "https://x.test/"
		bad   = "https://x.test/bad"
		good  = "https://x.test/good"
	)
	fetcher := &fakeFetcher{
		pages: map[string]string{start: start, good: good},
		fail:  map[string]bool{bad: true},
	}
	extractor := &fakeExtractor{byPage: map[string]crawler.Extraction{
		start: {LinkURLs: []string{bad, good}},
		good:  {AssetURLs: []string{"https://x.test/a.jpg"}},
	}}
	downloader := &fakeDownloader{}

	sched := newTestScheduler(crawler.Config{MaxDepth: 1, MaxAssets: 100}, fetcher, extractor, downloader)
	res, err := sched.Crawl(context.Background(), start)
	require.NoError(t, err)

	require.Equal(t, []string{start, bad, good}, fetcher.calls)
	require.Len(t, res.Downloaded, 1)
	require.Contains(t, res.VisitedPages, bad)
}

func TestCrawlDeduplicatesAssetsAcrossPages(t *testing.T) {
	const (
		start  = "https://x.test/"
		p1     = "https://x.test/p1"
		shared = "https://x.test/shared.jpg"
	)
	fetcher := &fakeFetcher{pages: map[string]string{start: start, p1: p1}}
	extractor := &fakeExtractor{byPage: map[string]crawler.Extraction{
		start: {AssetURLs: []string{shared}, LinkURLs: []string{p1}},
		p1:    {AssetURLs: []string{shared, "https://x.test/only.png"}},
	}}
	downloader := &fakeDownloader{}

	sched := newTestScheduler(crawler.Config{MaxDepth: 1, MaxAssets: 100}, fetcher, extractor, downloader)
	res, err := sched.Crawl(context.Background(), start)
	require.NoError(t, err)

	require.Equal(t, [][]string{
		{shared},
		{"https://x.test/only.png"},
	}, downloader.batches)
	require.Equal(t, 2, res.TotalAssetsFound)
}

func TestCrawlNormalizesSchemelessStartURL(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{"https://x.test/gallery": ""}}
	extractor := &fakeExtractor{byPage: map[string]crawler.Extraction{}}
	downloader := &fakeDownloader{}

	sched := newTestScheduler(crawler.Config{MaxAssets: 10}, fetcher, extractor, downloader)
	res, err := sched.Crawl(context.Background(), "x.test/gallery")
	require.NoError(t, err)
	require.Equal(t, []string{"https://x.test/gallery"}, res.VisitedPages)
}

func TestCrawlRejectsInvalidStartURL(t *testing.T) {
	sched := newTestScheduler(crawler.Config{MaxAssets: 10}, &fakeFetcher{}, &fakeExtractor{}, &fakeDownloader{})
	_, err := sched.Crawl(context.Background(), "   ")
	require.Error(t, err)
}

func TestCrawlHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := "https://x.test/"
	fetcher := &fakeFetcher{pages: map[string]string{start: start}}
	sched := newTestScheduler(crawler.Config{MaxDepth: 2, MaxAssets: 10}, fetcher, &fakeExtractor{}, &fakeDownloader{})
	_, err := sched.Crawl(ctx, start)
	require.NoError(t, err)
	require.Empty(t, fetcher.calls)
}
