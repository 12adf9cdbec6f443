// Package metrics exposes Prometheus counters for the crawl and download
// pipelines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesFetched tracks pages fetched and handed to the extractor.
	PagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imgcrawler_pages_fetched_total",
		Help: "The total number of pages successfully fetched.",
	})
	// PagesFailed tracks pages skipped after all fetch attempts failed.
	PagesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imgcrawler_pages_failed_total",
		Help: "The total number of pages that failed all fetch attempts.",
	})
	// AssetsDiscovered tracks distinct asset URLs seen across the crawl.
	AssetsDiscovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imgcrawler_assets_discovered_total",
		Help: "The total number of distinct asset URLs discovered.",
	})
	// AssetsDownloaded tracks assets persisted to disk.
	AssetsDownloaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imgcrawler_assets_downloaded_total",
		Help: "The total number of assets saved to the output directory.",
	})
	// AssetsRejected tracks assets skipped by content-type or format policy.
	AssetsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imgcrawler_assets_rejected_total",
		Help: "The total number of assets rejected by download policy.",
	})
	// FetchRetries tracks retried network attempts across page fetches and
	// asset downloads.
	FetchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imgcrawler_fetch_retries_total",
		Help: "The total number of retried network attempts.",
	})
)
