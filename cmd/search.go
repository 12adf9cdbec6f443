package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/webharvest/imgcrawler/internal/crawler"
	"github.com/webharvest/imgcrawler/internal/logging"
	"github.com/webharvest/imgcrawler/internal/search"
)

// newSearchCmd creates the 'search' subcommand.
func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Download images matching a search query",
		Long: `Queries an image search engine for QUERY and downloads the matching
images, applying the same format policy and naming rules as a crawl.`,
		Args: cobra.ExactArgs(1),
		RunE: runSearch,
	}

	cmd.Flags().StringSliceP("formats", "f", nil, "image formats to download (e.g. jpg,png)")
	cmd.Flags().IntP("max", "m", 25, "maximum number of images to download")
	cmd.Flags().StringP("output", "o", "./downloaded_images", "output directory")

	_ = viper.BindPFlag("crawler.formats", cmd.Flags().Lookup("formats"))
	_ = viper.BindPFlag("crawler.max_assets", cmd.Flags().Lookup("max"))
	_ = viper.BindPFlag("crawler.output_dir", cmd.Flags().Lookup("output"))
	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Development)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	transport := newTransport(cfg)
	client := search.New(transport, search.Config{
		MaxResults: cfg.MaxAssets,
		Formats:    cfg.Formats,
	}, logger)

	startedAt := time.Now()
	urls, err := client.Search(ctx, args[0])
	if err != nil {
		return fmt.Errorf("search %q: %w", args[0], err)
	}
	if len(urls) == 0 {
		logger.Warn("no images found for query", zap.String("query", args[0]))
		return nil
	}
	logger.Info("search complete",
		zap.String("query", args[0]),
		zap.Int("candidates", len(urls)),
	)

	manager, err := newDownloadManager(cfg, transport, logger)
	if err != nil {
		return fmt.Errorf("initialize download manager: %w", err)
	}
	downloaded := manager.Batch(ctx, urls)

	logger.Info("download complete",
		zap.Int("downloaded", len(downloaded)),
		zap.Int("candidates", len(urls)),
		zap.String("output_dir", cfg.OutputDir),
		zap.Duration("elapsed", time.Since(startedAt)),
	)
	recordSession(ctx, cfg, logger, "search", args[0], startedAt, crawler.Result{
		Downloaded:       downloaded,
		AssetURLs:        urls,
		TotalAssetsFound: len(urls),
	})
	return nil
}
