package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/webharvest/imgcrawler/internal/api"
	"github.com/webharvest/imgcrawler/internal/crawler"
	"github.com/webharvest/imgcrawler/internal/extract"
	"github.com/webharvest/imgcrawler/internal/fetch"
	"github.com/webharvest/imgcrawler/internal/logging"
)

// newCrawlCmd creates the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl URL",
		Short: "Crawl a website and download its images",
		Long: `Walks the site breadth-first from URL up to the configured depth,
downloading every image it discovers along the way.`,
		Args: cobra.ExactArgs(1),
		RunE: runCrawl,
	}

	cmd.Flags().IntP("depth", "d", 1, "maximum crawl depth")
	cmd.Flags().StringSliceP("formats", "f", nil, "image formats to download (e.g. jpg,png)")
	cmd.Flags().IntP("max", "m", 100, "maximum number of images to download")
	cmd.Flags().StringP("output", "o", "./crawled_images", "output directory")
	cmd.Flags().Float64("delay", 1.0, "delay between page requests in seconds")
	cmd.Flags().BoolP("save-urls", "s", false, "save visited and image URL lists")

	_ = viper.BindPFlag("crawler.max_depth", cmd.Flags().Lookup("depth"))
	_ = viper.BindPFlag("crawler.formats", cmd.Flags().Lookup("formats"))
	_ = viper.BindPFlag("crawler.max_assets", cmd.Flags().Lookup("max"))
	_ = viper.BindPFlag("crawler.output_dir", cmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("crawler.delay_seconds", cmd.Flags().Lookup("delay"))
	_ = viper.BindPFlag("crawler.save_url_lists", cmd.Flags().Lookup("save-urls"))
	return cmd
}

func runCrawl(cmd *cobra.Command, args []string) error {
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

	if cfg.MetricsAddr != "" {
		srv := api.NewServer(cfg.MetricsAddr, logger)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics listener shutdown", zap.Error(err))
			}
		}()
	}

	transport := newTransport(cfg)
	fetcher := fetch.NewFetcher(transport, cfg.MaxRetries, logger)
	manager, err := newDownloadManager(cfg, transport, logger)
	if err != nil {
		return fmt.Errorf("initialize download manager: %w", err)
	}
	scheduler := crawler.NewScheduler(crawler.Config{
		MaxDepth:  cfg.MaxDepth,
		MaxAssets: cfg.MaxAssets,
		Delay:     cfg.Delay,
	}, fetcher, extract.New(cfg.Formats), manager, logger)

	startedAt := time.Now()
	res, err := scheduler.Crawl(ctx, args[0])
	if err != nil {
		return err
	}

	logger.Info("crawl complete",
		zap.Int("visited_pages", len(res.VisitedPages)),
		zap.Int("images_found", res.TotalAssetsFound),
		zap.Int("images_downloaded", len(res.Downloaded)),
		zap.String("output_dir", cfg.OutputDir),
		zap.Duration("elapsed", time.Since(startedAt)),
	)

	if cfg.SaveURLLists {
		if err := crawler.WriteURLLists(cfg.OutputDir, res); err != nil {
			return err
		}
	}
	recordSession(ctx, cfg, logger, "crawl", args[0], startedAt, res)
	return nil
}
