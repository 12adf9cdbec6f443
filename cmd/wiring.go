package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/webharvest/imgcrawler/internal/config"
	"github.com/webharvest/imgcrawler/internal/crawler"
	"github.com/webharvest/imgcrawler/internal/download"
	"github.com/webharvest/imgcrawler/internal/fetch"
	"github.com/webharvest/imgcrawler/internal/store"
)

// newTransport composes the primary HTTP strategy with the colly fallback
// used on bot-rejection codes.
func newTransport(cfg config.Config) fetch.Transport {
	tcfg := fetch.Config{
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.HTTPTimeout,
	}
	return fetch.NewFallbackTransport(
		fetch.NewHTTPTransport(tcfg),
		fetch.NewCollyTransport(tcfg),
	)
}

func newDownloadManager(cfg config.Config, transport fetch.Transport, logger *zap.Logger) (*download.Manager, error) {
	return download.NewManager(transport, download.Config{
		OutputDir:     cfg.OutputDir,
		Formats:       cfg.Formats,
		Concurrency:   cfg.Concurrency,
		BatchSize:     cfg.BatchSize,
		BatchDelay:    cfg.BatchDelay,
		MaxBatchDelay: cfg.MaxBatchDelay,
	}, logger)
}

// recordSession persists the run to the crawl database when one is
// configured. Persistence failures are reported but never fail the run; the
// images are already on disk.
func recordSession(ctx context.Context, cfg config.Config, logger *zap.Logger, kind, target string, startedAt time.Time, res crawler.Result) {
	if cfg.DatabasePath == "" {
		return
	}
	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logger.Warn("crawl database unavailable", zap.Error(err))
		return
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("close crawl database", zap.Error(err))
		}
	}()

	id := uuid.NewString()
	if err := db.BeginSession(ctx, id, kind, target, startedAt); err != nil {
		logger.Warn("record session start", zap.Error(err))
		return
	}
	if err := db.FinishSession(ctx, id, res, time.Now()); err != nil {
		logger.Warn("record session result", zap.Error(err))
		return
	}
	logger.Info("session recorded",
		zap.String("session_id", id),
		zap.String("db", cfg.DatabasePath),
	)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return config.Config{}, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}
