package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func baseViper() *viper.Viper {
	v := viper.New()
	v.Set("crawler.output_dir", "./out")
	v.Set("crawler.max_assets", 50)
	v.Set("crawler.max_depth", 2)
	v.Set("crawler.delay_seconds", 0.5)
	v.Set("crawler.max_retries", 3)
	v.Set("crawler.user_agent", "test-agent")
	v.Set("http.timeout_seconds", 10)
	v.Set("download.concurrency", 5)
	v.Set("download.batch_size", 10)
	v.Set("download.batch_delay", "1s")
	v.Set("download.max_batch_delay", "30s")
	return v
}

func TestLoad(t *testing.T) {
	v := baseViper()
	v.Set("crawler.formats", []string{"PNG", "jpeg", "jpg"})

	cfg, err := Load(v)
	require.NoError(t, err)

	require.Equal(t, "./out", cfg.OutputDir)
	require.Equal(t, 50, cfg.MaxAssets)
	require.Equal(t, 2, cfg.MaxDepth)
	require.Equal(t, 500*time.Millisecond, cfg.Delay)
	require.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	require.Equal(t, time.Second, cfg.BatchDelay)
	require.Equal(t, 30*time.Second, cfg.MaxBatchDelay)
	require.Equal(t, []string{"png", "jpg"}, cfg.Formats)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
	}{
		{"empty output dir", "crawler.output_dir", ""},
		{"zero max assets", "crawler.max_assets", 0},
		{"negative depth", "crawler.max_depth", -1},
		{"negative delay", "crawler.delay_seconds", -1.0},
		{"zero retries", "crawler.max_retries", 0},
		{"empty user agent", "crawler.user_agent", ""},
		{"zero timeout", "http.timeout_seconds", 0},
		{"zero concurrency", "download.concurrency", 0},
		{"zero batch size", "download.batch_size", 0},
		{"max delay below delay", "download.max_batch_delay", "1ms"},
		{"unknown format", "crawler.formats", []string{"exe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := baseViper()
			v.Set(tt.key, tt.value)
			_, err := Load(v)
			require.Error(t, err)
		})
	}
}

func TestNormalizeFormats(t *testing.T) {
	got := normalizeFormats([]string{" JPEG ", "jpg", "", "WebP", "webp", "png"})
	require.Equal(t, []string{"jpg", "webp", "png"}, got)
}

func TestInitSuppliesWorkingDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	Init()

	cfg, err := Load(viper.GetViper())
	require.NoError(t, err)
	require.Equal(t, "./crawled_images", cfg.OutputDir)
	require.Equal(t, 100, cfg.MaxAssets)
	require.Equal(t, 1, cfg.MaxDepth)
	require.Equal(t, time.Second, cfg.Delay)
	require.Empty(t, cfg.Formats)
	require.False(t, cfg.SaveURLLists)
}
