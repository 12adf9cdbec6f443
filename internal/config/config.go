// Package config initializes the application's configuration. It uses the
// Viper library to read settings from a config file, environment variables,
// and command-line flags, providing a unified configuration system.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every knob that influences a crawl or search run. It is
// decoupled from Viper so the pipeline packages can be configured and tested
// independently.
type Config struct {
	OutputDir     string
	MaxAssets     int
	Formats       []string
	MaxDepth      int
	Delay         time.Duration
	MaxRetries    int
	UserAgent     string
	HTTPTimeout   time.Duration
	Concurrency   int
	BatchSize     int
	BatchDelay    time.Duration
	MaxBatchDelay time.Duration
	DatabasePath  string
	MetricsAddr   string
	SaveURLLists  bool
	Development   bool
}

// Init registers defaults, config file search paths, and the environment
// variable prefix. Call once at startup before Load.
func Init() {
	viper.SetConfigName("config")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/imgcrawler/")
	viper.AddConfigPath("$HOME/.imgcrawler")

	viper.SetDefault("crawler.output_dir", "./crawled_images")
	viper.SetDefault("crawler.max_assets", 100)
	viper.SetDefault("crawler.formats", []string{})
	viper.SetDefault("crawler.max_depth", 1)
	viper.SetDefault("crawler.delay_seconds", 1.0)
	viper.SetDefault("crawler.max_retries", 3)
	viper.SetDefault("crawler.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36")
	viper.SetDefault("crawler.save_url_lists", false)
	viper.SetDefault("http.timeout_seconds", 15)
	viper.SetDefault("download.concurrency", 5)
	viper.SetDefault("download.batch_size", 10)
	viper.SetDefault("download.batch_delay", "1s")
	viper.SetDefault("download.max_batch_delay", "30s")
	viper.SetDefault("store.path", "")
	viper.SetDefault("metrics.listen_addr", "")
	viper.SetDefault("log.development", false)

	viper.SetEnvPrefix("IMGCRAWLER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Missing config file is fine; defaults and env vars carry the run.
	_ = viper.ReadInConfig()
}

// Load constructs a Config by reading from Viper.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		OutputDir:     v.GetString("crawler.output_dir"),
		MaxAssets:     v.GetInt("crawler.max_assets"),
		Formats:       normalizeFormats(v.GetStringSlice("crawler.formats")),
		MaxDepth:      v.GetInt("crawler.max_depth"),
		Delay:         time.Duration(v.GetFloat64("crawler.delay_seconds") * float64(time.Second)),
		MaxRetries:    v.GetInt("crawler.max_retries"),
		UserAgent:     v.GetString("crawler.user_agent"),
		SaveURLLists:  v.GetBool("crawler.save_url_lists"),
		HTTPTimeout:   time.Duration(v.GetInt("http.timeout_seconds")) * time.Second,
		Concurrency:   v.GetInt("download.concurrency"),
		BatchSize:     v.GetInt("download.batch_size"),
		BatchDelay:    v.GetDuration("download.batch_delay"),
		MaxBatchDelay: v.GetDuration("download.max_batch_delay"),
		DatabasePath:  v.GetString("store.path"),
		MetricsAddr:   v.GetString("metrics.listen_addr"),
		Development:   v.GetBool("log.development"),
	}
	return cfg, cfg.Validate()
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("crawler.output_dir must be set")
	}
	if c.MaxAssets <= 0 {
		return fmt.Errorf("crawler.max_assets must be > 0")
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("crawler.max_depth must be >= 0")
	}
	if c.Delay < 0 {
		return fmt.Errorf("crawler.delay_seconds must be >= 0")
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("crawler.max_retries must be > 0")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("crawler.user_agent must be set")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("download.concurrency must be > 0")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("download.batch_size must be > 0")
	}
	if c.BatchDelay < 0 {
		return fmt.Errorf("download.batch_delay must be >= 0")
	}
	if c.MaxBatchDelay < c.BatchDelay {
		return fmt.Errorf("download.max_batch_delay must be >= download.batch_delay")
	}
	for _, f := range c.Formats {
		if !validFormat(f) {
			return fmt.Errorf("crawler.formats contains unknown format %q", f)
		}
	}
	return nil
}

func normalizeFormats(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{})
	for _, f := range in {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "jpeg" {
			f = "jpg"
		}
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

func validFormat(f string) bool {
	switch f {
	case "jpg", "png", "gif", "webp", "bmp", "svg", "tiff":
		return true
	}
	return false
}
