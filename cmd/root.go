// Package cmd defines and implements the CLI commands for the imgcrawler
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/webharvest/imgcrawler/internal/config"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imgcrawler",
		Short: "Crawl websites and download images with depth control.",
		Long: `imgcrawler walks a website breadth-first to a configurable depth,
extracts image references from each page, and downloads them concurrently
with deduplication and collision-free naming. It can also discover images
through an image search engine instead of crawling.`,
		SilenceUsage: true,
	}

	cobra.OnInitialize(initConfig)

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default searches ., /etc/imgcrawler, $HOME/.imgcrawler)")
	cmd.PersistentFlags().Bool("dev", false, "human-readable development logging")
	_ = viper.BindPFlag("log.development", cmd.PersistentFlags().Lookup("dev"))

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newHistoryCmd())
	return cmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	config.Init()
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
