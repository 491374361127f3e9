// Package cmd defines and implements the CLI commands for the imagecrawler executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "imagecrawler",
		Short: "A resumable crawler that harvests pictures from a website.",
		Long: `imagecrawler walks the pages of a site starting from a seed URL and
downloads every sufficiently large picture it finds. Crawl state is persisted
per run, so an interrupted run continues where it stopped when started again
with the same run id.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.AddCommand(newCrawlCmd(&cfgFile))
	return cmd
}

// Execute is the main entry point. It cancels the crawl on SIGINT or SIGTERM
// and exits non-zero when the command fails.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "imagecrawler:", err)
		stop()
		os.Exit(1)
	}
}
