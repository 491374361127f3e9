package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/imagecrawler/internal/api"
	"github.com/JakeFAU/imagecrawler/internal/app"
	"github.com/JakeFAU/imagecrawler/internal/config"
	"github.com/JakeFAU/imagecrawler/internal/crawler"
	"github.com/JakeFAU/imagecrawler/internal/logging"
	"github.com/JakeFAU/imagecrawler/internal/metrics"
)

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd(cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <seed-url> <run-id> <data-dir>",
		Short: "Crawl a site and harvest its pictures",
		Long: `Crawls pages reachable from seed-url that fall inside the crawl scope and
stores every picture larger than the minimum dimensions under data-dir.
Re-running with the same run-id resumes the previous crawl.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runCrawl(cmd.Context(), cfg, args[0], app.Run{ID: args[1], DataDir: args[2]})
		},
	}

	defaults := crawler.DefaultConfig()
	flags := cmd.Flags()
	flags.Int("workers", defaults.Workers, "number of concurrent picture downloads")
	flags.Int("batch-size", 0, "picture URLs polled per harvest round (default: workers)")
	flags.Int("min-width", 400, "pictures must be wider than this many pixels")
	flags.Int("min-height", 300, "pictures must be taller than this many pixels")
	flags.String("output-format", "png", "stored picture format; empty keeps the URL's extension")
	flags.String("scope", "", "URL that bounds which pages are crawled (default: seed)")
	flags.String("scope-mode", string(defaults.ScopeMode), "scope matching: prefix, host or domain")
	flags.String("frontier", "sqlite", "frontier backend: sqlite, postgres, elasticsearch, redis or memory")
	flags.String("storage", "local", "picture storage: local, gcs or memory")
	flags.String("fetcher", "headless", "page fetcher: headless or http")
	flags.String("metrics-addr", "", "serve /healthz, /metrics and /v1/run on this address")
	return cmd
}

func runCrawl(ctx context.Context, cfg config.Config, seed string, run app.Run) error {
	if err := validateSeed(seed); err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	metrics.Init()

	services, err := app.New(ctx, cfg, run, logger)
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}
	defer func() {
		if cerr := services.Close(); cerr != nil {
			services.Logger().Warn("error closing services", zap.Error(cerr))
		}
	}()

	coord, err := services.Coordinator(seed)
	if err != nil {
		return err
	}

	crawlCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(crawlCtx)
	if cfg.Metrics.Addr != "" {
		ops := api.NewServer(coord, api.RunInfo{
			RunID:     run.ID,
			SessionID: services.SessionID(),
			Seed:      seed,
			StartedAt: services.StartedAt(),
		}, services.Logger().Named("ops"))
		g.Go(func() error {
			return ops.ListenAndServe(gctx, cfg.Metrics.Addr)
		})
	}
	g.Go(func() error {
		defer cancel()
		return coord.Run(gctx, seed)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		services.Logger().Warn("crawl interrupted; run again with the same run id to resume")
		return nil
	}
	if err != nil {
		return fmt.Errorf("run crawl: %w", err)
	}
	return nil
}

func validateSeed(seed string) error {
	u, err := url.Parse(seed)
	if err != nil {
		return fmt.Errorf("invalid seed url %q: %w", seed, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("seed url %q must be an absolute http(s) URL", seed)
	}
	return nil
}
