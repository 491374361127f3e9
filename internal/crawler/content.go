package crawler

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/imagecrawler/internal/metrics"
)

// ContentCrawler drains the content frontier with a single logical worker.
type ContentCrawler struct {
	frontier  Frontier
	fetcher   PageFetcher
	extractor Extractor
	scope     *Scope
	logger    *zap.Logger

	visited atomic.Int64
}

// NewContentCrawler constructs a ContentCrawler.
func NewContentCrawler(
	frontier Frontier,
	fetcher PageFetcher,
	extractor Extractor,
	scope *Scope,
	logger *zap.Logger,
) *ContentCrawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContentCrawler{
		frontier:  frontier,
		fetcher:   fetcher,
		extractor: extractor,
		scope:     scope,
		logger:    logger,
	}
}

// Visited returns the number of content URLs marked visited by this crawler.
func (c *ContentCrawler) Visited() int64 {
	return c.visited.Load()
}

// Run processes content URLs until the frontier is empty. It returns nil once
// drained and a non-nil error only for frontier failures or cancellation.
func (c *ContentCrawler) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("content crawl canceled: %w", err)
		}
		url, ok, err := c.frontier.NextContent(ctx)
		if err != nil {
			return fmt.Errorf("next content url: %w", err)
		}
		if !ok {
			c.logger.Info("content frontier drained", zap.Int64("pages_visited", c.Visited()))
			return nil
		}
		if err := c.visit(ctx, url); err != nil {
			return err
		}
	}
}

func (c *ContentCrawler) visit(ctx context.Context, url string) error {
	tag, err := c.scrape(ctx, url)
	if err != nil {
		return err
	}
	if err := c.frontier.MarkContentVisited(ctx, url, tag); err != nil {
		return fmt.Errorf("mark content visited: %w", err)
	}
	c.visited.Add(1)
	metrics.ObservePage(url, tag)
	if tag != "" {
		c.logger.Debug("page failed", zap.String("url", url), zap.String("error", tag))
		return nil
	}
	c.logger.Info("scraped page", zap.String("url", url))
	return nil
}

// scrape returns the failure tag for url. The error is only set when the
// crawl itself must stop.
func (c *ContentCrawler) scrape(ctx context.Context, url string) (tag string, fatal error) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("page scrape panicked", zap.String("url", url), zap.Any("panic", rec))
			tag, fatal = TagUnknownFailure, nil
		}
	}()

	page, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("fetch %s: %w", url, ctx.Err())
		}
		c.logger.Debug("page fetch failed", zap.String("url", url), zap.Error(err))
		return TagFetchFailure, nil
	}

	links, err := c.extractor.Extract(page.HTML, page.URL, "a", "href")
	if err != nil {
		c.logger.Debug("link extraction failed", zap.String("url", url), zap.Error(err))
		return TagUnknownFailure, nil
	}
	pictures, err := c.extractor.Extract(page.HTML, page.URL, "img", "src")
	if err != nil {
		c.logger.Debug("image extraction failed", zap.String("url", url), zap.Error(err))
		return TagUnknownFailure, nil
	}

	content := make([]string, 0, len(links))
	for _, link := range links {
		if c.scope.Contains(link) {
			content = append(content, link)
		}
		if IsImageURL(link) {
			pictures = append(pictures, link)
		}
	}

	if err := c.frontier.EnqueueContent(ctx, content); err != nil {
		return "", fmt.Errorf("enqueue content urls: %w", err)
	}
	if err := c.frontier.EnqueuePictures(ctx, pictures); err != nil {
		return "", fmt.Errorf("enqueue picture urls: %w", err)
	}
	c.logger.Debug("page links discovered",
		zap.String("url", url),
		zap.String("resolved_url", page.URL),
		zap.Int("content_urls", len(content)),
		zap.Int("picture_urls", len(pictures)),
	)
	return "", nil
}
