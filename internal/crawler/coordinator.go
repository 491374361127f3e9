package crawler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Coordinator runs the content crawl and the image harvest concurrently
// against the same frontier and returns once both have drained.
type Coordinator struct {
	frontier  Frontier
	content   *ContentCrawler
	harvester *Harvester
	logger    *zap.Logger
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(frontier Frontier, content *ContentCrawler, harvester *Harvester, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		frontier:  frontier,
		content:   content,
		harvester: harvester,
		logger:    logger,
	}
}

// Progress is a point-in-time view of a running crawl.
type Progress struct {
	PagesVisited       int64 `json:"pages_visited"`
	PicturesDispatched int64 `json:"pictures_dispatched"`
}

// Progress reports counters for the current process.
func (c *Coordinator) Progress() Progress {
	return Progress{
		PagesVisited:       c.content.Visited(),
		PicturesDispatched: c.harvester.Dispatched(),
	}
}

// Run seeds the content frontier and blocks until both loops finish. Seeding
// is idempotent, so restarting a run resumes where the previous one stopped.
func (c *Coordinator) Run(ctx context.Context, seed string) error {
	seed, err := NormalizeURL(seed)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if err := c.frontier.EnqueueContent(ctx, []string{seed}); err != nil {
		return fmt.Errorf("enqueue seed: %w", err)
	}

	start := time.Now()
	contentDone := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(contentDone)
		return c.content.Run(gctx)
	})
	g.Go(func() error {
		return c.harvester.Run(gctx, contentDone)
	})
	err = g.Wait()

	c.logger.Info("crawl finished",
		zap.String("seed", seed),
		zap.Int64("pages_visited", c.content.Visited()),
		zap.Int64("pictures_dispatched", c.harvester.Dispatched()),
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("completed", err == nil),
	)
	if err != nil {
		return fmt.Errorf("crawl %s: %w", seed, err)
	}
	return nil
}
