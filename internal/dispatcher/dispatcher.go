// Package dispatcher fans harvest rounds out over a bounded worker pool.
package dispatcher

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/imagecrawler/internal/metrics"
)

// Pool runs each round with at most workers tasks in flight.
type Pool struct {
	workers int
}

// New creates a Pool.
func New(workers int) (*Pool, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("workers must be > 0")
	}
	return &Pool{workers: workers}, nil
}

// Workers returns the pool size.
func (p *Pool) Workers() int {
	return p.workers
}

// Dispatch runs handle for every URL and blocks until all of them return.
// The first error cancels the context handed to the remaining tasks and is
// returned once the round has joined.
func (p *Pool) Dispatch(ctx context.Context, urls []string, handle func(context.Context, string) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, url := range urls {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()
			return handle(gctx, url)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("dispatch round: %w", err)
	}
	return nil
}
