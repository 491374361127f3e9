package crawler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/imagecrawler/internal/metrics"
)

// Harvester drains the picture frontier in rounds. Each round polls a batch,
// hands it to the dispatcher and waits for every picture to finish before
// polling again.
type Harvester struct {
	frontier     Frontier
	dispatcher   RoundDispatcher
	processor    PictureProcessor
	batchSize    int
	pollInterval time.Duration
	logger       *zap.Logger

	dispatched atomic.Int64
}

// NewHarvester constructs a Harvester.
func NewHarvester(
	frontier Frontier,
	dispatcher RoundDispatcher,
	processor PictureProcessor,
	cfg Config,
	logger *zap.Logger,
) *Harvester {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	return &Harvester{
		frontier:     frontier,
		dispatcher:   dispatcher,
		processor:    processor,
		batchSize:    cfg.BatchSize,
		pollInterval: cfg.PollInterval,
		logger:       logger,
	}
}

// Dispatched returns the number of picture URLs handed to the worker pool.
func (h *Harvester) Dispatched() int64 {
	return h.dispatched.Load()
}

// Run harvests until contentDone is closed and a subsequent poll comes back
// empty. The completion state is read before each poll so pictures enqueued
// by the last content page are never skipped.
func (h *Harvester) Run(ctx context.Context, contentDone <-chan struct{}) error {
	for {
		drained := isClosed(contentDone)
		urls, err := h.frontier.NextPictures(ctx, h.batchSize)
		if err != nil {
			return fmt.Errorf("next picture urls: %w", err)
		}
		if len(urls) == 0 {
			if drained {
				h.logger.Info("picture frontier drained", zap.Int64("pictures_dispatched", h.Dispatched()))
				return nil
			}
			if err := h.wait(ctx, contentDone); err != nil {
				return err
			}
			continue
		}

		metrics.ObserveHarvestRound()
		h.logger.Debug("harvest round", zap.Int("pictures", len(urls)))
		if err := h.dispatcher.Dispatch(ctx, urls, h.processor.Process); err != nil {
			return fmt.Errorf("harvest round: %w", err)
		}
		h.dispatched.Add(int64(len(urls)))
	}
}

// wait sleeps for the poll interval, returning early when the content crawl
// finishes.
func (h *Harvester) wait(ctx context.Context, contentDone <-chan struct{}) error {
	timer := time.NewTimer(h.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("harvest canceled: %w", ctx.Err())
	case <-contentDone:
		return nil
	case <-timer.C:
		return nil
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
