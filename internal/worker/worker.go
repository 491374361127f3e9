// Package worker harvests individual picture URLs: download, validate,
// re-encode and store.
package worker

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/imagecrawler/internal/crawler"
	"github.com/JakeFAU/imagecrawler/internal/metrics"
)

// Config controls Worker behavior.
type Config struct {
	// MinWidth and MinHeight must both be strictly exceeded.
	MinWidth  int
	MinHeight int
	// OutputFormat fixes the stored format. When empty the URL extension is used.
	OutputFormat string
}

// DefaultConfig returns the defaults used when no overrides are provided.
func DefaultConfig() Config {
	return Config{MinWidth: 400, MinHeight: 300, OutputFormat: "png"}
}

// Worker implements crawler.PictureProcessor.
type Worker struct {
	frontier   crawler.Frontier
	downloader crawler.Downloader
	codec      crawler.ImageCodec
	hasher     crawler.Hasher
	blobStore  crawler.BlobStore
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Worker.
func New(
	frontier crawler.Frontier,
	downloader crawler.Downloader,
	codec crawler.ImageCodec,
	hasher crawler.Hasher,
	blobStore crawler.BlobStore,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		frontier:   frontier,
		downloader: downloader,
		codec:      codec,
		hasher:     hasher,
		blobStore:  blobStore,
		cfg:        cfg,
		logger:     logger,
	}
}

// Process harvests url and marks it visited. Per-picture failures are recorded
// as tags; the returned error is reserved for frontier and blob store
// failures and cancellation.
func (w *Worker) Process(ctx context.Context, url string) error {
	tag, err := w.harvest(ctx, url)
	if err != nil {
		return err
	}
	if err := w.frontier.MarkPictureVisited(ctx, url, tag); err != nil {
		return fmt.Errorf("mark picture visited: %w", err)
	}
	metrics.ObservePicture(tag)
	if tag != "" {
		w.logger.Debug("picture failed", zap.String("url", url), zap.String("error", tag))
	}
	return nil
}

func (w *Worker) harvest(ctx context.Context, url string) (tag string, fatal error) {
	defer func() {
		if rec := recover(); rec != nil {
			w.logger.Error("picture harvest panicked", zap.String("url", url), zap.Any("panic", rec))
			tag, fatal = crawler.TagUnknownFailure, nil
		}
	}()

	data, err := w.downloader.Download(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("download %s: %w", url, ctx.Err())
		}
		return crawler.FailureTag(err), nil
	}

	img, err := w.codec.Decode(data)
	if err != nil {
		return crawler.FailureTag(err), nil
	}
	bounds := img.Bounds()
	if bounds.Dx() <= w.cfg.MinWidth || bounds.Dy() <= w.cfg.MinHeight {
		return crawler.FailureTag(&crawler.ImageTooSmallError{Width: bounds.Dx(), Height: bounds.Dy()}), nil
	}

	hash, err := w.hasher.Hash(data)
	if err != nil {
		return crawler.FailureTag(err), nil
	}
	encoded, err := w.codec.Encode(img, w.outputFormat(url))
	if err != nil {
		return crawler.FailureTag(err), nil
	}

	relPath := BlobPath(hash, encoded.Extension)
	uri, err := w.blobStore.PutObject(ctx, relPath, encoded.ContentType, bytes.NewReader(encoded.Data))
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", relPath, err)
	}
	pic := crawler.StoredPicture{ContentHash: hash, SourceURL: url, RelativePath: relPath}
	if err := w.frontier.RecordStoredPicture(ctx, pic); err != nil {
		return "", fmt.Errorf("record stored picture: %w", err)
	}

	metrics.ObservePictureBytes(len(encoded.Data))
	w.logger.Info("stored picture",
		zap.String("url", url),
		zap.String("hash", hash),
		zap.String("blob_uri", uri),
		zap.Int("width", bounds.Dx()),
		zap.Int("height", bounds.Dy()),
	)
	return "", nil
}

func (w *Worker) outputFormat(url string) string {
	if w.cfg.OutputFormat != "" {
		return w.cfg.OutputFormat
	}
	return crawler.ImageExtension(url)
}

// BlobPath shards hash into three two-character directories followed by the
// file name, e.g. "ab/cd/ef/abcdef0123.png".
func BlobPath(hash, ext string) string {
	name := hash
	if ext != "" {
		name += "." + ext
	}
	if len(hash) < 6 {
		return name
	}
	return path.Join(hash[0:2], hash[2:4], hash[4:6], name)
}
