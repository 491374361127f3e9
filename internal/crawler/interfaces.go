package crawler

import (
	"context"
	"image"
	"io"
)

// Frontier persists the content and picture frontiers and the stored-picture
// records. Implementations must be safe for concurrent use.
type Frontier interface {
	// EnqueueContent inserts unvisited content URLs. Known URLs are left untouched.
	EnqueueContent(ctx context.Context, urls []string) error
	// EnqueuePictures inserts unvisited picture URLs. Known URLs are left untouched.
	EnqueuePictures(ctx context.Context, urls []string) error
	// NextContent returns one unvisited content URL without marking it.
	NextContent(ctx context.Context) (string, bool, error)
	// NextPictures returns up to n unvisited picture URLs without marking them.
	NextPictures(ctx context.Context, n int) ([]string, error)
	// MarkContentVisited flags a content URL visited with an optional failure tag.
	// Marking an already-visited URL is a no-op.
	MarkContentVisited(ctx context.Context, url, tag string) error
	// MarkPictureVisited flags a picture URL visited with an optional failure tag.
	// Marking an already-visited URL is a no-op.
	MarkPictureVisited(ctx context.Context, url, tag string) error
	// RecordStoredPicture inserts the record unless its content hash already exists.
	RecordStoredPicture(ctx context.Context, pic StoredPicture) error
	Close() error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Navigator performs a single browser navigation and reports where it landed.
type Navigator interface {
	Navigate(ctx context.Context, url string) (Page, error)
}

// PageFetcher resolves a content URL to its final location and markup.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Extractor collects absolute URLs from tag attributes in markup.
type Extractor interface {
	Extract(markup, baseURL, tag, attr string) ([]string, error)
}

// Downloader retrieves raw image bytes.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// ImageCodec decodes downloaded bytes and re-encodes them for storage.
type ImageCodec interface {
	Decode(data []byte) (image.Image, error)
	Encode(img image.Image, format string) (EncodedImage, error)
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// PictureProcessor harvests a single picture URL. A returned error is fatal
// for the crawl; per-picture failures are recorded in the frontier instead.
type PictureProcessor interface {
	Process(ctx context.Context, url string) error
}

// RoundDispatcher runs handle for every URL with bounded parallelism and
// returns once all of them have finished.
type RoundDispatcher interface {
	Dispatch(ctx context.Context, urls []string, handle func(context.Context, string) error) error
}
