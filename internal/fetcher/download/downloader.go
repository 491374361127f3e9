// Package download retrieves raw picture bytes over HTTP.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/JakeFAU/imagecrawler/internal/crawler"
)

// DefaultUserAgent mimics a desktop browser; many image hosts reject bare clients.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36"

// Config tunes the downloader.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRedirects int
	// MaxBytes caps the response body. Zero means unlimited.
	MaxBytes int64
}

// DefaultConfig returns the defaults used when no overrides are provided.
func DefaultConfig() Config {
	return Config{
		UserAgent:    DefaultUserAgent,
		Timeout:      30 * time.Second,
		MaxRedirects: 5,
		MaxBytes:     50 << 20,
	}
}

var errRedirectLimit = errors.New("redirect limit reached")

// Downloader implements crawler.Downloader.
type Downloader struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

// New builds a Downloader. A nil transport uses http.DefaultTransport.
func New(cfg Config, transport http.RoundTripper) *Downloader {
	defaults := DefaultConfig()
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxRedirects < 0 {
		cfg.MaxRedirects = 0
	}
	maxRedirects := cfg.MaxRedirects
	return &Downloader{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return errRedirectLimit
				}
				return nil
			},
		},
		userAgent: cfg.UserAgent,
		maxBytes:  cfg.MaxBytes,
	}
}

// Download issues a GET for url and returns the body of a 2xx response.
// Errors wrap the crawler taxonomy so crawler.FailureTag can classify them.
func (d *Downloader) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", crawler.ErrRequestFailed, err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/png,image/jpeg,image/*;q=0.8,*/*;q=0.5")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &crawler.HTTPStatusError{StatusCode: resp.StatusCode}
	}

	var body io.Reader = resp.Body
	if d.maxBytes > 0 {
		body = io.LimitReader(resp.Body, d.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, classify(err)
	}
	if d.maxBytes > 0 && int64(len(data)) > d.maxBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", crawler.ErrRequestFailed, d.maxBytes)
	}
	return data, nil
}

func classify(err error) error {
	if errors.Is(err, errRedirectLimit) {
		return fmt.Errorf("%w: %v", crawler.ErrTooManyRedirects, err)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", crawler.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", crawler.ErrRequestFailed, err)
}
