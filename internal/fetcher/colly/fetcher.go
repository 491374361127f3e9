// Package collyfetcher implements crawler.Navigator over plain HTTP using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/imagecrawler/internal/crawler"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxRedirects bounds the redirect chain of a single request.
	MaxRedirects int
}

// Navigator fetches pages without executing JavaScript.
type Navigator struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Navigator.
func New(cfg Config) *Navigator {
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 10
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	c.WithTransport(newHTTPTransport())
	maxRedirects := cfg.MaxRedirects
	c.SetRedirectHandler(func(_ *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	})

	return &Navigator{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Navigate executes a single HTTP GET and returns the body of the final hop.
func (n *Navigator) Navigate(ctx context.Context, url string) (crawler.Page, error) {
	var (
		page     crawler.Page
		fetchErr error
	)
	collector := n.buildCollector(&page, &fetchErr)

	if err := n.runCollector(ctx, collector, url, &fetchErr); err != nil {
		return crawler.Page{}, err
	}
	return page, nil
}

func (n *Navigator) buildCollector(page *crawler.Page, fetchErr *error) *colly.Collector {
	collector := n.baseCollector.Clone()
	if n.cfg.UserAgent != "" {
		collector.UserAgent = n.cfg.UserAgent
	}
	timeout := n.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	configureCollectorHooks(collector, page, fetchErr)
	return collector
}

func configureCollectorHooks(hooks collectorHooks, page *crawler.Page, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*page = crawler.Page{
			URL:  r.Request.URL.String(),
			HTML: string(r.Body),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= http.StatusBadRequest {
			*fetchErr = &crawler.HTTPStatusError{StatusCode: r.StatusCode}
			return
		}
		*fetchErr = err
	})
}

// runCollector waits for the visit in a goroutine so cancellation returns
// promptly; the request itself is bounded by the collector timeout.
func (n *Navigator) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			if *fetchErr != nil {
				return fmt.Errorf("colly visit failed: %w", *fetchErr)
			}
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
