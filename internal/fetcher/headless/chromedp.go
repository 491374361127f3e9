// Package headless contains navigators that execute JavaScript via browsers.
package headless

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/imagecrawler/internal/crawler"
)

// scrollScript jumps to the end of the document so lazily loaded images are
// attached before the markup is captured.
const scrollScript = `window.scrollTo(0, document.body.scrollHeight);`

// Config controls the behavior of the headless navigator.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// SettleDelay is how long to wait after load and again after scrolling.
	SettleDelay time.Duration
	// ExecPath overrides the Chrome binary lookup.
	ExecPath string
}

// Navigator implements crawler.Navigator using chromedp and headless Chrome.
type Navigator struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a headless navigator backed by chromedp.
func NewChromedp(cfg Config) (*Navigator, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 500 * time.Millisecond
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Navigator{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context and shuts the browser down.
func (n *Navigator) Close() {
	n.allocCancel()
}

// Navigate loads url in a fresh tab, scrolls to the bottom and returns the
// rendered DOM together with the location the tab ended up on.
func (n *Navigator) Navigate(ctx context.Context, url string) (crawler.Page, error) {
	if err := n.acquire(ctx); err != nil {
		return crawler.Page{}, err
	}
	defer n.release()

	taskCtx, taskCancel := chromedp.NewContext(n.allocator)
	defer taskCancel()

	// Tie the tab to the caller's context without inheriting its values.
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	taskCtx, cancel := context.WithTimeout(taskCtx, n.navTimeout())
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	html, finalURL, err := n.run(taskCtx, url)
	if err != nil {
		return crawler.Page{}, err
	}

	return crawler.Page{URL: meta.resolve(url, finalURL), HTML: html}, nil
}

func (n *Navigator) run(ctx context.Context, url string) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		n.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(n.cfg.SettleDelay),
		chromedp.Evaluate(scrollScript, nil),
		chromedp.Sleep(n.cfg.SettleDelay),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

func (n *Navigator) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if n.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(n.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (n *Navigator) acquire(ctx context.Context) error {
	if n.limiter == nil {
		return nil
	}
	select {
	case n.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (n *Navigator) release() {
	if n.limiter == nil {
		return
	}
	select {
	case <-n.limiter:
	default:
	}
}

func (n *Navigator) navTimeout() time.Duration {
	if n.cfg.NavigationTimeout > 0 {
		return n.cfg.NavigationTimeout
	}
	return 45 * time.Second
}

type responseMeta struct {
	mu  sync.Mutex
	url string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

// capture keeps the URL of the last document response, which is the final
// hop of a redirect chain.
func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

// resolve prefers the tab location, then the last document response, then
// the requested URL.
func (m *responseMeta) resolve(requestURL, finalURL string) string {
	if finalURL != "" {
		return finalURL
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.url != "" {
		return m.url
	}
	return requestURL
}
