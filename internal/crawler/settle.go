package crawler

import (
	"context"
	"fmt"
)

// SettlingFetcher repeats a navigation until the browser stays on the
// requested URL or the retry budget runs out.
type SettlingFetcher struct {
	nav     Navigator
	retries int
}

// NewSettlingFetcher wraps nav with up to retries additional navigations.
func NewSettlingFetcher(nav Navigator, retries int) *SettlingFetcher {
	if retries < 0 {
		retries = 0
	}
	return &SettlingFetcher{nav: nav, retries: retries}
}

// Fetch returns the last observed page, whether or not the redirects converged.
func (f *SettlingFetcher) Fetch(ctx context.Context, url string) (Page, error) {
	var last Page
	for attempt := 0; attempt <= f.retries; attempt++ {
		page, err := f.nav.Navigate(ctx, url)
		if err != nil {
			return Page{}, fmt.Errorf("navigate %s: %w", url, err)
		}
		last = page
		if page.URL == url {
			break
		}
	}
	return last, nil
}
