// Package extract pulls absolute URLs out of HTML markup with goquery.
package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/imagecrawler/internal/crawler"
)

// Extractor implements crawler.Extractor.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract returns the normalized absolute http(s) URLs found in the attr
// attribute of every tag element, resolved against baseURL, de-duplicated in
// document order.
func (e *Extractor) Extract(markup, baseURL, tag, attr string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if ref, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = ref
		}
	}

	seen := make(map[string]struct{})
	var out []string
	doc.Find(tag).Each(func(_ int, sel *goquery.Selection) {
		raw, ok := sel.Attr(attr)
		if !ok {
			return
		}
		abs, ok := resolve(base, raw)
		if !ok {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	})
	return out, nil
}

func resolve(base *url.URL, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return "", false
	}
	ref, err := base.Parse(raw)
	if err != nil {
		return "", false
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return "", false
	}
	normalized, err := crawler.NormalizeURL(ref.String())
	if err != nil {
		return "", false
	}
	return normalized, true
}
