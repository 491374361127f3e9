// Package memory keeps crawl state in-process for tests and throwaway runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/imagecrawler/internal/crawler"
	"github.com/JakeFAU/imagecrawler/internal/frontier"
)

type table struct {
	records map[string]*crawler.URLRecord
	order   []string
	// cursor indexes the first entry of order that may still be unvisited.
	cursor int
}

func newTable() *table {
	return &table{records: make(map[string]*crawler.URLRecord)}
}

func (t *table) enqueue(urls []string) {
	for _, u := range frontier.Dedupe(urls) {
		if _, ok := t.records[u]; ok {
			continue
		}
		t.records[u] = &crawler.URLRecord{Location: u}
		t.order = append(t.order, u)
	}
}

func (t *table) next(n int) []string {
	for t.cursor < len(t.order) && t.records[t.order[t.cursor]].Visited {
		t.cursor++
	}
	var out []string
	for i := t.cursor; i < len(t.order) && len(out) < n; i++ {
		if rec := t.records[t.order[i]]; !rec.Visited {
			out = append(out, rec.Location)
		}
	}
	return out
}

func (t *table) mark(url, tag string) {
	rec, ok := t.records[url]
	if !ok || rec.Visited {
		return
	}
	rec.Visited = true
	rec.Error = tag
}

// Frontier implements crawler.Frontier with maps guarded by a mutex.
type Frontier struct {
	mu       sync.Mutex
	content  *table
	pictures *table
	stored   map[string]crawler.StoredPicture
}

// New creates an empty in-memory frontier.
func New() *Frontier {
	return &Frontier{
		content:  newTable(),
		pictures: newTable(),
		stored:   make(map[string]crawler.StoredPicture),
	}
}

// EnqueueContent implements crawler.Frontier.
func (f *Frontier) EnqueueContent(_ context.Context, urls []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.content.enqueue(urls)
	return nil
}

// EnqueuePictures implements crawler.Frontier.
func (f *Frontier) EnqueuePictures(_ context.Context, urls []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pictures.enqueue(urls)
	return nil
}

// NextContent implements crawler.Frontier.
func (f *Frontier) NextContent(_ context.Context) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := f.content.next(1)
	if len(next) == 0 {
		return "", false, nil
	}
	return next[0], true, nil
}

// NextPictures implements crawler.Frontier.
func (f *Frontier) NextPictures(_ context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pictures.next(n), nil
}

// MarkContentVisited implements crawler.Frontier.
func (f *Frontier) MarkContentVisited(_ context.Context, url, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.content.mark(url, tag)
	return nil
}

// MarkPictureVisited implements crawler.Frontier.
func (f *Frontier) MarkPictureVisited(_ context.Context, url, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pictures.mark(url, tag)
	return nil
}

// RecordStoredPicture implements crawler.Frontier.
func (f *Frontier) RecordStoredPicture(_ context.Context, pic crawler.StoredPicture) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.stored[pic.ContentHash]; !ok {
		f.stored[pic.ContentHash] = pic
	}
	return nil
}

// Close implements crawler.Frontier.
func (f *Frontier) Close() error {
	return nil
}

// Lookup returns a copy of the URL record of the given kind.
func (f *Frontier) Lookup(_ context.Context, kind crawler.URLKind, url string) (crawler.URLRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.content
	if kind == crawler.KindPicture {
		t = f.pictures
	}
	rec, ok := t.records[url]
	if !ok {
		return crawler.URLRecord{}, false, nil
	}
	return *rec, true, nil
}

// Records returns copies of every record of the given kind in insertion order.
func (f *Frontier) Records(kind crawler.URLKind) []crawler.URLRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.content
	if kind == crawler.KindPicture {
		t = f.pictures
	}
	out := make([]crawler.URLRecord, 0, len(t.order))
	for _, u := range t.order {
		out = append(out, *t.records[u])
	}
	return out
}

// StoredPictureList returns the stored-picture records sorted by hash.
func (f *Frontier) StoredPictureList(_ context.Context) ([]crawler.StoredPicture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]crawler.StoredPicture, 0, len(f.stored))
	for _, pic := range f.stored {
		out = append(out, pic)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContentHash < out[j].ContentHash })
	return out, nil
}
