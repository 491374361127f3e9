// Package elasticsearch keeps crawl state as documents in Elasticsearch indices.
//
// Each run owns three indices: <prefix>url, <prefix>pic_url and
// <prefix>stored_pic. URL documents are keyed by the SHA-256 of the URL and
// stored pictures by their content hash. Every write refreshes the index so
// the next poll never offers a URL that was just marked.
package elasticsearch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/JakeFAU/imagecrawler/internal/crawler"
	"github.com/JakeFAU/imagecrawler/internal/frontier"
)

// Config holds the cluster connection and index naming.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	// IndexPrefix namespaces the indices of one run. Must be lowercase.
	IndexPrefix string
}

const refresh = "true"

const markSource = "if (ctx._source.visited) { ctx.op = 'noop' } " +
	"else { ctx._source.visited = true; ctx._source.error = params.error }"

const urlMapping = `{"mappings":{"properties":{
"location":{"type":"keyword"},
"visited":{"type":"boolean"},
"error":{"type":"keyword"},
"seq":{"type":"long"}}}}`

const storedMapping = `{"mappings":{"properties":{
"content_hash":{"type":"keyword"},
"source_url":{"type":"keyword"},
"relative_path":{"type":"keyword"}}}}`

type urlDoc struct {
	Location string  `json:"location"`
	Visited  bool    `json:"visited"`
	Error    *string `json:"error"`
	Seq      int64   `json:"seq"`
}

// Frontier implements crawler.Frontier on Elasticsearch.
type Frontier struct {
	client   *es.Client
	content  string
	pictures string
	stored   string
	seq      atomic.Int64
}

// New connects to the cluster and creates the run's indices when missing.
func New(ctx context.Context, cfg Config) (*Frontier, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.New("elasticsearch.addresses is required")
	}
	client, err := es.NewClient(es.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	f := NewWithClient(client, cfg.IndexPrefix)
	if err := f.EnsureIndices(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

// NewWithClient wraps an existing client without touching the cluster.
func NewWithClient(client *es.Client, prefix string) *Frontier {
	f := &Frontier{
		client:   client,
		content:  prefix + "url",
		pictures: prefix + "pic_url",
		stored:   prefix + "stored_pic",
	}
	f.seq.Store(time.Now().UnixNano())
	return f
}

// Close implements crawler.Frontier. The client holds no resources to release.
func (f *Frontier) Close() error {
	return nil
}

// EnsureIndices creates any missing index with its mapping.
func (f *Frontier) EnsureIndices(ctx context.Context) error {
	for index, mapping := range map[string]string{
		f.content:  urlMapping,
		f.pictures: urlMapping,
		f.stored:   storedMapping,
	} {
		res, err := f.client.Indices.Exists([]string{index}, f.client.Indices.Exists.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("check index %s: %w", index, err)
		}
		closeBody(res)
		if res.StatusCode == http.StatusOK {
			continue
		}
		if res.StatusCode != http.StatusNotFound {
			return fmt.Errorf("check index %s: %s", index, res.Status())
		}

		res, err = f.client.Indices.Create(index,
			f.client.Indices.Create.WithContext(ctx),
			f.client.Indices.Create.WithBody(bytes.NewReader([]byte(mapping))),
		)
		if err != nil {
			return fmt.Errorf("create index %s: %w", index, err)
		}
		if err := checkResponse(res, "create index "+index); err != nil {
			return err
		}
	}
	return nil
}

func (f *Frontier) indexFor(kind crawler.URLKind) string {
	if kind == crawler.KindPicture {
		return f.pictures
	}
	return f.content
}

// EnqueueContent implements crawler.Frontier.
func (f *Frontier) EnqueueContent(ctx context.Context, urls []string) error {
	return f.enqueue(ctx, f.content, urls)
}

// EnqueuePictures implements crawler.Frontier.
func (f *Frontier) EnqueuePictures(ctx context.Context, urls []string) error {
	return f.enqueue(ctx, f.pictures, urls)
}

func (f *Frontier) enqueue(ctx context.Context, index string, urls []string) error {
	urls = frontier.Dedupe(urls)
	if len(urls) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, u := range urls {
		action := map[string]any{"create": map[string]string{"_index": index, "_id": docID(u)}}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("encode bulk action: %w", err)
		}
		if err := enc.Encode(urlDoc{Location: u, Seq: f.seq.Add(1)}); err != nil {
			return fmt.Errorf("encode bulk document: %w", err)
		}
	}

	res, err := f.client.Bulk(bytes.NewReader(buf.Bytes()),
		f.client.Bulk.WithContext(ctx),
		f.client.Bulk.WithRefresh(refresh),
	)
	if err != nil {
		return fmt.Errorf("bulk enqueue %s: %w", index, err)
	}
	defer closeBody(res)
	if res.IsError() {
		return fmt.Errorf("bulk enqueue %s: %s", index, res.String())
	}

	var body struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if !body.Errors {
		return nil
	}
	for _, item := range body.Items {
		for _, result := range item {
			// 409 means the URL is already known.
			if result.Status == http.StatusConflict || result.Status < http.StatusMultipleChoices {
				continue
			}
			reason := ""
			if result.Error != nil {
				reason = result.Error.Type + ": " + result.Error.Reason
			}
			return fmt.Errorf("bulk enqueue %s: item status %d %s", index, result.Status, reason)
		}
	}
	return nil
}

// NextContent implements crawler.Frontier.
func (f *Frontier) NextContent(ctx context.Context) (string, bool, error) {
	urls, err := f.next(ctx, f.content, 1)
	if err != nil || len(urls) == 0 {
		return "", false, err
	}
	return urls[0], true, nil
}

// NextPictures implements crawler.Frontier.
func (f *Frontier) NextPictures(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	return f.next(ctx, f.pictures, n)
}

func (f *Frontier) next(ctx context.Context, index string, n int) ([]string, error) {
	query := map[string]any{
		"size":    n,
		"query":   map[string]any{"term": map[string]any{"visited": false}},
		"sort":    []any{map[string]string{"seq": "asc"}},
		"_source": []string{"location"},
	}
	var hits struct {
		Hits struct {
			Hits []struct {
				Source urlDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := f.search(ctx, index, query, &hits); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(hits.Hits.Hits))
	for _, hit := range hits.Hits.Hits {
		out = append(out, hit.Source.Location)
	}
	return out, nil
}

func (f *Frontier) search(ctx context.Context, index string, query map[string]any, into any) error {
	body, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("marshal query: %w", err)
	}
	res, err := f.client.Search(
		f.client.Search.WithContext(ctx),
		f.client.Search.WithIndex(index),
		f.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("search %s: %w", index, err)
	}
	defer closeBody(res)
	if res.IsError() {
		return fmt.Errorf("search %s: %s", index, res.String())
	}
	if err := json.NewDecoder(res.Body).Decode(into); err != nil {
		return fmt.Errorf("decode search response: %w", err)
	}
	return nil
}

// MarkContentVisited implements crawler.Frontier.
func (f *Frontier) MarkContentVisited(ctx context.Context, url, tag string) error {
	return f.mark(ctx, f.content, url, tag)
}

// MarkPictureVisited implements crawler.Frontier.
func (f *Frontier) MarkPictureVisited(ctx context.Context, url, tag string) error {
	return f.mark(ctx, f.pictures, url, tag)
}

func (f *Frontier) mark(ctx context.Context, index, url, tag string) error {
	var errParam *string
	if tag != "" {
		errParam = &tag
	}
	body, err := json.Marshal(map[string]any{
		"script": map[string]any{
			"source": markSource,
			"lang":   "painless",
			"params": map[string]any{"error": errParam},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}
	res, err := f.client.Update(index, docID(url), bytes.NewReader(body),
		f.client.Update.WithContext(ctx),
		f.client.Update.WithRefresh(refresh),
	)
	if err != nil {
		return fmt.Errorf("mark %s visited: %w", index, err)
	}
	defer closeBody(res)
	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("mark %s visited: %s", index, res.String())
	}
	return nil
}

// RecordStoredPicture implements crawler.Frontier.
func (f *Frontier) RecordStoredPicture(ctx context.Context, pic crawler.StoredPicture) error {
	body, err := json.Marshal(pic)
	if err != nil {
		return fmt.Errorf("marshal stored picture: %w", err)
	}
	res, err := f.client.Create(f.stored, pic.ContentHash, bytes.NewReader(body),
		f.client.Create.WithContext(ctx),
		f.client.Create.WithRefresh(refresh),
	)
	if err != nil {
		return fmt.Errorf("record stored picture: %w", err)
	}
	defer closeBody(res)
	if res.StatusCode == http.StatusConflict {
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("record stored picture: %s", res.String())
	}
	return nil
}

// Lookup reads back a single URL record.
func (f *Frontier) Lookup(ctx context.Context, kind crawler.URLKind, url string) (crawler.URLRecord, bool, error) {
	index := f.indexFor(kind)
	res, err := f.client.Get(index, docID(url), f.client.Get.WithContext(ctx))
	if err != nil {
		return crawler.URLRecord{}, false, fmt.Errorf("lookup %s: %w", index, err)
	}
	defer closeBody(res)
	if res.StatusCode == http.StatusNotFound {
		return crawler.URLRecord{}, false, nil
	}
	if res.IsError() {
		return crawler.URLRecord{}, false, fmt.Errorf("lookup %s: %s", index, res.String())
	}
	var doc struct {
		Source urlDoc `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return crawler.URLRecord{}, false, fmt.Errorf("decode document: %w", err)
	}
	rec := crawler.URLRecord{Location: doc.Source.Location, Visited: doc.Source.Visited}
	if doc.Source.Error != nil {
		rec.Error = *doc.Source.Error
	}
	return rec, true, nil
}

// StoredPictureList returns up to 10000 stored-picture records.
func (f *Frontier) StoredPictureList(ctx context.Context) ([]crawler.StoredPicture, error) {
	query := map[string]any{
		"size":  10000,
		"query": map[string]any{"match_all": map[string]any{}},
	}
	var hits struct {
		Hits struct {
			Hits []struct {
				Source crawler.StoredPicture `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := f.search(ctx, f.stored, query, &hits); err != nil {
		return nil, err
	}
	out := make([]crawler.StoredPicture, 0, len(hits.Hits.Hits))
	for _, hit := range hits.Hits.Hits {
		out = append(out, hit.Source)
	}
	return out, nil
}

func docID(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

func checkResponse(res *esapi.Response, op string) error {
	defer closeBody(res)
	if res.IsError() {
		return fmt.Errorf("%s: %s", op, res.String())
	}
	return nil
}

func closeBody(res *esapi.Response) {
	if res == nil || res.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, res.Body)
	_ = res.Body.Close()
}
