// Package redis keeps crawl state in Redis sets, sorted sets and hashes.
//
// Per kind the frontier uses a set of every known URL, a sorted set of the
// still pending URLs scored by insertion sequence and a hash of failure tags.
// Stored pictures live in a hash keyed by content hash.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/imagecrawler/internal/crawler"
	"github.com/JakeFAU/imagecrawler/internal/frontier"
)

// Config holds Redis connection configuration.
type Config struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces every key of one run.
	KeyPrefix string
}

// ErrEmptyAddress is returned when Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

const connectionTimeout = 5 * time.Second

var enqueueScript = goredis.NewScript(`
for _, url in ipairs(ARGV) do
	if redis.call('SADD', KEYS[1], url) == 1 then
		local seq = redis.call('INCR', KEYS[3])
		redis.call('ZADD', KEYS[2], seq, url)
	end
end
return 0
`)

var markScript = goredis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 1 then
	if ARGV[2] ~= '' then
		redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
	end
	return 1
end
return 0
`)

type keys struct {
	known   string
	pending string
	errors  string
}

// Frontier implements crawler.Frontier on Redis.
type Frontier struct {
	client   goredis.UniversalClient
	content  keys
	pictures keys
	seq      string
	stored   string
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Frontier, error) {
	if cfg.Addr == "" {
		return nil, ErrEmptyAddress
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewWithClient(client, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client goredis.UniversalClient, prefix string) *Frontier {
	kindKeys := func(kind crawler.URLKind) keys {
		return keys{
			known:   fmt.Sprintf("%s%s:known", prefix, kind),
			pending: fmt.Sprintf("%s%s:pending", prefix, kind),
			errors:  fmt.Sprintf("%s%s:errors", prefix, kind),
		}
	}
	return &Frontier{
		client:   client,
		content:  kindKeys(crawler.KindContent),
		pictures: kindKeys(crawler.KindPicture),
		seq:      prefix + "seq",
		stored:   prefix + "stored_pictures",
	}
}

// Close closes the client.
func (f *Frontier) Close() error {
	if err := f.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}

func (f *Frontier) keysFor(kind crawler.URLKind) keys {
	if kind == crawler.KindPicture {
		return f.pictures
	}
	return f.content
}

// EnqueueContent implements crawler.Frontier.
func (f *Frontier) EnqueueContent(ctx context.Context, urls []string) error {
	return f.enqueue(ctx, crawler.KindContent, urls)
}

// EnqueuePictures implements crawler.Frontier.
func (f *Frontier) EnqueuePictures(ctx context.Context, urls []string) error {
	return f.enqueue(ctx, crawler.KindPicture, urls)
}

func (f *Frontier) enqueue(ctx context.Context, kind crawler.URLKind, urls []string) error {
	urls = frontier.Dedupe(urls)
	if len(urls) == 0 {
		return nil
	}
	k := f.keysFor(kind)
	args := make([]any, len(urls))
	for i, u := range urls {
		args[i] = u
	}
	if err := enqueueScript.Run(ctx, f.client, []string{k.known, k.pending, f.seq}, args...).Err(); err != nil {
		return fmt.Errorf("enqueue %s urls: %w", kind, err)
	}
	return nil
}

// NextContent implements crawler.Frontier.
func (f *Frontier) NextContent(ctx context.Context) (string, bool, error) {
	urls, err := f.next(ctx, crawler.KindContent, 1)
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
	return f.next(ctx, crawler.KindPicture, n)
}

func (f *Frontier) next(ctx context.Context, kind crawler.URLKind, n int) ([]string, error) {
	urls, err := f.client.ZRange(ctx, f.keysFor(kind).pending, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("next %s urls: %w", kind, err)
	}
	return urls, nil
}

// MarkContentVisited implements crawler.Frontier.
func (f *Frontier) MarkContentVisited(ctx context.Context, url, tag string) error {
	return f.mark(ctx, crawler.KindContent, url, tag)
}

// MarkPictureVisited implements crawler.Frontier.
func (f *Frontier) MarkPictureVisited(ctx context.Context, url, tag string) error {
	return f.mark(ctx, crawler.KindPicture, url, tag)
}

func (f *Frontier) mark(ctx context.Context, kind crawler.URLKind, url, tag string) error {
	k := f.keysFor(kind)
	if err := markScript.Run(ctx, f.client, []string{k.pending, k.errors}, url, tag).Err(); err != nil {
		return fmt.Errorf("mark %s visited: %w", kind, err)
	}
	return nil
}

// RecordStoredPicture implements crawler.Frontier.
func (f *Frontier) RecordStoredPicture(ctx context.Context, pic crawler.StoredPicture) error {
	payload, err := json.Marshal(pic)
	if err != nil {
		return fmt.Errorf("marshal stored picture: %w", err)
	}
	if err := f.client.HSetNX(ctx, f.stored, pic.ContentHash, payload).Err(); err != nil {
		return fmt.Errorf("record stored picture: %w", err)
	}
	return nil
}

// Lookup reads back a single URL record.
func (f *Frontier) Lookup(ctx context.Context, kind crawler.URLKind, url string) (crawler.URLRecord, bool, error) {
	k := f.keysFor(kind)
	known, err := f.client.SIsMember(ctx, k.known, url).Result()
	if err != nil {
		return crawler.URLRecord{}, false, fmt.Errorf("lookup %s url: %w", kind, err)
	}
	if !known {
		return crawler.URLRecord{}, false, nil
	}
	rec := crawler.URLRecord{Location: url}
	if _, err := f.client.ZScore(ctx, k.pending, url).Result(); err != nil {
		if !errors.Is(err, goredis.Nil) {
			return crawler.URLRecord{}, false, fmt.Errorf("lookup %s url: %w", kind, err)
		}
		rec.Visited = true
	}
	tag, err := f.client.HGet(ctx, k.errors, url).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return crawler.URLRecord{}, false, fmt.Errorf("lookup %s url: %w", kind, err)
	}
	rec.Error = tag
	return rec, true, nil
}

// StoredPictureList returns every stored-picture record.
func (f *Frontier) StoredPictureList(ctx context.Context) ([]crawler.StoredPicture, error) {
	all, err := f.client.HGetAll(ctx, f.stored).Result()
	if err != nil {
		return nil, fmt.Errorf("list stored pictures: %w", err)
	}
	out := make([]crawler.StoredPicture, 0, len(all))
	for _, raw := range all {
		var pic crawler.StoredPicture
		if err := json.Unmarshal([]byte(raw), &pic); err != nil {
			return nil, fmt.Errorf("decode stored picture: %w", err)
		}
		out = append(out, pic)
	}
	return out, nil
}
