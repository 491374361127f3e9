// Package postgres persists crawl state in Postgres tables.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/imagecrawler/internal/crawler"
	"github.com/JakeFAU/imagecrawler/internal/frontier"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool and table naming.
type Config struct {
	DSN string
	// TablePrefix namespaces the tables of one run, e.g. "site_a_".
	TablePrefix     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// Frontier implements crawler.Frontier on Postgres.
type Frontier struct {
	pool     pool
	content  string
	pictures string
	stored   string
}

// New connects to Postgres and creates the run's tables when missing.
func New(ctx context.Context, cfg Config) (*Frontier, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	f, err := NewWithPool(p, cfg.TablePrefix)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := f.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return f, nil
}

// NewWithPool constructs a frontier from an existing pool (primarily for testing).
func NewWithPool(p pool, tablePrefix string) (*Frontier, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	f := &Frontier{
		pool:     p,
		content:  tablePrefix + "content_urls",
		pictures: tablePrefix + "picture_urls",
		stored:   tablePrefix + "stored_pictures",
	}
	for _, table := range []string{f.content, f.pictures, f.stored} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return f, nil
}

// EnsureSchema creates the frontier tables if they do not exist.
func (f *Frontier) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		urlTableDDL(f.content),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_pending_idx ON %s (seq) WHERE NOT visited", f.content, f.content),
		urlTableDDL(f.pictures),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_pending_idx ON %s (seq) WHERE NOT visited", f.pictures, f.pictures),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	content_hash TEXT PRIMARY KEY,
	source_url TEXT NOT NULL,
	relative_path TEXT NOT NULL
)`, f.stored),
	}
	for _, stmt := range stmts {
		if _, err := f.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func urlTableDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	seq BIGSERIAL,
	location TEXT PRIMARY KEY,
	visited BOOLEAN NOT NULL DEFAULT FALSE,
	error TEXT
)`, table)
}

// Close releases the underlying pool resources.
func (f *Frontier) Close() error {
	if f == nil || f.pool == nil {
		return nil
	}
	f.pool.Close()
	return nil
}

// EnqueueContent implements crawler.Frontier.
func (f *Frontier) EnqueueContent(ctx context.Context, urls []string) error {
	return f.enqueue(ctx, f.content, urls)
}

// EnqueuePictures implements crawler.Frontier.
func (f *Frontier) EnqueuePictures(ctx context.Context, urls []string) error {
	return f.enqueue(ctx, f.pictures, urls)
}

func (f *Frontier) enqueue(ctx context.Context, table string, urls []string) error {
	urls = frontier.Dedupe(urls)
	if len(urls) == 0 {
		return nil
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (location) SELECT unnest($1::text[]) ON CONFLICT (location) DO NOTHING", table)
	if _, err := f.pool.Exec(ctx, query, urls); err != nil {
		return fmt.Errorf("enqueue %s: %w", table, err)
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

func (f *Frontier) next(ctx context.Context, table string, n int) ([]string, error) {
	query := fmt.Sprintf("SELECT location FROM %s WHERE NOT visited ORDER BY seq LIMIT $1", table)
	rows, err := f.pool.Query(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	urls, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect %s: %w", table, err)
	}
	return urls, nil
}

// MarkContentVisited implements crawler.Frontier.
func (f *Frontier) MarkContentVisited(ctx context.Context, url, tag string) error {
	return f.mark(ctx, f.content, url, tag)
}

// MarkPictureVisited implements crawler.Frontier.
func (f *Frontier) MarkPictureVisited(ctx context.Context, url, tag string) error {
	return f.mark(ctx, f.pictures, url, tag)
}

func (f *Frontier) mark(ctx context.Context, table, url, tag string) error {
	query := fmt.Sprintf("UPDATE %s SET visited = TRUE, error = $2 WHERE location = $1 AND NOT visited", table)
	if _, err := f.pool.Exec(ctx, query, url, nullable(tag)); err != nil {
		return fmt.Errorf("mark %s visited: %w", table, err)
	}
	return nil
}

// RecordStoredPicture implements crawler.Frontier.
func (f *Frontier) RecordStoredPicture(ctx context.Context, pic crawler.StoredPicture) error {
	query := fmt.Sprintf(`INSERT INTO %s (content_hash, source_url, relative_path)
VALUES ($1, $2, $3) ON CONFLICT (content_hash) DO NOTHING`, f.stored)
	if _, err := f.pool.Exec(ctx, query, pic.ContentHash, pic.SourceURL, pic.RelativePath); err != nil {
		return fmt.Errorf("record stored picture: %w", err)
	}
	return nil
}

// Lookup reads back a single URL record.
func (f *Frontier) Lookup(ctx context.Context, kind crawler.URLKind, url string) (crawler.URLRecord, bool, error) {
	table := f.content
	if kind == crawler.KindPicture {
		table = f.pictures
	}
	rows, err := f.pool.Query(ctx, fmt.Sprintf("SELECT visited, error FROM %s WHERE location = $1", table), url)
	if err != nil {
		return crawler.URLRecord{}, false, fmt.Errorf("lookup %s: %w", table, err)
	}
	type row struct {
		Visited bool
		Error   *string
	}
	r, err := pgx.CollectOneRow(rows, pgx.RowToStructByPos[row])
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.URLRecord{}, false, nil
	}
	if err != nil {
		return crawler.URLRecord{}, false, fmt.Errorf("lookup %s: %w", table, err)
	}
	rec := crawler.URLRecord{Location: url, Visited: r.Visited}
	if r.Error != nil {
		rec.Error = *r.Error
	}
	return rec, true, nil
}

// StoredPictureList returns every stored-picture record ordered by hash.
func (f *Frontier) StoredPictureList(ctx context.Context) ([]crawler.StoredPicture, error) {
	rows, err := f.pool.Query(ctx,
		fmt.Sprintf("SELECT content_hash, source_url, relative_path FROM %s ORDER BY content_hash", f.stored))
	if err != nil {
		return nil, fmt.Errorf("query stored pictures: %w", err)
	}
	pics, err := pgx.CollectRows(rows, pgx.RowToStructByPos[crawler.StoredPicture])
	if err != nil {
		return nil, fmt.Errorf("collect stored pictures: %w", err)
	}
	return pics, nil
}

func nullable(tag string) any {
	if tag == "" {
		return nil
	}
	return tag
}
