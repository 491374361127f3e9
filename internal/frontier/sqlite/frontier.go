// Package sqlite persists crawl state in an embedded SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/imagecrawler/internal/crawler"
	"github.com/JakeFAU/imagecrawler/internal/frontier"
)

const (
	contentTable = "content_urls"
	pictureTable = "picture_urls"
)

const schema = `
CREATE TABLE IF NOT EXISTS content_urls (
	location TEXT PRIMARY KEY,
	visited INTEGER NOT NULL DEFAULT 0,
	error TEXT
);
CREATE INDEX IF NOT EXISTS idx_content_urls_visited ON content_urls(visited);

CREATE TABLE IF NOT EXISTS picture_urls (
	location TEXT PRIMARY KEY,
	visited INTEGER NOT NULL DEFAULT 0,
	error TEXT
);
CREATE INDEX IF NOT EXISTS idx_picture_urls_visited ON picture_urls(visited);

CREATE TABLE IF NOT EXISTS stored_pictures (
	content_hash TEXT PRIMARY KEY,
	source_url TEXT NOT NULL,
	relative_path TEXT NOT NULL
);
`

// Frontier implements crawler.Frontier on SQLite.
type Frontier struct {
	db     *sql.DB
	dbPath string
}

// Open opens or creates the database at dbPath, creating parent directories.
func Open(ctx context.Context, dbPath string) (*Frontier, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Frontier{db: db, dbPath: dbPath}, nil
}

// Path returns the database file location.
func (f *Frontier) Path() string {
	return f.dbPath
}

// Close closes the database connection.
func (f *Frontier) Close() error {
	if err := f.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// EnqueueContent implements crawler.Frontier.
func (f *Frontier) EnqueueContent(ctx context.Context, urls []string) error {
	return f.enqueue(ctx, contentTable, urls)
}

// EnqueuePictures implements crawler.Frontier.
func (f *Frontier) EnqueuePictures(ctx context.Context, urls []string) error {
	return f.enqueue(ctx, pictureTable, urls)
}

func (f *Frontier) enqueue(ctx context.Context, table string, urls []string) (err error) {
	urls = frontier.Dedupe(urls)
	if len(urls) == 0 {
		return nil
	}
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enqueue %s: %w", table, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT OR IGNORE INTO %s (location, visited) VALUES (?, 0)", table))
	if err != nil {
		return fmt.Errorf("prepare enqueue %s: %w", table, err)
	}
	defer stmt.Close()

	for _, u := range urls {
		if _, err = stmt.ExecContext(ctx, u); err != nil {
			return fmt.Errorf("enqueue %s: %w", table, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit enqueue %s: %w", table, err)
	}
	return nil
}

// NextContent implements crawler.Frontier.
func (f *Frontier) NextContent(ctx context.Context) (string, bool, error) {
	urls, err := f.next(ctx, contentTable, 1)
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
	return f.next(ctx, pictureTable, n)
}

func (f *Frontier) next(ctx context.Context, table string, n int) ([]string, error) {
	rows, err := f.db.QueryContext(ctx,
		fmt.Sprintf("SELECT location FROM %s WHERE visited = 0 ORDER BY rowid LIMIT ?", table), n)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var loc string
		if err := rows.Scan(&loc); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}

// MarkContentVisited implements crawler.Frontier.
func (f *Frontier) MarkContentVisited(ctx context.Context, url, tag string) error {
	return f.mark(ctx, contentTable, url, tag)
}

// MarkPictureVisited implements crawler.Frontier.
func (f *Frontier) MarkPictureVisited(ctx context.Context, url, tag string) error {
	return f.mark(ctx, pictureTable, url, tag)
}

func (f *Frontier) mark(ctx context.Context, table, url, tag string) error {
	_, err := f.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET visited = 1, error = ? WHERE location = ? AND visited = 0", table),
		nullable(tag), url)
	if err != nil {
		return fmt.Errorf("mark %s visited: %w", table, err)
	}
	return nil
}

// RecordStoredPicture implements crawler.Frontier.
func (f *Frontier) RecordStoredPicture(ctx context.Context, pic crawler.StoredPicture) error {
	_, err := f.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO stored_pictures (content_hash, source_url, relative_path) VALUES (?, ?, ?)",
		pic.ContentHash, pic.SourceURL, pic.RelativePath)
	if err != nil {
		return fmt.Errorf("record stored picture: %w", err)
	}
	return nil
}

// Lookup reads back a single URL record.
func (f *Frontier) Lookup(ctx context.Context, kind crawler.URLKind, url string) (crawler.URLRecord, bool, error) {
	table := contentTable
	if kind == crawler.KindPicture {
		table = pictureTable
	}
	var (
		visited int
		errTag  sql.NullString
	)
	err := f.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT visited, error FROM %s WHERE location = ?", table), url).Scan(&visited, &errTag)
	if errors.Is(err, sql.ErrNoRows) {
		return crawler.URLRecord{}, false, nil
	}
	if err != nil {
		return crawler.URLRecord{}, false, fmt.Errorf("lookup %s: %w", table, err)
	}
	return crawler.URLRecord{Location: url, Visited: visited == 1, Error: errTag.String}, true, nil
}

// StoredPictureList returns every stored-picture record ordered by hash.
func (f *Frontier) StoredPictureList(ctx context.Context) ([]crawler.StoredPicture, error) {
	rows, err := f.db.QueryContext(ctx,
		"SELECT content_hash, source_url, relative_path FROM stored_pictures ORDER BY content_hash")
	if err != nil {
		return nil, fmt.Errorf("query stored pictures: %w", err)
	}
	defer rows.Close()

	var out []crawler.StoredPicture
	for rows.Next() {
		var pic crawler.StoredPicture
		if err := rows.Scan(&pic.ContentHash, &pic.SourceURL, &pic.RelativePath); err != nil {
			return nil, fmt.Errorf("scan stored picture: %w", err)
		}
		out = append(out, pic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stored pictures: %w", err)
	}
	return out, nil
}

func nullable(tag string) sql.NullString {
	return sql.NullString{String: tag, Valid: tag != ""}
}
