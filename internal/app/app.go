// Package app initializes and holds the long-lived services of a crawl run,
// acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/imagecrawler/internal/config"
	"github.com/JakeFAU/imagecrawler/internal/crawler"
	"github.com/JakeFAU/imagecrawler/internal/dispatcher"
	"github.com/JakeFAU/imagecrawler/internal/extract"
	collyfetcher "github.com/JakeFAU/imagecrawler/internal/fetcher/colly"
	"github.com/JakeFAU/imagecrawler/internal/fetcher/download"
	"github.com/JakeFAU/imagecrawler/internal/fetcher/headless"
	"github.com/JakeFAU/imagecrawler/internal/frontier"
	esfrontier "github.com/JakeFAU/imagecrawler/internal/frontier/elasticsearch"
	memoryfrontier "github.com/JakeFAU/imagecrawler/internal/frontier/memory"
	pgfrontier "github.com/JakeFAU/imagecrawler/internal/frontier/postgres"
	redisfrontier "github.com/JakeFAU/imagecrawler/internal/frontier/redis"
	sqlitefrontier "github.com/JakeFAU/imagecrawler/internal/frontier/sqlite"
	"github.com/JakeFAU/imagecrawler/internal/hash/sha256"
	"github.com/JakeFAU/imagecrawler/internal/id/uuid"
	"github.com/JakeFAU/imagecrawler/internal/imaging"
	gcsstorage "github.com/JakeFAU/imagecrawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/imagecrawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/imagecrawler/internal/storage/memory"
	"github.com/JakeFAU/imagecrawler/internal/worker"
)

// Run identifies one resumable crawl.
type Run struct {
	ID      string
	DataDir string
}

// Dir returns the per-run directory under the data directory.
func (r Run) Dir() string {
	return filepath.Join(r.DataDir, r.ID)
}

// App holds the shared, long-lived services of a run. It is built once at
// startup and closed when the command finishes.
type App struct {
	cfg     config.Config
	run     Run
	logger  *zap.Logger
	session uuid.Session

	frontier  crawler.Frontier
	blobs     crawler.BlobStore
	navigator crawler.Navigator

	closers []func() error
}

// New opens the configured frontier, blob store and navigator for run. It
// fails fast when any of them cannot be initialized.
func New(ctx context.Context, cfg config.Config, run Run, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(run.ID) == "" {
		return nil, errors.New("run id is required")
	}
	session, err := uuid.NewSession()
	if err != nil {
		return nil, err
	}
	a := &App{
		cfg:     cfg,
		run:     run,
		session: session,
		logger:  logger.With(zap.String("run_id", run.ID), zap.String("session_id", session.ID)),
	}
	a.logger.Info("initializing crawl services",
		zap.String("frontier", cfg.Frontier.Backend),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("fetcher", cfg.Fetcher.Mode),
	)

	if err := a.openFrontier(ctx); err != nil {
		return nil, a.abort(err)
	}
	if err := a.openBlobStore(ctx); err != nil {
		return nil, a.abort(err)
	}
	if err := a.openNavigator(); err != nil {
		return nil, a.abort(err)
	}
	return a, nil
}

func (a *App) abort(err error) error {
	if cerr := a.Close(); cerr != nil {
		a.logger.Warn("error closing partially initialized services", zap.Error(cerr))
	}
	return err
}

func (a *App) openFrontier(ctx context.Context) error {
	prefix := frontier.NamePrefix(a.run.ID)
	switch a.cfg.Frontier.Backend {
	case "sqlite":
		path := filepath.Join(a.run.Dir(), "db", "crawl.db")
		f, err := sqlitefrontier.Open(ctx, path)
		if err != nil {
			return fmt.Errorf("open sqlite frontier: %w", err)
		}
		a.logger.Info("using sqlite frontier", zap.String("path", path))
		a.setFrontier(f)
	case "postgres":
		f, err := pgfrontier.New(ctx, pgfrontier.Config{
			DSN:         a.cfg.DB.DSN,
			TablePrefix: prefix,
			MaxConns:    a.cfg.DB.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("open postgres frontier: %w", err)
		}
		a.logger.Info("using postgres frontier", zap.String("table_prefix", prefix))
		a.setFrontier(f)
	case "elasticsearch":
		f, err := esfrontier.New(ctx, esfrontier.Config{
			Addresses:   a.cfg.Elasticsearch.Addresses,
			Username:    a.cfg.Elasticsearch.Username,
			Password:    a.cfg.Elasticsearch.Password,
			IndexPrefix: prefix,
		})
		if err != nil {
			return fmt.Errorf("open elasticsearch frontier: %w", err)
		}
		a.logger.Info("using elasticsearch frontier", zap.String("index_prefix", prefix))
		a.setFrontier(f)
	case "redis":
		f, err := redisfrontier.New(ctx, redisfrontier.Config{
			Addr:      a.cfg.Redis.Addr,
			Password:  a.cfg.Redis.Password,
			DB:        a.cfg.Redis.DB,
			KeyPrefix: prefix,
		})
		if err != nil {
			return fmt.Errorf("open redis frontier: %w", err)
		}
		a.logger.Info("using redis frontier", zap.String("key_prefix", prefix))
		a.setFrontier(f)
	case "memory":
		a.logger.Warn("using in-memory frontier; progress will not survive a restart")
		a.setFrontier(memoryfrontier.New())
	default:
		return fmt.Errorf("unknown frontier backend: %s", a.cfg.Frontier.Backend)
	}
	return nil
}

func (a *App) setFrontier(f crawler.Frontier) {
	a.frontier = f
	a.closers = append(a.closers, f.Close)
}

func (a *App) openBlobStore(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case "local":
		dir := filepath.Join(a.run.Dir(), "images")
		store, err := localstorage.New(localstorage.Config{BaseDir: dir})
		if err != nil {
			return fmt.Errorf("open local blob store: %w", err)
		}
		a.logger.Info("using local blob store", zap.String("dir", store.BaseDir()))
		a.blobs = store
	case "gcs":
		prefix := a.run.ID + "/images"
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket, Prefix: prefix})
		if err != nil {
			return fmt.Errorf("open gcs blob store: %w", err)
		}
		a.logger.Info("using gcs blob store", zap.String("bucket", a.cfg.Storage.GCSBucket), zap.String("prefix", prefix))
		a.blobs = store
		a.closers = append(a.closers, store.Close)
	case "memory":
		a.logger.Warn("using in-memory blob store; pictures will be discarded on exit")
		a.blobs = memorystorage.NewBlobStore()
	default:
		return fmt.Errorf("unknown storage backend: %s", a.cfg.Storage.Backend)
	}
	return nil
}

func (a *App) openNavigator() error {
	switch a.cfg.Fetcher.Mode {
	case "headless":
		nav, err := headless.NewChromedp(headless.Config{
			MaxParallel:       1,
			UserAgent:         a.cfg.HTTP.UserAgent,
			NavigationTimeout: a.cfg.Headless.NavTimeout,
			SettleDelay:       a.cfg.Headless.SettleDelay,
			ExecPath:          a.cfg.Headless.ExecPath,
		})
		if err != nil {
			return fmt.Errorf("init headless navigator: %w", err)
		}
		a.navigator = nav
		a.closers = append(a.closers, func() error {
			nav.Close()
			return nil
		})
	case "http":
		a.navigator = collyfetcher.New(collyfetcher.Config{
			UserAgent:    a.cfg.HTTP.UserAgent,
			Timeout:      a.cfg.HTTP.Timeout,
			MaxRedirects: a.cfg.HTTP.MaxRedirects,
		})
	default:
		return fmt.Errorf("unknown fetcher mode: %s", a.cfg.Fetcher.Mode)
	}
	return nil
}

// Logger returns the run-scoped logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// SessionID identifies this process among restarts of the same run.
func (a *App) SessionID() string {
	return a.session.ID
}

// StartedAt reports when this session began.
func (a *App) StartedAt() time.Time {
	return a.session.Started
}

// Frontier exposes the configured frontier store.
func (a *App) Frontier() crawler.Frontier {
	return a.frontier
}

// BlobStore exposes the configured blob store.
func (a *App) BlobStore() crawler.BlobStore {
	return a.blobs
}

// Coordinator assembles the content crawler and picture harvester for seed.
func (a *App) Coordinator(seed string) (*crawler.Coordinator, error) {
	settings := a.cfg.CrawlerSettings()
	root := settings.Scope
	if root == "" {
		root = seed
	}
	scope, err := crawler.NewScope(settings.ScopeMode, root)
	if err != nil {
		return nil, fmt.Errorf("build scope: %w", err)
	}
	pool, err := dispatcher.New(settings.Workers)
	if err != nil {
		return nil, fmt.Errorf("build worker pool: %w", err)
	}

	content := crawler.NewContentCrawler(
		a.frontier,
		crawler.NewSettlingFetcher(a.navigator, settings.RedirectRetries),
		extract.New(),
		scope,
		a.logger.Named("content"),
	)
	pictures := worker.New(
		a.frontier,
		download.New(download.Config{
			UserAgent:    a.cfg.HTTP.UserAgent,
			Timeout:      a.cfg.HTTP.Timeout,
			MaxRedirects: a.cfg.HTTP.MaxRedirects,
			MaxBytes:     a.cfg.HTTP.MaxBytes,
		}, nil),
		imaging.New(),
		sha256.NewTruncated(sha256.PictureHashLength),
		a.blobs,
		worker.Config{
			MinWidth:     a.cfg.Images.MinWidth,
			MinHeight:    a.cfg.Images.MinHeight,
			OutputFormat: a.cfg.Images.OutputFormat,
		},
		a.logger.Named("harvest"),
	)
	harvester := crawler.NewHarvester(a.frontier, pool, pictures, settings, a.logger.Named("harvest"))
	return crawler.NewCoordinator(a.frontier, content, harvester, a.logger), nil
}

// Close shuts down every service in reverse order of initialization.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
