// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/imagecrawler/internal/crawler"
	"github.com/JakeFAU/imagecrawler/internal/imaging"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler       CrawlerConfig       `mapstructure:"crawler"`
	Images        ImagesConfig        `mapstructure:"images"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Fetcher       FetcherConfig       `mapstructure:"fetcher"`
	Headless      HeadlessConfig      `mapstructure:"headless"`
	Frontier      FrontierConfig      `mapstructure:"frontier"`
	DB            DBConfig            `mapstructure:"db"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

// CrawlerConfig governs the content loop and harvest pool.
type CrawlerConfig struct {
	Workers         int           `mapstructure:"workers"`
	BatchSize       int           `mapstructure:"batch_size"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	RedirectRetries int           `mapstructure:"redirect_retries"`
	ScopeMode       string        `mapstructure:"scope_mode"`
	Scope           string        `mapstructure:"scope"`
}

// ImagesConfig sets picture validation and output.
type ImagesConfig struct {
	MinWidth     int    `mapstructure:"min_width"`
	MinHeight    int    `mapstructure:"min_height"`
	OutputFormat string `mapstructure:"output_format"`
}

// HTTPConfig configures the picture downloader and plain HTTP navigator.
type HTTPConfig struct {
	UserAgent    string        `mapstructure:"user_agent"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRedirects int           `mapstructure:"max_redirects"`
	MaxBytes     int64         `mapstructure:"max_bytes"`
}

// FetcherConfig selects the page navigator.
type FetcherConfig struct {
	Mode string `mapstructure:"mode"`
}

// HeadlessConfig configures the headless browser.
type HeadlessConfig struct {
	NavTimeout  time.Duration `mapstructure:"nav_timeout"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	ExecPath    string        `mapstructure:"exec_path"`
}

// FrontierConfig selects the frontier backend.
type FrontierConfig struct {
	Backend string `mapstructure:"backend"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ElasticsearchConfig holds cluster coordinates.
type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

// RedisConfig holds server coordinates.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig selects the blob store.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig sets the ops server address. Empty disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// flagKeys maps CLI flag names to configuration keys.
var flagKeys = map[string]string{
	"workers":       "crawler.workers",
	"batch-size":    "crawler.batch_size",
	"scope":         "crawler.scope",
	"scope-mode":    "crawler.scope_mode",
	"min-width":     "images.min_width",
	"min-height":    "images.min_height",
	"output-format": "images.output_format",
	"fetcher":       "fetcher.mode",
	"frontier":      "frontier.backend",
	"storage":       "storage.backend",
	"metrics-addr":  "metrics.addr",
}

// Load builds a Config from defaults, the optional file at path, CRAWLER_*
// environment variables and any flags in flags that were set explicitly.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Crawler.BatchSize == 0 {
		cfg.Crawler.BatchSize = cfg.Crawler.Workers
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := crawler.DefaultConfig()
	v.SetDefault("crawler.workers", defaults.Workers)
	v.SetDefault("crawler.batch_size", 0)
	v.SetDefault("crawler.poll_interval", defaults.PollInterval)
	v.SetDefault("crawler.redirect_retries", defaults.RedirectRetries)
	v.SetDefault("crawler.scope_mode", string(defaults.ScopeMode))
	v.SetDefault("crawler.scope", "")
	v.SetDefault("images.min_width", 400)
	v.SetDefault("images.min_height", 300)
	v.SetDefault("images.output_format", imaging.DefaultFormat)
	v.SetDefault("http.user_agent", "")
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.max_redirects", 5)
	v.SetDefault("http.max_bytes", 50<<20)
	v.SetDefault("fetcher.mode", "headless")
	v.SetDefault("headless.nav_timeout", 45*time.Second)
	v.SetDefault("headless.settle_delay", 500*time.Millisecond)
	v.SetDefault("headless.exec_path", "")
	v.SetDefault("frontier.backend", "sqlite")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 0)
	v.SetDefault("elasticsearch.addresses", []string{"http://localhost:9200"})
	v.SetDefault("elasticsearch.username", "")
	v.SetDefault("elasticsearch.password", "")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("metrics.addr", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := c.CrawlerSettings().Validate(); err != nil {
		return err
	}
	if c.Images.MinWidth < 0 || c.Images.MinHeight < 0 {
		return fmt.Errorf("images.min_width and images.min_height must be >= 0")
	}
	if c.Images.OutputFormat != "" && !imaging.Supported(c.Images.OutputFormat) {
		return fmt.Errorf("images.output_format %q is not supported", c.Images.OutputFormat)
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.HTTP.MaxRedirects < 0 {
		return fmt.Errorf("http.max_redirects must be >= 0")
	}
	switch c.Fetcher.Mode {
	case "headless", "http":
	default:
		return fmt.Errorf("fetcher.mode %q is not supported", c.Fetcher.Mode)
	}
	switch c.Frontier.Backend {
	case "sqlite", "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when frontier.backend is postgres")
		}
	case "elasticsearch":
		if len(c.Elasticsearch.Addresses) == 0 {
			return fmt.Errorf("elasticsearch.addresses must be set when frontier.backend is elasticsearch")
		}
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr must be set when frontier.backend is redis")
		}
	default:
		return fmt.Errorf("frontier.backend %q is not supported", c.Frontier.Backend)
	}
	switch c.Storage.Backend {
	case "local", "memory":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.backend is gcs")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	return nil
}

// CrawlerSettings converts the crawler section into the loop configuration.
func (c Config) CrawlerSettings() crawler.Config {
	return crawler.Config{
		Workers:         c.Crawler.Workers,
		BatchSize:       c.Crawler.BatchSize,
		PollInterval:    c.Crawler.PollInterval,
		RedirectRetries: c.Crawler.RedirectRetries,
		ScopeMode:       crawler.ScopeMode(c.Crawler.ScopeMode),
		Scope:           c.Crawler.Scope,
	}
}
