package crawler

import (
	"fmt"
	"time"
)

// Config captures the knobs that influence the content and harvest loops.
type Config struct {
	// Workers bounds the number of concurrent picture downloads.
	Workers int
	// BatchSize is the number of picture URLs polled per harvest round.
	BatchSize int
	// PollInterval is how long the harvester sleeps after an empty poll.
	PollInterval time.Duration
	// RedirectRetries is the extra navigations allowed while redirects settle.
	RedirectRetries int
	ScopeMode       ScopeMode
	// Scope overrides the seed URL as the scope root when set.
	Scope string
}

// DefaultConfig returns the defaults used when no overrides are provided.
func DefaultConfig() Config {
	return Config{
		Workers:         8,
		BatchSize:       8,
		PollInterval:    time.Second,
		RedirectRetries: 3,
		ScopeMode:       ScopePrefix,
	}
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("crawler.batch_size must be > 0")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("crawler.poll_interval must be > 0")
	}
	if c.RedirectRetries < 0 {
		return fmt.Errorf("crawler.redirect_retries must be >= 0")
	}
	switch c.ScopeMode {
	case ScopePrefix, ScopeHost, ScopeDomain:
	default:
		return fmt.Errorf("crawler.scope_mode %q is not supported", c.ScopeMode)
	}
	return nil
}
