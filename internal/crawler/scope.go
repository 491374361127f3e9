package crawler

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ScopeMode selects how discovered content URLs are matched against the seed.
type ScopeMode string

// Supported scope modes.
const (
	// ScopePrefix keeps URLs whose text starts with the scope URL.
	ScopePrefix ScopeMode = "prefix"
	// ScopeHost keeps URLs on the same host as the scope URL.
	ScopeHost ScopeMode = "host"
	// ScopeDomain keeps URLs sharing the scope URL's registrable domain.
	ScopeDomain ScopeMode = "domain"
)

// Scope decides which discovered content URLs are followed.
type Scope struct {
	mode   ScopeMode
	base   string
	host   string
	domain string
}

// NewScope builds a Scope rooted at base. base is normalized the same way
// discovered links are, so prefix matching compares like with like.
func NewScope(mode ScopeMode, base string) (*Scope, error) {
	if mode == "" {
		mode = ScopePrefix
	}
	base, err := NormalizeURL(base)
	if err != nil {
		return nil, fmt.Errorf("normalize scope url: %w", err)
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse scope url: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("scope url %q has no host", base)
	}
	s := &Scope{
		mode: mode,
		base: base,
		host: strings.ToLower(u.Hostname()),
	}
	switch mode {
	case ScopePrefix, ScopeHost:
	case ScopeDomain:
		s.domain = effectiveDomain(s.host)
	default:
		return nil, fmt.Errorf("unknown scope mode %q", mode)
	}
	return s, nil
}

// Contains reports whether candidate is inside the scope.
func (s *Scope) Contains(candidate string) bool {
	if s.mode == ScopePrefix {
		return strings.HasPrefix(candidate, s.base)
	}
	u, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if s.mode == ScopeHost {
		return host == s.host
	}
	return effectiveDomain(host) == s.domain
}

func effectiveDomain(host string) string {
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}
