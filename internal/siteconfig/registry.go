// Package siteconfig resolves per-domain extraction rules and politeness
// limits from a versioned YAML document, with hot reload.
package siteconfig

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pricewatch/pricewatch/internal/monitor"
)

// Defaults applied to unconfigured domains and to entries with missing
// politeness fields.
const (
	DefaultRateLimitSeconds = 5.0
	DefaultMaxConcurrent    = 1
)

// genericDefault is returned for domains without an entry. The selectors are
// deliberately broad: they lean on structured metadata most storefronts emit.
var genericDefault = monitor.SiteConfig{
	Domain: "",
	TitleSelectors: []string{
		"meta[property='og:title']",
		"h1",
		"title",
	},
	PriceSelectors: []string{
		"meta[property='product:price:amount']",
		"meta[property='og:price:amount']",
		"[itemprop='price']",
		".price",
		"[class*='price']",
	},
	AvailabilitySelectors: []string{
		"[itemprop='availability']",
		".availability",
		".stock",
	},
	ImageSelectors: []string{
		"meta[property='og:image']",
		"[itemprop='image']",
	},
	RateLimitSeconds: DefaultRateLimitSeconds,
	MaxConcurrent:    DefaultMaxConcurrent,
}

// Registry is the single source of truth for extraction rules and politeness
// limits, keyed by domain with "www." stripped. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]monitor.SiteConfig
	v       *viper.Viper
	logger  *zap.Logger
}

// fileDocument mirrors the YAML document layout.
type fileDocument struct {
	Version int                           `mapstructure:"version"`
	Sites   map[string]monitor.SiteConfig `mapstructure:"sites"`
}

// Load reads the site document at path and starts watching it for changes.
// A malformed document at startup is fatal; a malformed rewrite later is
// logged and the previous snapshot kept.
func Load(path string, logger *zap.Logger) (*Registry, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read site config: %w", err)
	}

	r := &Registry{
		v:      v,
		logger: logger,
	}
	if err := r.reload(); err != nil {
		return nil, err
	}

	v.OnConfigChange(func(fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Warn("site config reload failed; keeping previous snapshot", zap.Error(err))
			return
		}
		logger.Info("site config reloaded", zap.String("path", path))
	})
	v.WatchConfig()

	return r, nil
}

func (r *Registry) reload() error {
	var doc fileDocument
	if err := r.v.Unmarshal(&doc); err != nil {
		return fmt.Errorf("unmarshal site config: %w", err)
	}

	configs := make(map[string]monitor.SiteConfig, len(doc.Sites))
	for domain, cfg := range doc.Sites {
		key := NormalizeDomain(domain)
		if key == "" {
			return fmt.Errorf("site config has empty domain key")
		}
		cfg.Domain = key
		if cfg.RateLimitSeconds <= 0 {
			cfg.RateLimitSeconds = DefaultRateLimitSeconds
		}
		if cfg.MaxConcurrent <= 0 {
			cfg.MaxConcurrent = DefaultMaxConcurrent
		}
		configs[key] = cfg
	}

	r.mu.Lock()
	r.configs = configs
	r.mu.Unlock()
	return nil
}

// ConfigFor implements monitor.Registry. Unknown domains get the generic
// fallback with the request's domain filled in.
func (r *Registry) ConfigFor(rawURL string) monitor.SiteConfig {
	domain := DomainOf(rawURL)

	r.mu.RLock()
	cfg, ok := r.configs[domain]
	r.mu.RUnlock()
	if ok {
		return cfg
	}

	generic := genericDefault
	generic.Domain = domain
	return generic
}

// Len returns the number of configured domains.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.configs)
}

// NormalizeDomain lowercases a host and strips a leading "www.".
func NormalizeDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	return strings.TrimPrefix(host, "www.")
}

// DomainOf extracts the normalized domain from a URL. A URL that does not
// parse yields an empty domain, which maps to the generic fallback.
func DomainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return NormalizeDomain(u.Hostname())
}
