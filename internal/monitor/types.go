// Package monitor defines core types shared across the price-watch subsystems.
package monitor

import (
	"time"
)

// Availability is the tri-state stock signal extracted from a product page.
type Availability string

// Availability values persisted with each observation.
const (
	AvailabilityAvailable   Availability = "available"
	AvailabilityUnavailable Availability = "unavailable"
	AvailabilityUnknown     Availability = "unknown"
)

// Product is a URL being watched. Deactivated products are kept for their
// history; active=false simply excludes them from sweeps.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Domain      string    `json:"domain"`
	TargetPrice *float64  `json:"target_price,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Observation is one row of the append-only scrape history. Exactly one is
// recorded per scrape attempt, success or failure.
type Observation struct {
	ID           string       `json:"id"`
	ProductID    string       `json:"product_id"`
	Price        *float64     `json:"price,omitempty"`
	Availability Availability `json:"availability"`
	Title        *string      `json:"title,omitempty"`
	ImageURL     *string      `json:"image_url,omitempty"`
	ScrapedAt    time.Time    `json:"scraped_at"`
	Success      bool         `json:"success"`
	ErrorKind    *ErrorKind   `json:"error_kind,omitempty"`
}

// AlertTypePriceTarget is the only alert type currently emitted.
const AlertTypePriceTarget = "price_target_reached"

// Alert is an immutable record produced when a product crosses its target
// price.
type Alert struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	AlertType   string    `json:"alert_type"`
	Message     string    `json:"message"`
	Price       float64   `json:"price"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// Snapshot is the structured set of fields extracted from one page fetch.
// Each field degrades independently; a nil field means no selector or pattern
// matched for it.
type Snapshot struct {
	Title        *string
	Price        *float64
	Availability Availability
	ImageURL     *string
}

// Empty reports whether nothing at all was extracted from the page. An empty
// snapshot marks the containing observation as failed.
func (s Snapshot) Empty() bool {
	return s.Title == nil && s.Price == nil && s.ImageURL == nil &&
		s.Availability == AvailabilityUnknown
}

// RawPage is the body returned by a Fetcher for a single product URL.
type RawPage struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
	FetchedAt  time.Time
}

// SiteConfig holds per-domain extraction rules and politeness limits. The
// zero value is not usable; unconfigured domains receive the registry's
// generic default instead.
type SiteConfig struct {
	Domain                string   `mapstructure:"domain"`
	TitleSelectors        []string `mapstructure:"title_selectors"`
	PriceSelectors        []string `mapstructure:"price_selectors"`
	AvailabilitySelectors []string `mapstructure:"availability_selectors"`
	ImageSelectors        []string `mapstructure:"image_selectors"`
	RateLimitSeconds      float64  `mapstructure:"rate_limit_seconds"`
	MaxConcurrent         int      `mapstructure:"max_concurrent"`
}
