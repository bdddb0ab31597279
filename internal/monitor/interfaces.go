package monitor

import (
	"context"
	"time"
)

// Fetcher retrieves the raw content of a product page, honoring robots.txt,
// timeouts and retry policy. It never touches the store.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (RawPage, error)
}

// Extractor turns a raw page plus a site configuration into a structured
// snapshot. Missing fields degrade independently; extraction never fails for
// a single absent field.
type Extractor interface {
	Extract(page RawPage, cfg SiteConfig) Snapshot
}

// Registry resolves the site configuration for a URL. It is consulted fresh
// on every scrape so hot reloads take effect without a restart.
type Registry interface {
	ConfigFor(url string) SiteConfig
}

// Store is the durable record of watched products, the append-only
// observation history and the append-only alert log.
type Store interface {
	CreateProduct(ctx context.Context, p Product) (Product, error)
	GetProduct(ctx context.Context, id string) (Product, error)
	ListProducts(ctx context.Context, activeOnly bool) ([]Product, error)
	DeactivateProduct(ctx context.Context, id string) error

	RecordObservation(ctx context.Context, o Observation) (Observation, error)
	RecentObservations(ctx context.Context, productID string, limit int, since time.Time) ([]Observation, error)
	LatestPricedObservation(ctx context.Context, productID string) (Observation, error)
	FailingProducts(ctx context.Context, since time.Time, threshold int) (map[string]int, error)

	RecordAlert(ctx context.Context, a Alert) (Alert, error)
	AlertsSince(ctx context.Context, since time.Time) ([]Alert, error)

	PruneObservations(ctx context.Context, cutoff time.Time) (int64, error)
}

// Publisher pushes alert records to an external feed (Pub/Sub or similar).
type Publisher interface {
	Publish(ctx context.Context, a Alert) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
