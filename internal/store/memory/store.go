// Package memory provides an in-memory Store for development and testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pricewatch/pricewatch/internal/monitor"
)

// Store keeps products, observations and alerts in process memory. All
// returned values are copies so callers cannot mutate internal state.
type Store struct {
	mu           sync.RWMutex
	products     map[string]monitor.Product
	byURL        map[string]string
	observations []monitor.Observation
	alerts       []monitor.Alert
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		products: make(map[string]monitor.Product),
		byURL:    make(map[string]string),
	}
}

// CreateProduct registers a product. The URL must not already be watched.
func (s *Store) CreateProduct(_ context.Context, p monitor.Product) (monitor.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byURL[p.URL]; exists {
		return monitor.Product{}, monitor.ErrDuplicateURL
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.Active = true
	s.products[p.ID] = p
	s.byURL[p.URL] = p.ID
	return p, nil
}

// GetProduct returns the product or monitor.ErrNotFound.
func (s *Store) GetProduct(_ context.Context, id string) (monitor.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return monitor.Product{}, monitor.ErrNotFound
	}
	return p, nil
}

// ListProducts returns products sorted by creation time, oldest first.
func (s *Store) ListProducts(_ context.Context, activeOnly bool) ([]monitor.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]monitor.Product, 0, len(s.products))
	for _, p := range s.products {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// DeactivateProduct stops monitoring while preserving history.
func (s *Store) DeactivateProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return monitor.ErrNotFound
	}
	p.Active = false
	s.products[id] = p
	return nil
}

// RecordObservation appends one observation to the history.
func (s *Store) RecordObservation(_ context.Context, o monitor.Observation) (monitor.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[o.ProductID]; !ok {
		return monitor.Observation{}, monitor.ErrNotFound
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.ScrapedAt.IsZero() {
		o.ScrapedAt = time.Now().UTC()
	}
	s.observations = append(s.observations, o)
	return o, nil
}

// RecentObservations returns observations for a product, newest first.
// A zero since means no lower bound; a non-positive limit means no cap.
func (s *Store) RecentObservations(
	_ context.Context,
	productID string,
	limit int,
	since time.Time,
) ([]monitor.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []monitor.Observation
	for _, o := range s.observations {
		if o.ProductID != productID {
			continue
		}
		if !since.IsZero() && o.ScrapedAt.Before(since) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ScrapedAt.After(out[j].ScrapedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LatestPricedObservation returns the newest successful observation that
// carries a price, or monitor.ErrNotFound if none exists.
func (s *Store) LatestPricedObservation(_ context.Context, productID string) (monitor.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *monitor.Observation
	for i := range s.observations {
		o := s.observations[i]
		if o.ProductID != productID || !o.Success || o.Price == nil {
			continue
		}
		if best == nil || o.ScrapedAt.After(best.ScrapedAt) {
			best = &o
		}
	}
	if best == nil {
		return monitor.Observation{}, monitor.ErrNotFound
	}
	return *best, nil
}

// FailingProducts counts failed observations per product since the cutoff
// and returns the products strictly above the threshold.
func (s *Store) FailingProducts(
	_ context.Context,
	since time.Time,
	threshold int,
) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, o := range s.observations {
		if o.Success || o.ScrapedAt.Before(since) {
			continue
		}
		counts[o.ProductID]++
	}
	out := make(map[string]int)
	for id, n := range counts {
		if n > threshold {
			out[id] = n
		}
	}
	return out, nil
}

// RecordAlert appends an alert to the log.
func (s *Store) RecordAlert(_ context.Context, a monitor.Alert) (monitor.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.TriggeredAt.IsZero() {
		a.TriggeredAt = time.Now().UTC()
	}
	s.alerts = append(s.alerts, a)
	return a, nil
}

// AlertsSince returns alerts triggered at or after the cutoff, newest first.
func (s *Store) AlertsSince(_ context.Context, since time.Time) ([]monitor.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []monitor.Alert
	for _, a := range s.alerts {
		if a.TriggeredAt.Before(since) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TriggeredAt.After(out[j].TriggeredAt)
	})
	return out, nil
}

// PruneObservations removes observations older than the cutoff and reports
// how many were dropped. Products and alerts are never pruned.
func (s *Store) PruneObservations(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.observations[:0]
	var removed int64
	for _, o := range s.observations {
		if o.ScrapedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, o)
	}
	s.observations = kept
	return removed, nil
}
