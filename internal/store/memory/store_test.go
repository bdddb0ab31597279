package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pricewatch/pricewatch/internal/monitor"
)

func newProduct(t *testing.T, s *Store, url string) monitor.Product {
	t.Helper()
	p, err := s.CreateProduct(context.Background(), monitor.Product{
		Name:   "widget",
		URL:    url,
		Domain: "example.com",
	})
	require.NoError(t, err)
	return p
}

func TestCreateProductRejectsDuplicateURL(t *testing.T) {
	t.Parallel()

	s := New()
	newProduct(t, s, "https://example.com/p/1")
	_, err := s.CreateProduct(context.Background(), monitor.Product{
		URL: "https://example.com/p/1",
	})
	require.ErrorIs(t, err, monitor.ErrDuplicateURL)
}

func TestDeactivatePreservesHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	p := newProduct(t, s, "https://example.com/p/1")

	price := 9.99
	_, err := s.RecordObservation(ctx, monitor.Observation{
		ProductID:    p.ID,
		Price:        &price,
		Availability: monitor.AvailabilityAvailable,
		Success:      true,
	})
	require.NoError(t, err)

	require.NoError(t, s.DeactivateProduct(ctx, p.ID))

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.False(t, got.Active)

	active, err := s.ListProducts(ctx, true)
	require.NoError(t, err)
	require.Empty(t, active)

	all, err := s.ListProducts(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 1)

	obs, err := s.RecentObservations(ctx, p.ID, 0, time.Time{})
	require.NoError(t, err)
	require.Len(t, obs, 1)
}

func TestDeactivateUnknownProduct(t *testing.T) {
	t.Parallel()

	s := New()
	require.ErrorIs(t, s.DeactivateProduct(context.Background(), "missing"), monitor.ErrNotFound)
}

func TestRecentObservationsOrderAndLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	p := newProduct(t, s, "https://example.com/p/1")

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := s.RecordObservation(ctx, monitor.Observation{
			ProductID: p.ID,
			ScrapedAt: base.Add(time.Duration(i) * time.Hour),
			Success:   true,
		})
		require.NoError(t, err)
	}

	obs, err := s.RecentObservations(ctx, p.ID, 3, time.Time{})
	require.NoError(t, err)
	require.Len(t, obs, 3)
	require.Equal(t, base.Add(4*time.Hour), obs[0].ScrapedAt)
	require.Equal(t, base.Add(2*time.Hour), obs[2].ScrapedAt)

	obs, err = s.RecentObservations(ctx, p.ID, 0, base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, obs, 2)
}

func TestLatestPricedObservationSkipsFailuresAndNilPrices(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	p := newProduct(t, s, "https://example.com/p/1")

	_, err := s.LatestPricedObservation(ctx, p.ID)
	require.ErrorIs(t, err, monitor.ErrNotFound)

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	oldPrice := 19.99
	_, err = s.RecordObservation(ctx, monitor.Observation{
		ProductID: p.ID, Price: &oldPrice, Success: true, ScrapedAt: base,
	})
	require.NoError(t, err)

	// Newer but unpriced and failed rows must not shadow the priced one.
	_, err = s.RecordObservation(ctx, monitor.Observation{
		ProductID: p.ID, Success: true, ScrapedAt: base.Add(time.Hour),
	})
	require.NoError(t, err)
	kind := monitor.ErrorKindTimeout
	_, err = s.RecordObservation(ctx, monitor.Observation{
		ProductID: p.ID, Success: false, ErrorKind: &kind, ScrapedAt: base.Add(2 * time.Hour),
	})
	require.NoError(t, err)

	got, err := s.LatestPricedObservation(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Price)
	require.Equal(t, 19.99, *got.Price)
}

func TestFailingProductsThreshold(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	flaky := newProduct(t, s, "https://example.com/p/flaky")
	healthy := newProduct(t, s, "https://example.com/p/healthy")

	borderline := newProduct(t, s, "https://example.com/p/borderline")

	kind := monitor.ErrorKindNetwork
	now := time.Now().UTC()
	for i := 0; i < 11; i++ {
		_, err := s.RecordObservation(ctx, monitor.Observation{
			ProductID: flaky.ID, Success: false, ErrorKind: &kind,
			ScrapedAt: now.Add(-time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}
	// Exactly at the threshold is not flagged; only strictly more counts.
	for i := 0; i < 10; i++ {
		_, err := s.RecordObservation(ctx, monitor.Observation{
			ProductID: borderline.ID, Success: false, ErrorKind: &kind,
			ScrapedAt: now.Add(-time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}
	_, err := s.RecordObservation(ctx, monitor.Observation{
		ProductID: healthy.ID, Success: true, ScrapedAt: now,
	})
	require.NoError(t, err)
	// A stale failure before the cutoff must not count.
	_, err = s.RecordObservation(ctx, monitor.Observation{
		ProductID: healthy.ID, Success: false, ErrorKind: &kind,
		ScrapedAt: now.Add(-8 * 24 * time.Hour),
	})
	require.NoError(t, err)

	failing, err := s.FailingProducts(ctx, now.Add(-7*24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, failing, 1)
	require.Equal(t, 11, failing[flaky.ID])
	require.NotContains(t, failing, borderline.ID)
}

func TestPruneObservationsKeepsRecent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	p := newProduct(t, s, "https://example.com/p/1")

	now := time.Now().UTC()
	_, err := s.RecordObservation(ctx, monitor.Observation{
		ProductID: p.ID, Success: true, ScrapedAt: now.Add(-100 * 24 * time.Hour),
	})
	require.NoError(t, err)
	_, err = s.RecordObservation(ctx, monitor.Observation{
		ProductID: p.ID, Success: true, ScrapedAt: now.Add(-time.Hour),
	})
	require.NoError(t, err)
	_, err = s.RecordAlert(ctx, monitor.Alert{
		ProductID:   p.ID,
		AlertType:   monitor.AlertTypePriceTarget,
		Message:     "old alert",
		TriggeredAt: now.Add(-100 * 24 * time.Hour),
	})
	require.NoError(t, err)

	removed, err := s.PruneObservations(ctx, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	obs, err := s.RecentObservations(ctx, p.ID, 0, time.Time{})
	require.NoError(t, err)
	require.Len(t, obs, 1)

	// Pruning never touches the alert log.
	alerts, err := s.AlertsSince(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, "old alert", alerts[0].Message)
}

func TestAlertsSince(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	p := newProduct(t, s, "https://example.com/p/1")

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := s.RecordAlert(ctx, monitor.Alert{
			ProductID:   p.ID,
			AlertType:   monitor.AlertTypePriceTarget,
			Price:       50,
			TriggeredAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	alerts, err := s.AlertsSince(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	require.Equal(t, base.Add(2*time.Hour), alerts[0].TriggeredAt)
}
