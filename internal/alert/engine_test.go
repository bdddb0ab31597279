package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pricewatch/pricewatch/internal/monitor"
	"github.com/pricewatch/pricewatch/internal/store/memory"
)

type recordingPublisher struct {
	published []monitor.Alert
	fail      bool
}

func (p *recordingPublisher) Publish(_ context.Context, a monitor.Alert) error {
	if p.fail {
		return errors.New("feed unavailable")
	}
	p.published = append(p.published, a)
	return nil
}

func target(v float64) *float64 { return &v }

func pricedObs(productID string, price float64, at time.Time) monitor.Observation {
	return monitor.Observation{
		ProductID:    productID,
		Price:        &price,
		Availability: monitor.AvailabilityAvailable,
		ScrapedAt:    at,
		Success:      true,
	}
}

func TestEdgeTriggerReArms(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	pub := &recordingPublisher{}
	engine := NewEngine(store, pub, PolicyEdge, zap.NewNop())

	p, err := store.CreateProduct(ctx, monitor.Product{
		Name:        "widget",
		URL:         "https://example.com/p/1",
		Domain:      "example.com",
		TargetPrice: target(90),
	})
	require.NoError(t, err)

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	prices := []float64{100, 90, 85, 95, 80}
	var fired []float64

	var prev *monitor.Observation
	for i, price := range prices {
		obs := pricedObs(p.ID, price, base.Add(time.Duration(i)*time.Hour))
		a, err := engine.Evaluate(ctx, p, obs, prev)
		require.NoError(t, err)
		if a != nil {
			fired = append(fired, a.Price)
		}
		recorded, err := store.RecordObservation(ctx, obs)
		require.NoError(t, err)
		prev = &recorded
	}

	// 90 fires the crossing, 85 stays below without re-firing, 95 re-arms,
	// 80 fires the second crossing.
	require.Equal(t, []float64{90, 80}, fired)

	alerts, err := store.AlertsSince(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	require.Len(t, pub.published, 2)
}

func TestLevelPolicyFiresWhileBelowTarget(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	engine := NewEngine(store, nil, PolicyLevel, zap.NewNop())

	p, err := store.CreateProduct(ctx, monitor.Product{
		Name:        "widget",
		URL:         "https://example.com/p/1",
		TargetPrice: target(90),
	})
	require.NoError(t, err)

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	var fired int
	var prev *monitor.Observation
	for i, price := range []float64{100, 90, 85, 95, 80} {
		obs := pricedObs(p.ID, price, base.Add(time.Duration(i)*time.Hour))
		a, err := engine.Evaluate(ctx, p, obs, prev)
		require.NoError(t, err)
		if a != nil {
			fired++
		}
		prev = &obs
	}
	require.Equal(t, 3, fired)
}

func TestNoTargetNoAlert(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	engine := NewEngine(store, nil, PolicyEdge, zap.NewNop())

	p, err := store.CreateProduct(ctx, monitor.Product{
		Name: "widget",
		URL:  "https://example.com/p/1",
	})
	require.NoError(t, err)

	a, err := engine.Evaluate(ctx, p, pricedObs(p.ID, 1, time.Now().UTC()), nil)
	require.NoError(t, err)
	require.Nil(t, a)
}

func TestFailedOrUnpricedObservationNeverFires(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	engine := NewEngine(store, nil, PolicyEdge, zap.NewNop())

	p, err := store.CreateProduct(ctx, monitor.Product{
		Name:        "widget",
		URL:         "https://example.com/p/1",
		TargetPrice: target(90),
	})
	require.NoError(t, err)

	kind := monitor.ErrorKindTimeout
	a, err := engine.Evaluate(ctx, p, monitor.Observation{
		ProductID: p.ID, Success: false, ErrorKind: &kind,
	}, nil)
	require.NoError(t, err)
	require.Nil(t, a)

	a, err = engine.Evaluate(ctx, p, monitor.Observation{
		ProductID: p.ID, Success: true, Availability: monitor.AvailabilityAvailable,
	}, nil)
	require.NoError(t, err)
	require.Nil(t, a)
}

func TestFirstObservationAtTargetFires(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	engine := NewEngine(store, nil, PolicyEdge, zap.NewNop())

	p, err := store.CreateProduct(ctx, monitor.Product{
		Name:        "widget",
		URL:         "https://example.com/p/1",
		TargetPrice: target(90),
	})
	require.NoError(t, err)

	a, err := engine.Evaluate(ctx, p, pricedObs(p.ID, 90, time.Now().UTC()), nil)
	require.NoError(t, err)
	require.NotNil(t, a)
	require.Equal(t, monitor.AlertTypePriceTarget, a.AlertType)
}

func TestPublishFailureDoesNotFailEvaluation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	pub := &recordingPublisher{fail: true}
	engine := NewEngine(store, pub, PolicyEdge, zap.NewNop())

	p, err := store.CreateProduct(ctx, monitor.Product{
		Name:        "widget",
		URL:         "https://example.com/p/1",
		TargetPrice: target(90),
	})
	require.NoError(t, err)

	a, err := engine.Evaluate(ctx, p, pricedObs(p.ID, 80, time.Now().UTC()), nil)
	require.NoError(t, err)
	require.NotNil(t, a)

	alerts, err := store.AlertsSince(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
}

func TestParsePolicy(t *testing.T) {
	t.Parallel()

	p, err := ParsePolicy("")
	require.NoError(t, err)
	require.Equal(t, PolicyEdge, p)

	p, err = ParsePolicy("level")
	require.NoError(t, err)
	require.Equal(t, PolicyLevel, p)

	_, err = ParsePolicy("sometimes")
	require.Error(t, err)
}
