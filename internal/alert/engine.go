// Package alert evaluates price observations against product targets and
// records the resulting alerts.
package alert

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pricewatch/pricewatch/internal/monitor"
)

// Policy selects when a target-price condition fires.
type Policy string

// Supported policies. Edge fires on the crossing into target range and
// re-arms once the price rises back above the target; level fires on every
// observation at or below the target.
const (
	PolicyEdge  Policy = "edge"
	PolicyLevel Policy = "level"
)

// ParsePolicy validates a configured policy string.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyEdge, PolicyLevel:
		return Policy(s), nil
	case "":
		return PolicyEdge, nil
	default:
		return "", fmt.Errorf("unknown alert policy %q", s)
	}
}

// Engine turns qualifying observations into persisted, published alerts.
type Engine struct {
	store     monitor.Store
	publisher monitor.Publisher
	policy    Policy
	logger    *zap.Logger
}

// NewEngine constructs an Engine. The publisher may be nil when no external
// feed is configured.
func NewEngine(store monitor.Store, publisher monitor.Publisher, policy Policy, logger *zap.Logger) *Engine {
	if policy == "" {
		policy = PolicyEdge
	}
	return &Engine{
		store:     store,
		publisher: publisher,
		policy:    policy,
		logger:    logger,
	}
}

// Evaluate decides whether the new observation fires a price-target alert,
// records it, and pushes it to the feed. prev is the latest priced
// observation from before obs was taken; nil means no price history.
// The returned alert is nil when nothing fired.
func (e *Engine) Evaluate(
	ctx context.Context,
	p monitor.Product,
	obs monitor.Observation,
	prev *monitor.Observation,
) (*monitor.Alert, error) {
	if !shouldFire(e.policy, p, obs, prev) {
		return nil, nil
	}

	recorded, err := e.store.RecordAlert(ctx, monitor.Alert{
		ProductID: p.ID,
		AlertType: monitor.AlertTypePriceTarget,
		Message: fmt.Sprintf("%s reached target price: %.2f (target %.2f)",
			p.Name, *obs.Price, *p.TargetPrice),
		Price:       *obs.Price,
		TriggeredAt: obs.ScrapedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("record alert: %w", err)
	}

	e.logger.Info("price target reached",
		zap.String("product_id", p.ID),
		zap.Float64("price", recorded.Price),
		zap.Float64("target", *p.TargetPrice),
	)

	if e.publisher != nil {
		// The alert is already durable; a feed hiccup must not fail the scrape.
		if err := e.publisher.Publish(ctx, recorded); err != nil {
			e.logger.Warn("publish alert failed",
				zap.String("alert_id", recorded.ID), zap.Error(err))
		}
	}
	return &recorded, nil
}

func shouldFire(policy Policy, p monitor.Product, obs monitor.Observation, prev *monitor.Observation) bool {
	if p.TargetPrice == nil || !obs.Success || obs.Price == nil {
		return false
	}
	target := *p.TargetPrice
	if *obs.Price > target {
		return false
	}
	if policy == PolicyLevel {
		return true
	}
	// Edge: fire only on the crossing. A product whose last known price was
	// already at or below target stays armed-off until it rises above.
	return prev == nil || prev.Price == nil || *prev.Price > target
}
