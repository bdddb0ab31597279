package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pricewatch/pricewatch/internal/metrics"
	"github.com/pricewatch/pricewatch/internal/monitor"
)

// domainGates enforces per-domain politeness: a minimum interval between
// requests and a concurrency ceiling. Gates are created lazily and updated
// when a site's configured rate changes.
type domainGates struct {
	mu    sync.Mutex
	gates map[string]*domainGate
}

type domainGate struct {
	limiter *rate.Limiter
	slots   chan struct{}
}

func newDomainGates() *domainGates {
	return &domainGates{gates: make(map[string]*domainGate)}
}

// acquire blocks until the domain has both a free concurrency slot and a
// rate token. The returned release must be called when the request finishes.
func (g *domainGates) acquire(ctx context.Context, cfg monitor.SiteConfig) (func(), error) {
	gate := g.gateFor(cfg)

	select {
	case gate.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	start := time.Now()
	if err := gate.limiter.Wait(ctx); err != nil {
		<-gate.slots
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(cfg.Domain, waited)
	}

	return func() { <-gate.slots }, nil
}

func (g *domainGates) gateFor(cfg monitor.SiteConfig) *domainGate {
	limit := intervalLimit(cfg.RateLimitSeconds)

	g.mu.Lock()
	defer g.mu.Unlock()
	gate, ok := g.gates[cfg.Domain]
	if !ok {
		slots := cfg.MaxConcurrent
		if slots <= 0 {
			slots = 1
		}
		gate = &domainGate{
			limiter: rate.NewLimiter(limit, 1),
			slots:   make(chan struct{}, slots),
		}
		g.gates[cfg.Domain] = gate
		return gate
	}
	// Hot-reloaded rate changes take effect on the next acquire. Slot counts
	// keep their original size; changing them would strand in-flight holders.
	if gate.limiter.Limit() != limit {
		gate.limiter.SetLimit(limit)
	}
	return gate
}

func intervalLimit(seconds float64) rate.Limit {
	if seconds <= 0 {
		return rate.Inf
	}
	return rate.Every(time.Duration(seconds * float64(time.Second)))
}
