// Package memory contains an in-memory alert publisher for development and
// tests.
package memory

import (
	"context"
	"sync"

	"github.com/pricewatch/pricewatch/internal/monitor"
)

// Publisher stores published alerts for inspection.
type Publisher struct {
	mu     sync.RWMutex
	alerts []monitor.Alert
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the alert.
func (p *Publisher) Publish(_ context.Context, a monitor.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, a)
	return nil
}

// Alerts returns a copy of the recorded alerts.
func (p *Publisher) Alerts() []monitor.Alert {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]monitor.Alert, len(p.alerts))
	copy(out, p.alerts)
	return out
}
