// Package scheduler drives the recurring price sweeps and daily maintenance.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/pricewatch/pricewatch/internal/alert"
	"github.com/pricewatch/pricewatch/internal/metrics"
	"github.com/pricewatch/pricewatch/internal/monitor"
)

// failureWindow is the lookback used when flagging persistently failing
// products during maintenance.
const failureWindow = 7 * 24 * time.Hour

// Config controls sweep and maintenance timing.
type Config struct {
	SweepInterval      time.Duration
	MaintenanceHourUTC int
	GlobalConcurrency  int
	Retention          time.Duration
	FailureThreshold   int
}

// Scheduler owns the sweep and maintenance loops. One scrape failure never
// aborts a sweep; every attempt lands in the store as an observation.
type Scheduler struct {
	store     monitor.Store
	fetcher   monitor.Fetcher
	extractor monitor.Extractor
	registry  monitor.Registry
	alerts    *alert.Engine
	clock     monitor.Clock
	logger    *zap.Logger
	cfg       Config

	gates    *domainGates
	sem      *semaphore.Weighted
	sweeping atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Scheduler.
func New(
	store monitor.Store,
	fetcher monitor.Fetcher,
	extractor monitor.Extractor,
	registry monitor.Registry,
	alerts *alert.Engine,
	clock monitor.Clock,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 6 * time.Hour
	}
	if cfg.GlobalConcurrency <= 0 {
		cfg.GlobalConcurrency = 8
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 90 * 24 * time.Hour
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 10
	}
	return &Scheduler{
		store:     store,
		fetcher:   fetcher,
		extractor: extractor,
		registry:  registry,
		alerts:    alerts,
		clock:     clock,
		logger:    logger,
		cfg:       cfg,
		gates:     newDomainGates(),
		sem:       semaphore.NewWeighted(int64(cfg.GlobalConcurrency)),
	}
}

// Start launches the sweep and maintenance loops. The first sweep runs
// immediately.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sweepLoop(ctx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.maintenanceLoop(ctx)
	}()
}

// Stop cancels the loops and waits for in-flight scrapes to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) sweepLoop(ctx context.Context) {
	s.Sweep(ctx)

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep scrapes every active product once. If the previous sweep is still
// running the new one is skipped entirely.
func (s *Scheduler) Sweep(ctx context.Context) {
	if !s.sweeping.CompareAndSwap(false, true) {
		s.logger.Warn("sweep still running, skipping this cycle")
		metrics.ObserveSweepSkipped()
		return
	}
	defer s.sweeping.Store(false)

	start := s.clock.Now()
	products, err := s.store.ListProducts(ctx, true)
	if err != nil {
		s.logger.Error("list products for sweep failed", zap.Error(err))
		return
	}
	s.logger.Info("sweep started", zap.Int("products", len(products)))

	var wg sync.WaitGroup
	for _, p := range products {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(p monitor.Product) {
			defer wg.Done()
			defer s.sem.Release(1)
			s.scrapeProduct(ctx, p)
		}(p)
	}
	wg.Wait()

	elapsed := s.clock.Now().Sub(start)
	metrics.ObserveSweep(elapsed)
	s.logger.Info("sweep finished",
		zap.Int("products", len(products)),
		zap.Duration("elapsed", elapsed),
	)
}

// ScrapeNow scrapes a single product outside the sweep cycle, still honoring
// the domain gates. It returns the recorded observation.
func (s *Scheduler) ScrapeNow(ctx context.Context, productID string) (monitor.Observation, error) {
	p, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return monitor.Observation{}, err
	}
	if !p.Active {
		return monitor.Observation{}, fmt.Errorf("product %s is not active", productID)
	}
	obs := s.scrapeProduct(ctx, p)
	if obs.ID == "" {
		return monitor.Observation{}, fmt.Errorf("scrape for product %s was not recorded", productID)
	}
	return obs, nil
}

// scrapeProduct runs the full fetch/extract/persist/alert pipeline for one
// product. All failure paths are absorbed into a failed observation.
func (s *Scheduler) scrapeProduct(ctx context.Context, p monitor.Product) monitor.Observation {
	start := time.Now()
	cfg := s.registry.ConfigFor(p.URL)

	release, err := s.gates.acquire(ctx, cfg)
	if err != nil {
		s.logger.Debug("domain gate wait aborted",
			zap.String("product_id", p.ID), zap.Error(err))
		return monitor.Observation{}
	}
	page, fetchErr := s.fetcher.Fetch(ctx, p.URL)
	release()

	obs := monitor.Observation{
		ProductID:    p.ID,
		Availability: monitor.AvailabilityUnknown,
		ScrapedAt:    s.clock.Now(),
	}

	outcome := "success"
	switch {
	case fetchErr != nil:
		kind := monitor.KindOf(fetchErr)
		obs.Success = false
		obs.ErrorKind = &kind
		outcome = string(kind)
		s.logger.Warn("fetch failed",
			zap.String("product_id", p.ID),
			zap.String("url", p.URL),
			zap.String("kind", string(kind)),
			zap.Error(fetchErr),
		)
	default:
		snap := s.extractor.Extract(page, cfg)
		if snap.Empty() {
			kind := monitor.ErrorKindParse
			obs.Success = false
			obs.ErrorKind = &kind
			outcome = string(kind)
			s.logger.Warn("page yielded no fields",
				zap.String("product_id", p.ID),
				zap.String("url", p.URL),
			)
		} else {
			obs.Success = true
			obs.Price = snap.Price
			obs.Title = snap.Title
			obs.ImageURL = snap.ImageURL
			obs.Availability = snap.Availability
		}
	}
	metrics.ObserveScrape(p.URL, outcome, time.Since(start))

	prev, prevErr := s.store.LatestPricedObservation(ctx, p.ID)
	hadPrev := prevErr == nil
	if prevErr != nil && !errors.Is(prevErr, monitor.ErrNotFound) {
		s.logger.Error("load price history failed",
			zap.String("product_id", p.ID), zap.Error(prevErr))
	}

	recorded, err := s.store.RecordObservation(ctx, obs)
	if err != nil {
		s.logger.Error("record observation failed",
			zap.String("product_id", p.ID), zap.Error(err))
		return monitor.Observation{}
	}

	if recorded.Success {
		var prevPtr *monitor.Observation
		if hadPrev {
			prevPtr = &prev
		}
		fired, err := s.alerts.Evaluate(ctx, p, recorded, prevPtr)
		if err != nil {
			s.logger.Error("alert evaluation failed",
				zap.String("product_id", p.ID), zap.Error(err))
		} else if fired != nil {
			metrics.ObserveAlertFired()
		}
	}
	return recorded
}

func (s *Scheduler) maintenanceLoop(ctx context.Context) {
	for {
		next := nextMaintenance(s.clock.Now(), s.cfg.MaintenanceHourUTC)
		timer := time.NewTimer(next.Sub(s.clock.Now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.RunMaintenance(ctx)
		}
	}
}

// RunMaintenance prunes observations past the retention horizon and flags
// products failing persistently. Flagged products keep being swept; the flag
// is operator-facing only.
func (s *Scheduler) RunMaintenance(ctx context.Context) {
	now := s.clock.Now()

	removed, err := s.store.PruneObservations(ctx, now.Add(-s.cfg.Retention))
	if err != nil {
		s.logger.Error("prune observations failed", zap.Error(err))
	} else {
		metrics.ObservePruned(removed)
		s.logger.Info("pruned observations", zap.Int64("removed", removed))
	}

	failing, err := s.store.FailingProducts(ctx, now.Add(-failureWindow), s.cfg.FailureThreshold)
	if err != nil {
		s.logger.Error("failing products query failed", zap.Error(err))
		return
	}
	metrics.SetDegradedProducts(len(failing))
	for id, count := range failing {
		s.logger.Warn("product failing persistently",
			zap.String("product_id", id),
			zap.Int("failures", count),
		)
	}
}

// nextMaintenance returns the next occurrence of the given UTC hour strictly
// after now.
func nextMaintenance(now time.Time, hour int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
