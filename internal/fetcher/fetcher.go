// Package fetcher retrieves product pages over HTTP with robots enforcement,
// politeness delays, identity rotation and retry/backoff.
package fetcher

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/pricewatch/pricewatch/internal/monitor"
)

// Config controls fetch behavior.
type Config struct {
	Timeout           time.Duration
	MaxRetries        int
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	DelayMin          time.Duration
	DelayMax          time.Duration
	RotateProbability float64
	RespectRobots     bool
	UserAgents        []string
	Seed              int64
}

// Fetcher implements monitor.Fetcher on top of a Colly collector, cloned per
// request so each fetch gets a clean collector state.
type Fetcher struct {
	cfg        Config
	base       *colly.Collector
	robots     *RobotsGate
	identities *identityPool
	backoff    *BackoffPolicy
	logger     *zap.Logger

	delayMu  sync.Mutex
	delayRng *rand.Rand
}

// New constructs a configured Fetcher.
func New(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	identities := newIdentityPool(cfg.UserAgents, cfg.RotateProbability, rand.New(rand.NewSource(seed)))

	base := colly.NewCollector(
		colly.Async(true),
		colly.UserAgent(identities.Current()),
	)
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.Timeout)

	var gate *RobotsGate
	if cfg.RespectRobots {
		gate = NewRobotsGate(identities.Current(), logger.Named("robots"))
	}

	return &Fetcher{
		cfg:        cfg,
		base:       base,
		robots:     gate,
		identities: identities,
		backoff:    NewBackoffPolicy(cfg.MaxRetries, cfg.BackoffInitial, cfg.BackoffMax),
		logger:     logger,
		delayRng:   rand.New(rand.NewSource(seed + 1)),
	}, nil
}

// Fetch implements monitor.Fetcher. The robots decision is made before any
// page request; a disallowed path never reaches the network.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (monitor.RawPage, error) {
	if f.robots != nil && !f.robots.Allowed(ctx, rawURL) {
		return monitor.RawPage{}, &monitor.FetchError{Kind: monitor.ErrorKindRobots}
	}

	var lastErr error
	for attempt := 1; attempt <= f.backoff.MaxAttempts(); attempt++ {
		if err := f.politenessDelay(ctx); err != nil {
			if lastErr != nil {
				return monitor.RawPage{}, lastErr
			}
			return monitor.RawPage{}, err
		}

		page, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			return page, nil
		}
		lastErr = err

		if !f.backoff.ShouldRetry(err, attempt) {
			break
		}
		wait := f.backoff.Backoff(attempt)
		f.logger.Debug("retrying fetch",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if serr := sleepCtx(ctx, wait); serr != nil {
			return monitor.RawPage{}, lastErr
		}
	}
	return monitor.RawPage{}, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (monitor.RawPage, error) {
	collector := f.base.Clone()
	collector.UserAgent = f.identities.Next()

	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	collector.OnResponse(func(r *colly.Response) {
		page := monitor.RawPage{
			URL:        rawURL,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte{}, r.Body...),
			FetchedAt:  time.Now().UTC(),
		}
		send(fetchResult{page: page})
	})

	collector.OnError(func(r *colly.Response, err error) {
		send(fetchResult{err: classify(r, err)})
	})

	if err := collector.Visit(rawURL); err != nil {
		return monitor.RawPage{}, classify(nil, err)
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return monitor.RawPage{}, err
		}
		return res.page, res.err
	default:
		return monitor.RawPage{}, &monitor.FetchError{
			Kind: monitor.ErrorKindNetwork,
			Err:  errors.New("fetch produced no result"),
		}
	}
}

// politenessDelay sleeps a random duration inside the configured range so
// sweeps never hit a site in lock-step.
func (f *Fetcher) politenessDelay(ctx context.Context) error {
	if f.cfg.DelayMax <= 0 {
		return nil
	}
	delay := f.cfg.DelayMin
	if span := f.cfg.DelayMax - f.cfg.DelayMin; span > 0 {
		f.delayMu.Lock()
		delay += time.Duration(f.delayRng.Int63n(int64(span)))
		f.delayMu.Unlock()
	}
	return sleepCtx(ctx, delay)
}

type fetchResult struct {
	page monitor.RawPage
	err  error
}

// classify maps a failed attempt to the fetch error taxonomy.
func classify(resp *colly.Response, err error) *monitor.FetchError {
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	if status > 0 && (status < 200 || status >= 300) {
		return &monitor.FetchError{Kind: monitor.ErrorKindHTTP, StatusCode: status, Err: err}
	}
	var netErr net.Error
	if (errors.As(err, &netErr) && netErr.Timeout()) || errors.Is(err, context.DeadlineExceeded) {
		return &monitor.FetchError{Kind: monitor.ErrorKindTimeout, Err: err}
	}
	return &monitor.FetchError{Kind: monitor.ErrorKindNetwork, Err: err}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
