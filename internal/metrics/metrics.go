// Package metrics exposes Prometheus collectors for the price-watch service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scrapesTotal            *prometheus.CounterVec
	scrapeDurationSeconds   *prometheus.HistogramVec
	alertsFiredTotal        prometheus.Counter
	rateLimitDelaysSeconds  *prometheus.HistogramVec
	sweepDurationSeconds    prometheus.Histogram
	sweepsSkippedTotal      prometheus.Counter
	degradedProducts        prometheus.Gauge
	observationsPrunedTotal prometheus.Counter
	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call multiple
// times.
func Init() {
	once.Do(func() {
		scrapesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_scrapes_total",
				Help: "Total scrape attempts, labeled by domain and outcome.",
			},
			[]string{"domain", "outcome"},
		)

		scrapeDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricewatch_scrape_duration_seconds",
				Help:    "Histogram of end-to-end scrape latencies, labeled by domain.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		alertsFiredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pricewatch_alerts_fired_total",
				Help: "Total price-target alerts fired.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricewatch_rate_limit_delays_seconds",
				Help:    "Histogram of per-domain rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		sweepDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pricewatch_sweep_duration_seconds",
				Help:    "Histogram of full sweep durations.",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
			},
		)

		sweepsSkippedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pricewatch_sweeps_skipped_total",
				Help: "Sweeps skipped because the previous sweep was still running.",
			},
		)

		degradedProducts = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pricewatch_degraded_products",
				Help: "Products flagged by maintenance for persistent scrape failures.",
			},
		)

		observationsPrunedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pricewatch_observations_pruned_total",
				Help: "Observation rows removed by retention maintenance.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeDomain extracts a lowercase hostname from a URL or bare domain.
// It returns "unknown" if the input cannot be parsed.
func SanitizeDomain(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler exposing the Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveScrape records one scrape attempt.
func ObserveScrape(domain, outcome string, duration time.Duration) {
	d := SanitizeDomain(domain)
	scrapesTotal.WithLabelValues(d, outcome).Inc()
	scrapeDurationSeconds.WithLabelValues(d).Observe(duration.Seconds())
}

// ObserveAlertFired increments the alert counter.
func ObserveAlertFired() {
	alertsFiredTotal.Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(SanitizeDomain(domain)).Observe(duration.Seconds())
}

// ObserveSweep records the duration of a completed sweep.
func ObserveSweep(duration time.Duration) {
	sweepDurationSeconds.Observe(duration.Seconds())
}

// ObserveSweepSkipped increments the overlap-skip counter.
func ObserveSweepSkipped() {
	sweepsSkippedTotal.Inc()
}

// SetDegradedProducts updates the degraded-products gauge.
func SetDegradedProducts(n int) {
	degradedProducts.Set(float64(n))
}

// ObservePruned adds the number of observation rows removed by maintenance.
func ObservePruned(n int64) {
	if n > 0 {
		observationsPrunedTotal.Add(float64(n))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
