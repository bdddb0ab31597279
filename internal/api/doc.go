// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/products for registering a URL to watch.
//   - GET /v1/products/{product_id}/observations for price history.
//   - GET /v1/alerts for the alert log.
package api
