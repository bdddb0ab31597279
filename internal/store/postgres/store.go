// Package postgres provides the Postgres-backed persistence layer.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pricewatch/pricewatch/internal/monitor"
)

const uniqueViolation = "23505"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store implements monitor.Store on a pgx connection pool.
type Store struct {
	pool querier
}

// New connects to Postgres and ensures the schema exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for
// testing). The schema is assumed to exist.
func NewWithPool(pool querier) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Ping checks database connectivity, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS products (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	url TEXT NOT NULL UNIQUE,
	domain TEXT NOT NULL,
	target_price DOUBLE PRECISION,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS observations (
	id TEXT PRIMARY KEY,
	product_id TEXT NOT NULL REFERENCES products(id),
	price DOUBLE PRECISION,
	availability TEXT NOT NULL,
	title TEXT,
	image_url TEXT,
	scraped_at TIMESTAMPTZ NOT NULL,
	success BOOLEAN NOT NULL,
	error_kind TEXT
)`,
	`CREATE INDEX IF NOT EXISTS idx_observations_product_time
	ON observations (product_id, scraped_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_observations_time
	ON observations (scraped_at)`,
	`CREATE TABLE IF NOT EXISTS alerts (
	id TEXT PRIMARY KEY,
	product_id TEXT NOT NULL REFERENCES products(id),
	alert_type TEXT NOT NULL,
	message TEXT NOT NULL,
	price DOUBLE PRECISION NOT NULL,
	triggered_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_time ON alerts (triggered_at)`,
}

func (s *Store) ensureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// CreateProduct inserts a product row. A URL already being watched maps the
// unique violation to monitor.ErrDuplicateURL.
func (s *Store) CreateProduct(ctx context.Context, p monitor.Product) (monitor.Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.Active = true
	_, err := s.pool.Exec(ctx, `
INSERT INTO products (id, name, url, domain, target_price, active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Name, p.URL, p.Domain, p.TargetPrice, p.Active, p.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return monitor.Product{}, monitor.ErrDuplicateURL
		}
		return monitor.Product{}, fmt.Errorf("insert product: %w", err)
	}
	return p, nil
}

// GetProduct returns the product or monitor.ErrNotFound.
func (s *Store) GetProduct(ctx context.Context, id string) (monitor.Product, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, name, url, domain, target_price, active, created_at
FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return monitor.Product{}, monitor.ErrNotFound
	}
	if err != nil {
		return monitor.Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// ListProducts returns products sorted by creation time, oldest first.
func (s *Store) ListProducts(ctx context.Context, activeOnly bool) ([]monitor.Product, error) {
	query := `
SELECT id, name, url, domain, target_price, active, created_at
FROM products ORDER BY created_at, id`
	if activeOnly {
		query = `
SELECT id, name, url, domain, target_price, active, created_at
FROM products WHERE active ORDER BY created_at, id`
	}
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []monitor.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return out, nil
}

// DeactivateProduct flips active to false, keeping all history.
func (s *Store) DeactivateProduct(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE products SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return monitor.ErrNotFound
	}
	return nil
}

// RecordObservation appends one observation row.
func (s *Store) RecordObservation(ctx context.Context, o monitor.Observation) (monitor.Observation, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.ScrapedAt.IsZero() {
		o.ScrapedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO observations (id, product_id, price, availability, title, image_url, scraped_at, success, error_kind)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.ID, o.ProductID, o.Price, o.Availability, o.Title, o.ImageURL,
		o.ScrapedAt, o.Success, o.ErrorKind,
	)
	if err != nil {
		return monitor.Observation{}, fmt.Errorf("insert observation: %w", err)
	}
	return o, nil
}

// RecentObservations returns observations for a product, newest first. A zero
// since means no lower bound; a non-positive limit falls back to 100 rows.
func (s *Store) RecentObservations(
	ctx context.Context,
	productID string,
	limit int,
	since time.Time,
) ([]monitor.Observation, error) {
	if limit <= 0 {
		limit = 100
	}
	if since.IsZero() {
		since = time.Unix(0, 0).UTC()
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, product_id, price, availability, title, image_url, scraped_at, success, error_kind
FROM observations
WHERE product_id = $1 AND scraped_at >= $2
ORDER BY scraped_at DESC
LIMIT $3`, productID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("recent observations: %w", err)
	}
	defer rows.Close()

	var out []monitor.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent observations: %w", err)
	}
	return out, nil
}

// LatestPricedObservation returns the newest successful observation that
// carries a price, or monitor.ErrNotFound.
func (s *Store) LatestPricedObservation(ctx context.Context, productID string) (monitor.Observation, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, product_id, price, availability, title, image_url, scraped_at, success, error_kind
FROM observations
WHERE product_id = $1 AND success AND price IS NOT NULL
ORDER BY scraped_at DESC
LIMIT 1`, productID)
	o, err := scanObservation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return monitor.Observation{}, monitor.ErrNotFound
	}
	if err != nil {
		return monitor.Observation{}, fmt.Errorf("latest priced observation: %w", err)
	}
	return o, nil
}

// FailingProducts returns products whose failed-observation count since the
// cutoff exceeds the threshold.
func (s *Store) FailingProducts(
	ctx context.Context,
	since time.Time,
	threshold int,
) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
SELECT product_id, COUNT(*) AS failures
FROM observations
WHERE NOT success AND scraped_at >= $1
GROUP BY product_id
HAVING COUNT(*) > $2`, since, threshold)
	if err != nil {
		return nil, fmt.Errorf("failing products: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan failing product: %w", err)
		}
		out[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failing products: %w", err)
	}
	return out, nil
}

// RecordAlert appends one alert row.
func (s *Store) RecordAlert(ctx context.Context, a monitor.Alert) (monitor.Alert, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.TriggeredAt.IsZero() {
		a.TriggeredAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO alerts (id, product_id, alert_type, message, price, triggered_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.ProductID, a.AlertType, a.Message, a.Price, a.TriggeredAt,
	)
	if err != nil {
		return monitor.Alert{}, fmt.Errorf("insert alert: %w", err)
	}
	return a, nil
}

// AlertsSince returns alerts triggered at or after the cutoff, newest first.
func (s *Store) AlertsSince(ctx context.Context, since time.Time) ([]monitor.Alert, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, product_id, alert_type, message, price, triggered_at
FROM alerts
WHERE triggered_at >= $1
ORDER BY triggered_at DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("alerts since: %w", err)
	}
	defer rows.Close()

	var out []monitor.Alert
	for rows.Next() {
		var a monitor.Alert
		if err := rows.Scan(&a.ID, &a.ProductID, &a.AlertType, &a.Message, &a.Price, &a.TriggeredAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("alerts since: %w", err)
	}
	return out, nil
}

// PruneObservations deletes observations older than the cutoff and reports
// how many rows were removed.
func (s *Store) PruneObservations(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM observations WHERE scraped_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune observations: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanProduct(row pgx.Row) (monitor.Product, error) {
	var p monitor.Product
	err := row.Scan(&p.ID, &p.Name, &p.URL, &p.Domain, &p.TargetPrice, &p.Active, &p.CreatedAt)
	return p, err
}

func scanObservation(row pgx.Row) (monitor.Observation, error) {
	var o monitor.Observation
	err := row.Scan(&o.ID, &o.ProductID, &o.Price, &o.Availability, &o.Title,
		&o.ImageURL, &o.ScrapedAt, &o.Success, &o.ErrorKind)
	return o, err
}
