// Package postgres provides the Postgres-backed flare store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/flare-crawler/internal/crawler"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of *pgxpool.Pool the store needs; pgxmock satisfies it.
type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// FlareStore persists locations, operators, and flares. Every write runs as
// its own statement, so it is durable and visible to the next read.
type FlareStore struct {
	pool pool
}

var _ crawler.Store = (*FlareStore)(nil)

// New connects a pgx pool using cfg.
func New(ctx context.Context, cfg Config) (*FlareStore, error) {
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &FlareStore{pool: p}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*FlareStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &FlareStore{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *FlareStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *FlareStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS locations (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	coordinates TEXT NOT NULL DEFAULT '0,0'
)`,
	`CREATE TABLE IF NOT EXISTS operators (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
)`,
	`CREATE TABLE IF NOT EXISTS flares (
	id BIGSERIAL PRIMARY KEY,
	exception_number TEXT,
	submittal_date DATE NOT NULL,
	filing_number TEXT,
	status TEXT,
	filing_type TEXT,
	operator_number TEXT,
	operator_name TEXT NOT NULL,
	property TEXT,
	effective_date DATE,
	expiration_date DATE,
	fv_district TEXT NOT NULL,
	location_id BIGINT NOT NULL REFERENCES locations (id),
	operator_id BIGINT NOT NULL REFERENCES operators (id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS flares_exception_number_idx ON flares (exception_number)`,
}

// EnsureSchema creates the tables if they do not exist.
func (s *FlareStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// FindLocationByName returns crawler.ErrNotFound when no location matches.
func (s *FlareStore) FindLocationByName(ctx context.Context, name string) (crawler.Location, error) {
	var loc crawler.Location
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, coordinates FROM locations WHERE name = $1`, name,
	).Scan(&loc.ID, &loc.Name, &loc.Coordinates)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.Location{}, crawler.ErrNotFound
		}
		return crawler.Location{}, fmt.Errorf("select location: %w", err)
	}
	return loc, nil
}

// InsertLocation creates a location and returns its id.
func (s *FlareStore) InsertLocation(ctx context.Context, loc crawler.Location) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO locations (name, coordinates) VALUES ($1, $2) RETURNING id`,
		loc.Name, loc.Coordinates,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert location: %w", err)
	}
	return id, nil
}

// FindOperatorByName returns crawler.ErrNotFound when no operator matches.
func (s *FlareStore) FindOperatorByName(ctx context.Context, name string) (crawler.Operator, error) {
	var op crawler.Operator
	err := s.pool.QueryRow(ctx,
		`SELECT id, name FROM operators WHERE name = $1`, name,
	).Scan(&op.ID, &op.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.Operator{}, crawler.ErrNotFound
		}
		return crawler.Operator{}, fmt.Errorf("select operator: %w", err)
	}
	return op, nil
}

// InsertOperator creates an operator and returns its id.
func (s *FlareStore) InsertOperator(ctx context.Context, op crawler.Operator) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO operators (name) VALUES ($1) RETURNING id`, op.Name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert operator: %w", err)
	}
	return id, nil
}

// InsertFlare appends one flare row and returns its id.
func (s *FlareStore) InsertFlare(ctx context.Context, f crawler.Flare) (int64, error) {
	query := `
INSERT INTO flares (
	exception_number,
	submittal_date,
	filing_number,
	status,
	filing_type,
	operator_number,
	operator_name,
	property,
	effective_date,
	expiration_date,
	fv_district,
	location_id,
	operator_id
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
) RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		f.ExceptionNumber,
		f.SubmittalDate,
		f.FilingNumber,
		f.Status,
		f.FilingType,
		f.OperatorNumber,
		f.OperatorName,
		f.Property,
		f.EffectiveDate,
		f.ExpirationDate,
		f.District,
		f.LocationID,
		f.OperatorID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert flare: %w", err)
	}
	return id, nil
}

// ListFlares returns flares newest first.
func (s *FlareStore) ListFlares(ctx context.Context, limit, offset int) ([]crawler.Flare, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, exception_number, submittal_date, filing_number, status, filing_type,
	operator_number, operator_name, property, effective_date, expiration_date,
	fv_district, location_id, operator_id
FROM flares
ORDER BY id DESC
LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list flares: %w", err)
	}
	defer rows.Close()

	var out []crawler.Flare
	for rows.Next() {
		var f crawler.Flare
		var exception, filing, status, filingType, opNumber, property *string
		if err := rows.Scan(
			&f.ID,
			&exception,
			&f.SubmittalDate,
			&filing,
			&status,
			&filingType,
			&opNumber,
			&f.OperatorName,
			&property,
			&f.EffectiveDate,
			&f.ExpirationDate,
			&f.District,
			&f.LocationID,
			&f.OperatorID,
		); err != nil {
			return nil, fmt.Errorf("scan flare row: %w", err)
		}
		f.ExceptionNumber = deref(exception)
		f.FilingNumber = deref(filing)
		f.Status = deref(status)
		f.FilingType = deref(filingType)
		f.OperatorNumber = deref(opNumber)
		f.Property = deref(property)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flares: %w", err)
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
