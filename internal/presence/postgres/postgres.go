// Package postgres stores presence records in PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sweeney/venue-presence/internal/presence"
)

const schema = `
CREATE TABLE IF NOT EXISTS presence (
	device_id TEXT PRIMARY KEY,
	venue_id  TEXT NOT NULL,
	lat       DOUBLE PRECISION NOT NULL,
	lng       DOUBLE PRECISION NOT NULL,
	last_seen TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS presence_last_seen ON presence (last_seen);
`

// Store is a presence.Store backed by a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ presence.Store = (*Store)(nil)

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %w", presence.ErrUnreachable, err)
	}
	return New(pool), nil
}

// Migrate creates the presence table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate presence: %w", err)
	}
	return nil
}

// Upsert replaces the row for deviceID.
func (s *Store) Upsert(ctx context.Context, deviceID string, rec presence.Record) error {
	const query = `
INSERT INTO presence (device_id, venue_id, lat, lng, last_seen)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (device_id) DO UPDATE SET
	venue_id = EXCLUDED.venue_id,
	lat = EXCLUDED.lat,
	lng = EXCLUDED.lng,
	last_seen = EXCLUDED.last_seen`

	if _, err := s.pool.Exec(ctx, query, deviceID, rec.VenueID, rec.Location.Lat, rec.Location.Lng, rec.LastSeen); err != nil {
		return fmt.Errorf("%w: upsert %s: %w", presence.ErrUnreachable, deviceID, err)
	}
	return nil
}

// Scan returns rows with last_seen >= since.
func (s *Store) Scan(ctx context.Context, since time.Time) ([]presence.Entry, error) {
	const query = `
SELECT device_id, venue_id, last_seen
FROM presence
WHERE last_seen >= $1
ORDER BY device_id`

	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("%w: scan: %w", presence.ErrUnreachable, err)
	}
	defer rows.Close()

	var out []presence.Entry
	for rows.Next() {
		var e presence.Entry
		if err := rows.Scan(&e.DeviceID, &e.VenueID, &e.LastSeen); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		e.LastSeen = e.LastSeen.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan rows: %w", presence.ErrUnreachable, err)
	}
	return out, nil
}

// Close closes the pool.
func (s *Store) Close() {
	s.pool.Close()
}
