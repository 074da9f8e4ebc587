// Package sqlite stores presence records in a SQLite database using the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/venue-presence/internal/presence"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS presence (
	device_id TEXT PRIMARY KEY,
	venue_id  TEXT NOT NULL,
	lat       REAL NOT NULL,
	lng       REAL NOT NULL,
	last_seen INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS presence_last_seen ON presence (last_seen);
`

// Store is a presence.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

var _ presence.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path. ":memory:" gives
// a private in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable wal: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	log.Printf("sqlite: presence store ready at %s", path)
	return &Store{db: db}, nil
}

// Upsert replaces the row for deviceID.
func (s *Store) Upsert(ctx context.Context, deviceID string, rec presence.Record) error {
	const query = `
INSERT INTO presence (device_id, venue_id, lat, lng, last_seen)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (device_id) DO UPDATE SET
	venue_id = excluded.venue_id,
	lat = excluded.lat,
	lng = excluded.lng,
	last_seen = excluded.last_seen`

	_, err := s.db.ExecContext(ctx, query,
		deviceID, rec.VenueID, rec.Location.Lat, rec.Location.Lng, rec.LastSeen.UnixNano())
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %w", presence.ErrUnreachable, deviceID, err)
	}
	return nil
}

// Scan returns rows with last_seen >= since.
func (s *Store) Scan(ctx context.Context, since time.Time) ([]presence.Entry, error) {
	const query = `
SELECT device_id, venue_id, last_seen
FROM presence
WHERE last_seen >= ?
ORDER BY device_id`

	rows, err := s.db.QueryContext(ctx, query, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("%w: scan: %w", presence.ErrUnreachable, err)
	}
	defer rows.Close()

	var out []presence.Entry
	for rows.Next() {
		var e presence.Entry
		var lastSeen int64
		if err := rows.Scan(&e.DeviceID, &e.VenueID, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		e.LastSeen = time.Unix(0, lastSeen).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan rows: %w", presence.ErrUnreachable, err)
	}
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
