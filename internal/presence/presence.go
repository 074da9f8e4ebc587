// Package presence defines the presence record store that heartbeats are
// written to and occupancy is computed from.
package presence

import (
	"context"
	"errors"
	"time"

	"github.com/sweeney/venue-presence/internal/geo"
)

// ErrUnreachable marks a store operation that failed on I/O. Callers
// retry on their next natural tick, never eagerly.
var ErrUnreachable = errors.New("presence store unreachable")

// Record is the latest ping for one device. Each upsert replaces the
// previous record for that device.
type Record struct {
	VenueID  string
	Location geo.Coordinates
	LastSeen time.Time
}

// Entry is one device's presence as returned by Scan.
type Entry struct {
	DeviceID string
	VenueID  string
	LastSeen time.Time
}

// Store is an upsert-by-device store of presence pings. Implementations
// must be safe for concurrent use.
type Store interface {
	// Upsert writes rec as the only record for deviceID.
	Upsert(ctx context.Context, deviceID string, rec Record) error

	// Scan returns every record with LastSeen >= since.
	Scan(ctx context.Context, since time.Time) ([]Entry, error)
}
