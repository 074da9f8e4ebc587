package presence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Upsert is one recorded call to MemoryStore.Upsert.
type Upsert struct {
	DeviceID string
	Record   Record
}

// MemoryStore is an in-process Store. It doubles as the test store:
// failures can be injected and every upsert is logged.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	upserts []Upsert

	// FailUpserts, if set, is wrapped in ErrUnreachable and returned by Upsert.
	FailUpserts error
	// FailScans, if set, is wrapped in ErrUnreachable and returned by Scan.
	FailScans error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Upsert replaces the record for deviceID.
func (s *MemoryStore) Upsert(ctx context.Context, deviceID string, rec Record) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	if deviceID == "" {
		return errors.New("upsert: empty device id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpserts != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, s.FailUpserts)
	}
	s.records[deviceID] = rec
	s.upserts = append(s.upserts, Upsert{DeviceID: deviceID, Record: rec})
	return nil
}

// Scan returns records with LastSeen >= since, ordered by device id.
func (s *MemoryStore) Scan(ctx context.Context, since time.Time) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailScans != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, s.FailScans)
	}
	var out []Entry
	for id, rec := range s.records {
		if rec.LastSeen.Before(since) {
			continue
		}
		out = append(out, Entry{DeviceID: id, VenueID: rec.VenueID, LastSeen: rec.LastSeen})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

// Get returns the current record for deviceID.
func (s *MemoryStore) Get(deviceID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[deviceID]
	return rec, ok
}

// Upserts returns a copy of every successful upsert in call order.
func (s *MemoryStore) Upserts() []Upsert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Upsert(nil), s.upserts...)
}

// UpsertsFor returns the successful upserts for one device.
func (s *MemoryStore) UpsertsFor(deviceID string) []Upsert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Upsert
	for _, u := range s.upserts {
		if u.DeviceID == deviceID {
			out = append(out, u)
		}
	}
	return out
}

// SetFailUpserts injects (or clears, with nil) an upsert failure.
func (s *MemoryStore) SetFailUpserts(err error) {
	s.mu.Lock()
	s.FailUpserts = err
	s.mu.Unlock()
}

// SetFailScans injects (or clears, with nil) a scan failure.
func (s *MemoryStore) SetFailScans(err error) {
	s.mu.Lock()
	s.FailScans = err
	s.mu.Unlock()
}
