package occupancy

import (
	"time"

	"github.com/sweeney/venue-presence/internal/logic"
	"github.com/sweeney/venue-presence/internal/presence"
)

// Snapshot is one published occupancy count. It must not be modified
// after it has been published.
type Snapshot struct {
	Counts map[string]int
	At     time.Time
	Seq    uint64
}

// Count returns the live count for venueID. A nil snapshot counts zero.
func (s *Snapshot) Count(venueID string) int {
	if s == nil {
		return 0
	}
	return s.Counts[venueID]
}

// Total returns the sum over all venues.
func (s *Snapshot) Total() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, c := range s.Counts {
		n += c
	}
	return n
}

// Compute counts entries per venue whose LastSeen is within retention of
// now. The cutoff is inclusive. Entries with no venue are ignored.
func Compute(entries []presence.Entry, now time.Time, retention time.Duration) map[string]int {
	cutoff := now.Add(-retention)
	counts := make(map[string]int)
	for _, e := range entries {
		if e.VenueID == "" || e.LastSeen.Before(cutoff) {
			continue
		}
		counts[e.VenueID]++
	}
	return counts
}

// VenueLevel is one venue's count and crowd level.
type VenueLevel struct {
	Count int              `json:"count"`
	Level logic.CrowdLevel `json:"level"`
}

// Levels returns the count and crowd level of every venue in the
// directory, including venues nobody is at.
func Levels(s *Snapshot, venues []logic.Venue) map[string]VenueLevel {
	out := make(map[string]VenueLevel, len(venues))
	for _, v := range venues {
		if v.ID == "" {
			continue
		}
		n := s.Count(v.ID)
		out[v.ID] = VenueLevel{Count: n, Level: logic.Level(n, v.Thresholds)}
	}
	return out
}
