package web

import (
	"sort"
	"time"

	"github.com/sweeney/venue-presence/internal/geo"
	"github.com/sweeney/venue-presence/internal/logic"
	"github.com/sweeney/venue-presence/internal/occupancy"
)

// OccupancyJSON is the JSON envelope for /occupancy.json.
type OccupancyJSON struct {
	Occupancy OccupancyInner `json:"occupancy"`
}

// OccupancyInner contains per-venue counts. Timestamp is empty before the
// first scan has completed.
type OccupancyInner struct {
	Timestamp string      `json:"timestamp,omitempty"`
	Seq       uint64      `json:"seq"`
	Total     int         `json:"total"`
	Venues    []VenueJSON `json:"venues"`
}

// VenueEnvelope wraps a single venue for /venues/{id}.
type VenueEnvelope struct {
	Venue VenueJSON `json:"venue"`
}

// VenueJSON is one venue's live count and crowd level.
type VenueJSON struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Count    int              `json:"count"`
	Level    logic.CrowdLevel `json:"level"`
	Location *geo.Coordinates `json:"location,omitempty"`
}

// HeartbeatRequest is the body of POST /heartbeat.
type HeartbeatRequest struct {
	VenueID  string   `json:"venueId"`
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
	DeviceID string   `json:"deviceId"`
}

func (r HeartbeatRequest) validate() string {
	switch {
	case r.VenueID == "":
		return "missing venueId"
	case r.DeviceID == "":
		return "missing deviceId"
	case r.Lat == nil || r.Lng == nil:
		return "missing lat/lng"
	}
	if !(geo.Coordinates{Lat: *r.Lat, Lng: *r.Lng}).Valid() {
		return "lat/lng out of range"
	}
	return ""
}

// HeartbeatResponse acknowledges a recorded ping.
type HeartbeatResponse struct {
	OK       bool   `json:"ok"`
	LastSeen string `json:"last_seen"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

func formatVenue(v logic.Venue, s *occupancy.Snapshot) VenueJSON {
	n := s.Count(v.ID)
	return VenueJSON{
		ID:       v.ID,
		Name:     v.Name,
		Count:    n,
		Level:    logic.Level(n, v.Thresholds),
		Location: v.Location,
	}
}

// venueRows lists venues busiest first, then by id.
func venueRows(s *occupancy.Snapshot, list []logic.Venue) []VenueJSON {
	rows := make([]VenueJSON, 0, len(list))
	for _, v := range list {
		if v.ID == "" {
			continue
		}
		rows = append(rows, formatVenue(v, s))
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].ID < rows[j].ID
	})
	return rows
}

func formatOccupancy(s *occupancy.Snapshot, list []logic.Venue) OccupancyJSON {
	inner := OccupancyInner{Venues: venueRows(s, list)}
	for _, v := range inner.Venues {
		inner.Total += v.Count
	}
	if s != nil {
		inner.Timestamp = s.At.UTC().Format(time.RFC3339)
		inner.Seq = s.Seq
	}
	return OccupancyJSON{Occupancy: inner}
}
