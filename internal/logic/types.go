// Package logic contains the pure geofence state machine for venue presence.
// This package has NO external dependencies (no timers, MQTT, storage or OS).
// Time is always injectable via time.Time parameters.
package logic

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/venue-presence/internal/geo"
)

// Default geofence parameters.
const (
	DefaultEntryRadius = 45.0 // meters
	DefaultExitRadius  = 60.0 // meters, must be >= entry radius
	DefaultCooldown    = 60 * time.Second
)

// ErrInvalidVenueData marks a venue that cannot take part in distance checks.
var ErrInvalidVenueData = errors.New("invalid venue data")

// CapacityThresholds are the crowd level boundaries for a venue.
type CapacityThresholds struct {
	Low      int `json:"low" yaml:"low"`
	Moderate int `json:"moderate" yaml:"moderate"`
	Packed   int `json:"packed" yaml:"packed"`
}

// Venue is a read-only venue record from the directory.
type Venue struct {
	ID         string
	Name       string
	Location   *geo.Coordinates // nil when the venue has no known position
	Thresholds CapacityThresholds
}

// ValidateVenue reports why v cannot be used for geofencing, if at all.
func ValidateVenue(v Venue) error {
	if v.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidVenueData)
	}
	if v.Location == nil {
		return fmt.Errorf("%w: venue %s has no coordinates", ErrInvalidVenueData, v.ID)
	}
	if !v.Location.Valid() {
		return fmt.Errorf("%w: venue %s has coordinates out of range (%v, %v)",
			ErrInvalidVenueData, v.ID, v.Location.Lat, v.Location.Lng)
	}
	return nil
}

// Membership is the per-device geofence state. An empty VenueID means the
// device is OUTSIDE every venue.
type Membership struct {
	VenueID          string
	LastTransitionAt time.Time
}

// Inside reports whether the device is currently inside a venue.
func (m Membership) Inside() bool {
	return m.VenueID != ""
}

// Outcome is the result of evaluating one settled sample.
type Outcome string

const (
	OutcomeNone         Outcome = "NONE"
	OutcomeEntered      Outcome = "ENTERED"
	OutcomeExited       Outcome = "EXITED"
	OutcomeExitPending  Outcome = "EXIT_PENDING"
	OutcomeEntryPending Outcome = "ENTRY_PENDING"
)

// Decision describes what a sample evaluation did.
type Decision struct {
	Outcome Outcome
	// VenueID is the venue entered, exited, or pending.
	VenueID string
	// Distance from the sample to VenueID in meters.
	Distance float64
	At       time.Time
}

// Transition reports whether the decision changed membership.
func (d Decision) Transition() bool {
	return d.Outcome == OutcomeEntered || d.Outcome == OutcomeExited
}

// TransitionCounts tracks membership changes since startup.
type TransitionCounts struct {
	Entries      int
	Exits        int
	ExitPending  int
	EntryPending int
}

// Add counts d.
func (c *TransitionCounts) Add(d Decision) {
	switch d.Outcome {
	case OutcomeEntered:
		c.Entries++
	case OutcomeExited:
		c.Exits++
	case OutcomeExitPending:
		c.ExitPending++
	case OutcomeEntryPending:
		c.EntryPending++
	}
}
