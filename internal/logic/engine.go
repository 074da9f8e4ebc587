package logic

import (
	"errors"
	"math"
	"time"

	"github.com/sweeney/venue-presence/internal/geo"
)

// Config holds the geofence hysteresis parameters.
type Config struct {
	EntryRadius float64
	ExitRadius  float64
	Cooldown    time.Duration
}

// DefaultConfig returns 45 m entry, 60 m exit and a 60 s cooldown.
func DefaultConfig() Config {
	return Config{
		EntryRadius: DefaultEntryRadius,
		ExitRadius:  DefaultExitRadius,
		Cooldown:    DefaultCooldown,
	}
}

// Validate checks that the radii form a hysteresis band.
func (c Config) Validate() error {
	if !(c.EntryRadius > 0) {
		return errors.New("entry radius must be positive")
	}
	if c.ExitRadius < c.EntryRadius {
		return errors.New("exit radius must not be smaller than entry radius")
	}
	if c.Cooldown < 0 {
		return errors.New("cooldown must not be negative")
	}
	return nil
}

// Engine evaluates settled samples against the venue list.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine with the given configuration.
func NewEngine(cfg Config) Engine {
	return Engine{cfg: cfg}
}

// Config returns the engine configuration.
func (e Engine) Config() Config {
	return e.cfg
}

// Evaluate applies one settled sample to m and returns the new membership
// with the decision taken. It never mutates m or venues.
//
// While inside a venue only the exit check runs; entry is evaluated only
// from OUTSIDE, so a device never holds two venues at once. An unusable
// sample or a venue list with no usable coordinates leaves m unchanged.
func (e Engine) Evaluate(m Membership, at geo.Coordinates, venues []Venue, now time.Time) (Membership, Decision) {
	if !at.Valid() || !anyResolvable(venues) {
		return m, Decision{Outcome: OutcomeNone, VenueID: m.VenueID, Distance: math.Inf(1), At: now}
	}
	cooled := e.cooledDown(m, now)

	if m.Inside() {
		dist := distanceTo(m.VenueID, at, venues)
		if !(dist <= e.cfg.ExitRadius) {
			d := Decision{VenueID: m.VenueID, Distance: dist, At: now}
			if !cooled {
				d.Outcome = OutcomeExitPending
				return m, d
			}
			d.Outcome = OutcomeExited
			return Membership{LastTransitionAt: now}, d
		}
		return m, Decision{Outcome: OutcomeNone, VenueID: m.VenueID, Distance: dist, At: now}
	}

	nearest, dist, ok := e.nearestCandidate(at, venues)
	if !ok {
		return m, Decision{Outcome: OutcomeNone, Distance: math.Inf(1), At: now}
	}
	d := Decision{VenueID: nearest.ID, Distance: dist, At: now}
	if !cooled {
		d.Outcome = OutcomeEntryPending
		return m, d
	}
	d.Outcome = OutcomeEntered
	return Membership{VenueID: nearest.ID, LastTransitionAt: now}, d
}

func (e Engine) cooledDown(m Membership, now time.Time) bool {
	if m.LastTransitionAt.IsZero() {
		return true
	}
	return now.Sub(m.LastTransitionAt) > e.cfg.Cooldown
}

// nearestCandidate returns the closest valid venue within the entry radius.
func (e Engine) nearestCandidate(at geo.Coordinates, venues []Venue) (Venue, float64, bool) {
	var best Venue
	bestDist := math.Inf(1)
	found := false
	for _, v := range venues {
		if ValidateVenue(v) != nil {
			continue
		}
		dist := geo.DistanceMeters(at, *v.Location)
		if dist <= e.cfg.EntryRadius && dist < bestDist {
			best, bestDist, found = v, dist, true
		}
	}
	return best, bestDist, found
}

func anyResolvable(venues []Venue) bool {
	for _, v := range venues {
		if ValidateVenue(v) == nil {
			return true
		}
	}
	return false
}

// distanceTo returns the distance to venue id, or +Inf if it is no longer
// in the list or has no usable coordinates.
func distanceTo(id string, at geo.Coordinates, venues []Venue) float64 {
	for _, v := range venues {
		if v.ID != id {
			continue
		}
		if ValidateVenue(v) != nil {
			return math.Inf(1)
		}
		return geo.DistanceMeters(at, *v.Location)
	}
	return math.Inf(1)
}
