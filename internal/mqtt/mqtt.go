// Package mqtt provides MQTT transport for the presence daemon: venue
// occupancy, anonymous transition events and lifecycle events out, device
// locations in. Publishing is behind an interface for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/venue-presence/internal/logic"
	"github.com/sweeney/venue-presence/internal/occupancy"
)

// TopicOccupancy carries the latest occupancy snapshot, retained.
const TopicOccupancy = "presence/venues/occupancy"

// TopicEvents carries venue entry and exit events without device identity.
const TopicEvents = "presence/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "presence/system"

// DefaultLocationTopic matches OwnTracks location reports (owntracks/user/device).
const DefaultLocationTopic = "owntracks/+/+"

// Publisher publishes presence output to MQTT.
type Publisher interface {
	// PublishTransition sends an anonymous entry or exit event.
	// Returns error if publishing fails (should not crash the process).
	PublishTransition(event TransitionEvent) error

	// PublishOccupancy sends an occupancy snapshot as a retained message.
	PublishOccupancy(update OccupancyUpdate) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// TransitionEvent is a venue membership change with the device removed.
type TransitionEvent struct {
	Timestamp time.Time
	Event     string // "ENTERED" or "EXITED"
	VenueID   string
}

// TransitionFromDecision converts an engine decision into an event. It
// returns false for decisions that did not change membership.
func TransitionFromDecision(d logic.Decision) (TransitionEvent, bool) {
	if !d.Transition() {
		return TransitionEvent{}, false
	}
	return TransitionEvent{Timestamp: d.At, Event: string(d.Outcome), VenueID: d.VenueID}, true
}

// OccupancyUpdate is one published snapshot with crowd levels.
type OccupancyUpdate struct {
	Timestamp time.Time
	Seq       uint64
	Venues    map[string]occupancy.VenueLevel
}

// NewOccupancyUpdate builds an update for every venue in the directory.
func NewOccupancyUpdate(s *occupancy.Snapshot, venues []logic.Venue) OccupancyUpdate {
	u := OccupancyUpdate{Venues: occupancy.Levels(s, venues)}
	if s != nil {
		u.Timestamp = s.At
		u.Seq = s.Seq
	}
	return u
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, status).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "STATUS"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// TransitionPayload is the MQTT payload for a transition event.
type TransitionPayload struct {
	Presence TransitionPayloadInner `json:"presence"`
}

// TransitionPayloadInner contains the transition details.
type TransitionPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Venue     string `json:"venue"`
}

// FormatTransitionPayload creates the JSON payload for a transition event.
func FormatTransitionPayload(event TransitionEvent) ([]byte, error) {
	return json.Marshal(TransitionPayload{
		Presence: TransitionPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Venue:     event.VenueID,
		},
	})
}

// OccupancyPayload is the MQTT payload for an occupancy snapshot.
type OccupancyPayload struct {
	Occupancy OccupancyPayloadInner `json:"occupancy"`
}

// OccupancyPayloadInner contains per-venue counts.
type OccupancyPayloadInner struct {
	Timestamp string                          `json:"timestamp"`
	Seq       uint64                          `json:"seq"`
	Total     int                             `json:"total"`
	Venues    map[string]occupancy.VenueLevel `json:"venues"`
}

// FormatOccupancyPayload creates the JSON payload for an occupancy update.
func FormatOccupancyPayload(update OccupancyUpdate) ([]byte, error) {
	total := 0
	for _, v := range update.Venues {
		total += v.Count
	}
	venues := update.Venues
	if venues == nil {
		venues = map[string]occupancy.VenueLevel{}
	}
	return json.Marshal(OccupancyPayload{
		Occupancy: OccupancyPayloadInner{
			Timestamp: update.Timestamp.UTC().Format(time.RFC3339),
			Seq:       update.Seq,
			Total:     total,
			Venues:    venues,
		},
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
