// Package status provides a thread-safe status tracker for the presence daemon.
// It is read by HTTP handlers and the periodic STATUS system event.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/venue-presence/internal/logic"
	"github.com/sweeney/venue-presence/internal/occupancy"
	"github.com/sweeney/venue-presence/internal/session"
)

// Config contains daemon configuration for display.
type Config struct {
	Broker        string
	LocationTopic string
	Store         string // store kind: memory, sqlite or postgres
	VenuesFile    string
	DebounceMs    int64
	CooldownMs    int64
	HeartbeatMs   int64
	AggregateMs   int64
	RetentionMs   int64
	EntryRadius   float64
	ExitRadius    float64
	HTTPAddr      string
	WSBroker      string // Websocket broker URL for browser MQTT (empty = disabled)
}

// FailureCounts tracks reported pipeline failures since startup.
type FailureCounts struct {
	LocationUnavailable int
	StoreUnreachable    int
	PublishFailed       int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Transitions    logic.TransitionCounts
	Failures       FailureCounts
	ActiveSessions int
	VenueCount     int
	Occupancy      *occupancy.Snapshot
	StartTime      time.Time
	Now            time.Time
	MQTTConnected  bool
	Config         Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// RecordNotice counts a session notice.
func (t *Tracker) RecordNotice(n session.Notice) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch n.Kind {
	case session.KindEntered:
		t.snap.Transitions.Entries++
	case session.KindExited:
		t.snap.Transitions.Exits++
	case session.KindExitPending:
		t.snap.Transitions.ExitPending++
	case session.KindEntryPending:
		t.snap.Transitions.EntryPending++
	case session.KindLocationUnavailable:
		t.snap.Failures.LocationUnavailable++
	case session.KindStoreUnreachable:
		t.snap.Failures.StoreUnreachable++
	}
}

// RecordStoreFailure counts a failure outside a session, such as a scan.
func (t *Tracker) RecordStoreFailure() {
	t.mu.Lock()
	t.snap.Failures.StoreUnreachable++
	t.mu.Unlock()
}

// RecordPublishFailure counts a failed MQTT publish.
func (t *Tracker) RecordPublishFailure() {
	t.mu.Lock()
	t.snap.Failures.PublishFailed++
	t.mu.Unlock()
}

// SetOccupancy stores the latest occupancy snapshot.
func (t *Tracker) SetOccupancy(s *occupancy.Snapshot) {
	t.mu.Lock()
	t.snap.Occupancy = s
	t.mu.Unlock()
}

// SetActiveSessions sets the number of tracked devices.
func (t *Tracker) SetActiveSessions(n int) {
	t.mu.Lock()
	t.snap.ActiveSessions = n
	t.mu.Unlock()
}

// SetVenueCount sets the number of venues in the directory.
func (t *Tracker) SetVenueCount(n int) {
	t.mu.Lock()
	t.snap.VenueCount = n
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
