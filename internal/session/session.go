// Package session ties the presence pipeline together for each device:
// samples are debounced, evaluated by the geofence engine, and drive the
// heartbeat emitter.
package session

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sweeney/venue-presence/internal/clock"
	"github.com/sweeney/venue-presence/internal/debounce"
	"github.com/sweeney/venue-presence/internal/heartbeat"
	"github.com/sweeney/venue-presence/internal/location"
	"github.com/sweeney/venue-presence/internal/logic"
	"github.com/sweeney/venue-presence/internal/presence"
	"github.com/sweeney/venue-presence/internal/venues"
)

// Kind identifies a Notice.
type Kind string

const (
	KindEntered             Kind = "entered"
	KindExited              Kind = "exited"
	KindExitPending         Kind = "exit-pending"
	KindEntryPending        Kind = "entry-pending"
	KindLocationUnavailable Kind = "location-unavailable"
	KindStoreUnreachable    Kind = "store-unreachable"
)

// Notice is a user-facing pipeline event for one device.
type Notice struct {
	DeviceID string
	Kind     Kind
	VenueID  string
	// Distance in meters from the settled sample to VenueID, if any.
	Distance float64
	Err      error
	Time     time.Time
}

// Notifier receives notices. Notices for one device arrive in order. A
// Notifier must not call back into the session that produced the notice.
type Notifier func(Notice)

// Config holds the tunables of every pipeline stage.
type Config struct {
	Debounce  time.Duration
	Engine    logic.Config
	Heartbeat heartbeat.Config
}

// DefaultConfig returns the default parameters of every stage.
func DefaultConfig() Config {
	return Config{
		Debounce:  debounce.DefaultDelay,
		Engine:    logic.DefaultConfig(),
		Heartbeat: heartbeat.DefaultConfig(),
	}
}

// Validate checks every stage.
func (c Config) Validate() error {
	if c.Debounce < 0 {
		return errors.New("debounce delay must not be negative")
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("geofence: %w", err)
	}
	if err := c.Heartbeat.Validate(); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

func noticeKind(o logic.Outcome) (Kind, bool) {
	switch o {
	case logic.OutcomeEntered:
		return KindEntered, true
	case logic.OutcomeExited:
		return KindExited, true
	case logic.OutcomeExitPending:
		return KindExitPending, true
	case logic.OutcomeEntryPending:
		return KindEntryPending, true
	}
	return "", false
}

// Session is the pipeline for one device. Settled samples for the device
// are evaluated one at a time.
type Session struct {
	deviceID string
	engine   logic.Engine
	dir      venues.Directory
	clk      clock.Clock
	notify   Notifier

	deb *debounce.Debouncer
	hb  *heartbeat.Emitter

	// evalMu orders evaluations and their notices. Stop never takes it.
	evalMu sync.Mutex

	logEvery *rate.Sometimes

	mu         sync.Mutex
	membership logic.Membership
	lastFix    time.Time
	stopped    bool
}

// New creates a session for deviceID. notify may be nil.
func New(deviceID string, cfg Config, dir venues.Directory, store presence.Store, clk clock.Clock, notify Notifier) *Session {
	if notify == nil {
		notify = func(Notice) {}
	}
	s := &Session{
		deviceID: deviceID,
		engine:   logic.NewEngine(cfg.Engine),
		dir:      dir,
		clk:      clk,
		notify:   notify,
		logEvery: &rate.Sometimes{First: 1, Interval: time.Minute},
	}
	s.deb = debounce.New(clk, cfg.Debounce, s.evaluate)
	s.hb = heartbeat.New(deviceID, store, clk, cfg.Heartbeat, s.storeFailed)
	return s
}

// DeviceID returns the device the session tracks.
func (s *Session) DeviceID() string {
	return s.deviceID
}

// Push feeds a raw sample into the debouncer. Fixes whose accuracy is
// coarser than the exit radius are dropped, as are timestamped fixes older
// than the last one accepted.
func (s *Session) Push(sample location.Sample) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if sample.Accuracy > s.engine.Config().ExitRadius {
		s.mu.Unlock()
		s.logEvery.Do(func() {
			log.Printf("session: %s: dropping fix with %.0fm accuracy", s.deviceID, sample.Accuracy)
		})
		return
	}
	if !sample.Time.IsZero() {
		if sample.Time.Before(s.lastFix) {
			s.mu.Unlock()
			return
		}
		s.lastFix = sample.Time
	}
	s.mu.Unlock()

	s.deb.Push(sample)
}

// Fail reports a location failure for the device.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return
	}
	s.notify(Notice{DeviceID: s.deviceID, Kind: KindLocationUnavailable, Err: err, Time: s.clk.Now()})
}

// Membership returns the device's current geofence state.
func (s *Session) Membership() logic.Membership {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.membership
}

// Stop cancels the pending debounce and heartbeat timers and forgets the
// membership. No exit ping is sent; the device ages out of occupancy.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.deb.Stop()
	s.hb.Stop()
	s.membership = logic.Membership{}
}

// evaluate runs one settled sample through the engine. Notices and
// emitter calls are made after the state lock is released; once Stop has
// run the emitter ignores them.
func (s *Session) evaluate(sample location.Sample) {
	s.evalMu.Lock()
	defer s.evalMu.Unlock()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	next, d := s.engine.Evaluate(s.membership, sample.At, s.dir.Venues(), s.clk.Now())
	s.membership = next
	s.mu.Unlock()

	if kind, ok := noticeKind(d.Outcome); ok {
		s.notify(Notice{DeviceID: s.deviceID, Kind: kind, VenueID: d.VenueID, Distance: d.Distance, Time: d.At})
	}

	switch d.Outcome {
	case logic.OutcomeEntered:
		s.hb.Enter(d.VenueID, sample.At)
	case logic.OutcomeExited:
		s.hb.Exit()
	default:
		if next.Inside() && sample.At.Valid() {
			s.hb.UpdateLocation(sample.At)
		}
	}
}

// storeFailed runs on the goroutine that sent the ping.
func (s *Session) storeFailed(err error) {
	s.notify(Notice{DeviceID: s.deviceID, Kind: KindStoreUnreachable, Err: err, Time: s.clk.Now()})
}
