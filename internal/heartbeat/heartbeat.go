// Package heartbeat sends presence pings for a device while it is inside
// a venue.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sweeney/venue-presence/internal/clock"
	"github.com/sweeney/venue-presence/internal/geo"
	"github.com/sweeney/venue-presence/internal/presence"
)

// Default heartbeat parameters.
const (
	DefaultInterval = 5 * time.Minute
	DefaultTimeout  = 5 * time.Second
)

// Config controls ping cadence.
type Config struct {
	// Interval between pings while inside a venue.
	Interval time.Duration
	// Timeout bounds each store upsert.
	Timeout time.Duration
}

// DefaultConfig returns a 5 minute interval with a 5 second upsert timeout.
func DefaultConfig() Config {
	return Config{Interval: DefaultInterval, Timeout: DefaultTimeout}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return errors.New("heartbeat interval must be positive")
	}
	if c.Timeout <= 0 {
		return errors.New("heartbeat timeout must be positive")
	}
	return nil
}

// Emitter pings the store for one device: once on entry and then every
// Interval until exit. No ping is sent on exit; absence ages out of the
// aggregator's retention window.
type Emitter struct {
	deviceID string
	store    presence.Store
	clk      clock.Clock
	cfg      Config
	report   func(error)
	logEvery *rate.Sometimes

	mu       sync.Mutex
	venueID  string
	location geo.Coordinates
	timer    clock.Timer
	ping     clock.Timer // latest queued ping
	gen      uint64
	stopped  bool
}

// New creates an Emitter. report, if non-nil, receives every failed ping;
// it is called without any Emitter lock held.
func New(deviceID string, store presence.Store, clk clock.Clock, cfg Config, report func(error)) *Emitter {
	return &Emitter{
		deviceID: deviceID,
		store:    store,
		clk:      clk,
		cfg:      cfg,
		report:   report,
		logEvery: &rate.Sometimes{First: 1, Interval: time.Minute},
	}
}

// Enter queues an immediate ping for venueID and arms the periodic timer.
// It never waits on the store.
func (e *Emitter) Enter(venueID string, at geo.Coordinates) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	e.cancelLocked()
	e.venueID = venueID
	e.location = at
	e.armLocked(e.gen)
	e.pingLocked()
}

// UpdateLocation sets the location used by later periodic pings.
func (e *Emitter) UpdateLocation(at geo.Coordinates) {
	e.mu.Lock()
	e.location = at
	e.mu.Unlock()
}

// Exit cancels the periodic timer without sending a check-out ping.
func (e *Emitter) Exit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelLocked()
	e.venueID = ""
}

// Stop cancels the periodic timer and any queued ping permanently. A ping
// already talking to the store is left to finish. Stop is idempotent.
func (e *Emitter) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	e.cancelLocked()
	if e.ping != nil {
		e.ping.Stop()
		e.ping = nil
	}
	e.venueID = ""
}

// Armed reports whether the periodic timer is running.
func (e *Emitter) Armed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timer != nil
}

// tick re-arms the next interval before queueing the ping, so a slow store
// never delays the cadence.
func (e *Emitter) tick(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped || gen != e.gen || e.venueID == "" {
		return
	}
	e.armLocked(gen)
	e.pingLocked()
}

// pingLocked snapshots the record and schedules the upsert on the clock,
// off the caller's goroutine. Exit does not cancel a queued ping; Stop does.
func (e *Emitter) pingLocked() {
	rec := e.recordLocked()
	var t clock.Timer
	t = e.clk.AfterFunc(0, func() {
		e.mu.Lock()
		if e.ping == t {
			e.ping = nil
		}
		stopped := e.stopped
		e.mu.Unlock()
		if !stopped {
			e.send(rec)
		}
	})
	e.ping = t
}

func (e *Emitter) armLocked(gen uint64) {
	e.timer = e.clk.AfterFunc(e.cfg.Interval, func() { e.tick(gen) })
}

func (e *Emitter) cancelLocked() {
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (e *Emitter) recordLocked() presence.Record {
	return presence.Record{
		VenueID:  e.venueID,
		Location: e.location,
		LastSeen: e.clk.Now(),
	}
}

func (e *Emitter) send(rec presence.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Timeout)
	defer cancel()

	err := e.store.Upsert(ctx, e.deviceID, rec)
	if err == nil {
		return
	}
	if !errors.Is(err, presence.ErrUnreachable) {
		err = fmt.Errorf("%w: %w", presence.ErrUnreachable, err)
	}
	e.logEvery.Do(func() {
		log.Printf("heartbeat: ping for venue %s failed, retrying next interval: %v", rec.VenueID, err)
	})
	if e.report != nil {
		e.report(err)
	}
}
