// Package occupancy periodically counts the devices whose most recent
// heartbeat puts them at each venue.
package occupancy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/sweeney/venue-presence/internal/clock"
	"github.com/sweeney/venue-presence/internal/presence"
)

// Default aggregation parameters.
const (
	DefaultInterval  = 60 * time.Second
	DefaultRetention = 5*time.Minute + 30*time.Second
	DefaultTimeout   = 10 * time.Second
)

// ErrStopped is returned by RunOnce when the aggregator was stopped while
// the scan was in flight. The result is discarded.
var ErrStopped = errors.New("occupancy aggregator stopped")

// Config controls the aggregation cadence.
type Config struct {
	// Interval between scans.
	Interval time.Duration
	// Retention is how long a heartbeat keeps a device counted.
	Retention time.Duration
	// Timeout bounds each scan.
	Timeout time.Duration
}

// DefaultConfig returns a 60 second interval with 5.5 minute retention.
func DefaultConfig() Config {
	return Config{Interval: DefaultInterval, Retention: DefaultRetention, Timeout: DefaultTimeout}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return errors.New("aggregation interval must be positive")
	}
	if c.Retention <= 0 {
		return errors.New("retention must be positive")
	}
	if c.Timeout <= 0 {
		return errors.New("scan timeout must be positive")
	}
	return nil
}

// ValidateAgainst also requires Retention to exceed the heartbeat
// interval, otherwise devices drop out between pings.
func (c Config) ValidateAgainst(heartbeat time.Duration) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Retention <= heartbeat {
		return fmt.Errorf("retention %v must exceed heartbeat interval %v", c.Retention, heartbeat)
	}
	return nil
}

// Hooks receive aggregator results. Both are called without any
// aggregator lock held and may be nil.
type Hooks struct {
	OnSnapshot func(*Snapshot)
	OnError    func(error)
}

// Aggregator scans the store on a fixed interval and publishes a fresh
// Snapshot each time. Readers get the latest snapshot with Snapshot().
type Aggregator struct {
	store    presence.Store
	clk      clock.Clock
	cfg      Config
	hooks    Hooks
	logEvery *rate.Sometimes

	snap atomic.Pointer[Snapshot]
	seq  atomic.Uint64

	mu      sync.Mutex
	timer   clock.Timer
	running bool
	gen     uint64 // bumped on Start and Stop; invalidates armed ticks
	epoch   uint64 // bumped on Stop; invalidates in-flight scans
}

// New creates an Aggregator. It does nothing until Start or RunOnce.
func New(store presence.Store, clk clock.Clock, cfg Config, hooks Hooks) *Aggregator {
	return &Aggregator{
		store:    store,
		clk:      clk,
		cfg:      cfg,
		hooks:    hooks,
		logEvery: &rate.Sometimes{First: 1, Interval: time.Minute},
	}
}

// Start arms the periodic scan. Start on a running aggregator is a no-op.
func (a *Aggregator) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return
	}
	a.running = true
	a.gen++
	a.armLocked(a.gen)
}

// Stop cancels the periodic scan. A scan still in flight finishes but its
// result is discarded. Stop is idempotent.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = false
	a.gen++
	a.epoch++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// Running reports whether the periodic scan is armed.
func (a *Aggregator) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Snapshot returns the latest published snapshot, or nil before the first
// successful scan.
func (a *Aggregator) Snapshot() *Snapshot {
	return a.snap.Load()
}

// RunOnce scans immediately. It returns the snapshot that is current after
// the scan, which may be a newer one if a later scan finished first.
func (a *Aggregator) RunOnce(ctx context.Context) (*Snapshot, error) {
	a.mu.Lock()
	epoch := a.epoch
	a.mu.Unlock()
	return a.scan(ctx, epoch)
}

func (a *Aggregator) armLocked(gen uint64) {
	a.timer = a.clk.AfterFunc(a.cfg.Interval, func() { a.tick(gen) })
}

// tick re-arms the next interval before scanning.
func (a *Aggregator) tick(gen uint64) {
	a.mu.Lock()
	if !a.running || gen != a.gen {
		a.mu.Unlock()
		return
	}
	a.armLocked(gen)
	epoch := a.epoch
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeout)
	defer cancel()
	a.scan(ctx, epoch)
}

func (a *Aggregator) scan(ctx context.Context, epoch uint64) (*Snapshot, error) {
	seq := a.seq.Add(1)
	now := a.clk.Now()

	entries, err := a.store.Scan(ctx, now.Add(-a.cfg.Retention))
	if err != nil {
		if !errors.Is(err, presence.ErrUnreachable) {
			err = fmt.Errorf("%w: %w", presence.ErrUnreachable, err)
		}
		a.logEvery.Do(func() {
			log.Printf("occupancy: scan failed, keeping previous snapshot: %v", err)
		})
		if a.hooks.OnError != nil {
			a.hooks.OnError(err)
		}
		return a.snap.Load(), err
	}

	next := &Snapshot{Counts: Compute(entries, now, a.cfg.Retention), At: now, Seq: seq}

	a.mu.Lock()
	if epoch != a.epoch {
		a.mu.Unlock()
		return nil, ErrStopped
	}
	published := a.publishLocked(next)
	a.mu.Unlock()

	if !published {
		return a.snap.Load(), nil
	}
	if a.hooks.OnSnapshot != nil {
		a.hooks.OnSnapshot(next)
	}
	return next, nil
}

// publishLocked replaces the current snapshot unless a newer one is
// already published. Caller holds mu.
func (a *Aggregator) publishLocked(next *Snapshot) bool {
	if cur := a.snap.Load(); cur != nil && cur.Seq > next.Seq {
		return false
	}
	a.snap.Store(next)
	return true
}
