// Package debounce collapses bursts of location samples into one settled
// sample per quiet period.
package debounce

import (
	"sync"
	"time"

	"github.com/sweeney/venue-presence/internal/clock"
	"github.com/sweeney/venue-presence/internal/location"
)

// DefaultDelay is the quiet period a sample must survive to be settled.
const DefaultDelay = 1500 * time.Millisecond

// Debouncer forwards the latest sample once no newer one has arrived for
// the configured delay. At most one timer is outstanding.
type Debouncer struct {
	clk   clock.Clock
	delay time.Duration
	fire  func(location.Sample)

	mu      sync.Mutex
	timer   clock.Timer
	latest  location.Sample
	gen     uint64
	stopped bool
}

// New creates a Debouncer that calls fire with each settled sample.
// fire runs on the timer's goroutine.
func New(clk clock.Clock, delay time.Duration, fire func(location.Sample)) *Debouncer {
	return &Debouncer{clk: clk, delay: delay, fire: fire}
}

// Push records s as the latest sample and restarts the quiet period.
// Push after Stop is ignored.
func (d *Debouncer) Push(s location.Sample) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.latest = s
	d.gen++
	gen := d.gen
	d.timer = d.clk.AfterFunc(d.delay, func() { d.settle(gen) })
}

// settle forwards the latest sample if no Push or Stop superseded gen.
func (d *Debouncer) settle(gen uint64) {
	d.mu.Lock()
	if d.stopped || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	s := d.latest
	d.mu.Unlock()

	d.fire(s)
}

// Pending reports whether a sample is waiting to settle.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop cancels any pending timer. No sample is forwarded after Stop returns.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
