package session

import (
	"errors"
	"log"
	"sort"
	"sync"

	"github.com/sweeney/venue-presence/internal/clock"
	"github.com/sweeney/venue-presence/internal/location"
	"github.com/sweeney/venue-presence/internal/logic"
	"github.com/sweeney/venue-presence/internal/presence"
	"github.com/sweeney/venue-presence/internal/venues"
)

// Manager owns one Session per device, created on the device's first
// sample.
type Manager struct {
	cfg    Config
	dir    venues.Directory
	store  presence.Store
	clk    clock.Clock
	notify Notifier

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a Manager. notify may be nil.
func NewManager(cfg Config, dir venues.Directory, store presence.Store, clk clock.Clock, notify Notifier) *Manager {
	return &Manager{
		cfg:      cfg,
		dir:      dir,
		store:    store,
		clk:      clk,
		notify:   notify,
		sessions: make(map[string]*Session),
	}
}

// Handle routes one reading. A terminal location failure disables the
// device; a later sample from it starts a fresh session.
func (m *Manager) Handle(r location.Reading) {
	if r.DeviceID == "" {
		log.Printf("session: dropping reading without device id")
		return
	}
	if r.Err != nil {
		m.fail(r.DeviceID, r.Err)
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	s, ok := m.sessions[r.DeviceID]
	if !ok {
		s = New(r.DeviceID, m.cfg, m.dir, m.store, m.clk, m.notify)
		m.sessions[r.DeviceID] = s
	}
	m.mu.Unlock()

	s.Push(r.Sample)
}

func (m *Manager) fail(deviceID string, err error) {
	if !errors.Is(err, location.ErrUnavailable) {
		err = &location.UnavailableError{Reason: location.ReasonPositionUnavailable, Message: err.Error()}
	}

	m.mu.Lock()
	s := m.sessions[deviceID]
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return
	}

	if s != nil {
		s.Fail(err)
	} else if m.notify != nil {
		m.notify(Notice{DeviceID: deviceID, Kind: KindLocationUnavailable, Err: err, Time: m.clk.Now()})
	}

	if location.IsTerminal(err) {
		log.Printf("session: disabling tracking for %s: %v", deviceID, err)
		m.Disable(deviceID)
	}
}

// Disable stops and forgets the session for deviceID.
func (m *Manager) Disable(deviceID string) {
	m.mu.Lock()
	s := m.sessions[deviceID]
	delete(m.sessions, deviceID)
	m.mu.Unlock()

	if s != nil {
		s.Stop()
	}
}

// Close stops every session. Readings after Close are ignored.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		s.Stop()
	}
}

// Active returns the number of tracked devices.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Devices returns the tracked device ids in order.
func (m *Manager) Devices() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Membership returns the membership of a tracked device.
func (m *Manager) Membership(deviceID string) (logic.Membership, bool) {
	m.mu.Lock()
	s, ok := m.sessions[deviceID]
	m.mu.Unlock()
	if !ok {
		return logic.Membership{}, false
	}
	return s.Membership(), true
}
