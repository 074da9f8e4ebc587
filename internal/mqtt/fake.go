package mqtt

import "sync"

// FakePublisher records published messages for test assertions.
// It is safe for concurrent use.
type FakePublisher struct {
	mu sync.Mutex

	// Transitions contains all transition events that were published.
	Transitions []TransitionEvent

	// Occupancy contains all occupancy updates that were published.
	Occupancy []OccupancyUpdate

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// Payloads contains every JSON payload, keyed by topic.
	Payloads map[string][][]byte

	// PublishError, if set, will be returned by PublishTransition and PublishOccupancy.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Payloads: make(map[string][][]byte)}
}

// PublishTransition records the transition event.
func (f *FakePublisher) PublishTransition(event TransitionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatTransitionPayload(event)
	if err != nil {
		return err
	}
	f.Transitions = append(f.Transitions, event)
	f.record(TopicEvents, payload)
	return nil
}

// PublishOccupancy records the occupancy update.
func (f *FakePublisher) PublishOccupancy(update OccupancyUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatOccupancyPayload(update)
	if err != nil {
		return err
	}
	f.Occupancy = append(f.Occupancy, update)
	f.record(TopicOccupancy, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.record(TopicSystem, payload)
	return nil
}

func (f *FakePublisher) record(topic string, payload []byte) {
	if f.Payloads == nil {
		f.Payloads = make(map[string][][]byte)
	}
	f.Payloads[topic] = append(f.Payloads[topic], payload)
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// LastOccupancy returns the most recent occupancy update, if any.
func (f *FakePublisher) LastOccupancy() (OccupancyUpdate, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Occupancy) == 0 {
		return OccupancyUpdate{}, false
	}
	return f.Occupancy[len(f.Occupancy)-1], true
}

// Reset clears recorded messages and injected errors.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Transitions = nil
	f.Occupancy = nil
	f.SystemEvents = nil
	f.Payloads = make(map[string][][]byte)
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
