// Package location provides location samples from devices with an
// abstraction over the transport they arrive on.
// The real implementation subscribes to device reports over MQTT.
// The fake implementation allows testing without a broker.
package location

import (
	"context"
	"time"

	"github.com/sweeney/venue-presence/internal/geo"
)

// Sample is a single raw position fix.
type Sample struct {
	At   geo.Coordinates
	Time time.Time
	// Accuracy is the reported horizontal accuracy in meters (0 if unknown).
	Accuracy float64
}

// Reading is what a sampler delivers for one device: either a Sample or,
// when Err is set, a location failure.
type Reading struct {
	DeviceID string
	Sample   Sample
	Err      error
}

// Sampler delivers readings at irregular intervals.
type Sampler interface {
	// Run calls deliver for every reading until ctx is done or the
	// underlying source fails. Readings for one device are delivered in
	// arrival order.
	Run(ctx context.Context, deliver func(Reading)) error
}
