package location

import (
	"context"
	"errors"
)

// FakeSampler is a test double that delivers scripted readings.
type FakeSampler struct {
	// Readings are delivered in order by Run.
	Readings []Reading

	// RunError, if set, is returned by Run after the readings.
	RunError error

	// Delivered counts readings handed to deliver.
	Delivered int
}

// NewFakeSampler creates a FakeSampler with the given readings.
func NewFakeSampler(readings []Reading) *FakeSampler {
	return &FakeSampler{Readings: readings}
}

// Run delivers every scripted reading, then returns RunError.
// It stops early if ctx is cancelled.
func (f *FakeSampler) Run(ctx context.Context, deliver func(Reading)) error {
	if len(f.Readings) == 0 && f.RunError == nil {
		return errors.New("no readings configured")
	}
	for _, r := range f.Readings[f.Delivered:] {
		if err := ctx.Err(); err != nil {
			return err
		}
		deliver(r)
		f.Delivered++
	}
	return f.RunError
}

// Reset rewinds the sampler to the first reading.
func (f *FakeSampler) Reset() {
	f.Delivered = 0
}
