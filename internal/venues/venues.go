// Package venues provides the read-only venue directory the geofence
// evaluates against.
package venues

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync/atomic"

	"github.com/goccy/go-yaml"

	"github.com/sweeney/venue-presence/internal/geo"
	"github.com/sweeney/venue-presence/internal/logic"
)

// Directory returns the current venue list. Callers must not modify the
// returned slice.
type Directory interface {
	Venues() []logic.Venue
}

// Static is a fixed venue list.
type Static []logic.Venue

// Venues returns the list.
func (s Static) Venues() []logic.Venue {
	return s
}

// Find returns the venue with id from d.
func Find(d Directory, id string) (logic.Venue, bool) {
	for _, v := range d.Venues() {
		if v.ID == id {
			return v, true
		}
	}
	return logic.Venue{}, false
}

type fileVenue struct {
	ID         string                   `yaml:"id"`
	Name       string                   `yaml:"name"`
	Location   *geo.Coordinates         `yaml:"location"`
	Thresholds logic.CapacityThresholds `yaml:"thresholds"`
}

type fileFormat struct {
	Venues []fileVenue `yaml:"venues"`
}

// File is a directory backed by a YAML file. Reload swaps the whole list
// at once so readers never see a partial update.
type File struct {
	path   string
	venues atomic.Pointer[[]logic.Venue]
}

// Load reads the venue file at path.
func Load(path string) (*File, error) {
	f := &File{path: path}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// Path returns the file the directory was loaded from.
func (f *File) Path() string {
	return f.path
}

// Venues returns the most recently loaded list.
func (f *File) Venues() []logic.Venue {
	if p := f.venues.Load(); p != nil {
		return *p
	}
	return nil
}

// Reload re-reads the file. On error the previous list stays in place.
func (f *File) Reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("read venues: %w", err)
	}
	list, err := Parse(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", f.path, err)
	}
	f.venues.Store(&list)
	return nil
}

// Parse decodes a venue document. Venues that fail validation are kept,
// since the engine skips them, but each one is logged. Duplicate ids are
// an error.
func Parse(data []byte) ([]logic.Venue, error) {
	var doc fileFormat
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(doc.Venues))
	list := make([]logic.Venue, 0, len(doc.Venues))
	for _, fv := range doc.Venues {
		v := logic.Venue{ID: fv.ID, Name: fv.Name, Location: fv.Location, Thresholds: fv.Thresholds}
		if v.ID != "" {
			if seen[v.ID] {
				return nil, fmt.Errorf("duplicate venue id %q", v.ID)
			}
			seen[v.ID] = true
		}
		if err := logic.ValidateVenue(v); err != nil {
			if !errors.Is(err, logic.ErrInvalidVenueData) {
				return nil, err
			}
			log.Printf("venues: skipping in geofence: %v", err)
		}
		list = append(list, v)
	}
	return list, nil
}
