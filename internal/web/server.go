// Package web provides an HTTP status and occupancy server for the
// presence daemon, plus a heartbeat ingest endpoint for clients that
// post pings directly instead of over MQTT.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sweeney/venue-presence/internal/clock"
	"github.com/sweeney/venue-presence/internal/geo"
	"github.com/sweeney/venue-presence/internal/occupancy"
	"github.com/sweeney/venue-presence/internal/presence"
	"github.com/sweeney/venue-presence/internal/status"
	"github.com/sweeney/venue-presence/internal/venues"
)

const ingestTimeout = 5 * time.Second

// OccupancySource returns the latest occupancy snapshot, or nil.
type OccupancySource interface {
	Snapshot() *occupancy.Snapshot
}

// Deps are the components the server reads from and writes to.
type Deps struct {
	Tracker   *status.Tracker
	Venues    venues.Directory
	Occupancy OccupancySource
	// Store receives pings from POST /heartbeat. Nil disables the route.
	Store presence.Store
	Clock clock.Clock
}

// Server serves the status page, occupancy JSON and heartbeat ingest.
type Server struct {
	httpServer *http.Server
	deps       Deps
}

// New creates a Server listening on addr.
func New(addr string, deps Deps) *Server {
	if deps.Clock == nil {
		deps.Clock = clock.NewSystem()
	}
	s := &Server{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/index.json", s.handleJSON)
	r.Get("/occupancy.json", s.handleOccupancy)
	r.Get("/venues/{id}", s.handleVenue)
	if deps.Store != nil {
		r.Post("/heartbeat", s.handleHeartbeat)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) snapshot() *occupancy.Snapshot {
	if s.deps.Occupancy == nil {
		return nil
	}
	return s.deps.Occupancy.Snapshot()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Tracker.Snapshot()
	rows := venueRows(s.snapshot(), s.deps.Venues.Venues())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap, rows)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleOccupancy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, formatOccupancy(s.snapshot(), s.deps.Venues.Venues()))
}

func (s *Server) handleVenue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	v, ok := venues.Find(s.deps.Venues, id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown venue")
		return
	}
	writeJSON(w, http.StatusOK, VenueEnvelope{Venue: formatVenue(v, s.snapshot())})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req HeartbeatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if _, ok := venues.Find(s.deps.Venues, req.VenueID); !ok {
		writeError(w, http.StatusNotFound, "unknown venue")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), ingestTimeout)
	defer cancel()
	rec := presence.Record{
		VenueID:  req.VenueID,
		Location: geo.Coordinates{Lat: *req.Lat, Lng: *req.Lng},
		LastSeen: s.deps.Clock.Now(),
	}
	if err := s.deps.Store.Upsert(ctx, req.DeviceID, rec); err != nil {
		log.Printf("web: heartbeat upsert failed: %v", err)
		if errors.Is(err, presence.ErrUnreachable) {
			writeError(w, http.StatusServiceUnavailable, "presence store unreachable")
			return
		}
		writeError(w, http.StatusInternalServerError, "could not record heartbeat")
		return
	}
	writeJSON(w, http.StatusOK, HeartbeatResponse{OK: true, LastSeen: rec.LastSeen.UTC().Format(time.RFC3339)})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg})
}
