package status

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/venue-presence/internal/occupancy"
	"github.com/sweeney/venue-presence/internal/session"
)

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{DebounceMs: 1500, Broker: "tcp://localhost:1883", HTTPAddr: ":80"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.DebounceMs != 1500 {
		t.Errorf("Config.DebounceMs: got %d, want 1500", snap.Config.DebounceMs)
	}
	if snap.Config.HTTPAddr != ":80" {
		t.Errorf("Config.HTTPAddr: got %q, want %q", snap.Config.HTTPAddr, ":80")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
	if snap.Occupancy != nil {
		t.Error("expected no occupancy initially")
	}
}

func TestRecordNotice(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	for _, k := range []session.Kind{
		session.KindEntered, session.KindEntered, session.KindExited,
		session.KindExitPending, session.KindEntryPending,
		session.KindLocationUnavailable, session.KindStoreUnreachable, session.KindStoreUnreachable,
	} {
		tr.RecordNotice(session.Notice{Kind: k})
	}
	tr.RecordStoreFailure()
	tr.RecordPublishFailure()

	snap := tr.Snapshot()
	if snap.Transitions.Entries != 2 || snap.Transitions.Exits != 1 {
		t.Errorf("transitions: got %+v", snap.Transitions)
	}
	if snap.Transitions.ExitPending != 1 || snap.Transitions.EntryPending != 1 {
		t.Errorf("pending: got %+v", snap.Transitions)
	}
	if snap.Failures.LocationUnavailable != 1 {
		t.Errorf("LocationUnavailable: got %d, want 1", snap.Failures.LocationUnavailable)
	}
	if snap.Failures.StoreUnreachable != 3 {
		t.Errorf("StoreUnreachable: got %d, want 3", snap.Failures.StoreUnreachable)
	}
	if snap.Failures.PublishFailed != 1 {
		t.Errorf("PublishFailed: got %d, want 1", snap.Failures.PublishFailed)
	}
}

func TestSetters(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	occ := &occupancy.Snapshot{Counts: map[string]int{"a": 2}, Seq: 4}

	tr.SetMQTTConnected(true)
	tr.SetActiveSessions(7)
	tr.SetVenueCount(3)
	tr.SetOccupancy(occ)

	snap := tr.Snapshot()
	if !snap.MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}
	if snap.ActiveSessions != 7 {
		t.Errorf("ActiveSessions: got %d, want 7", snap.ActiveSessions)
	}
	if snap.VenueCount != 3 {
		t.Errorf("VenueCount: got %d, want 3", snap.VenueCount)
	}
	if snap.Occupancy != occ {
		t.Error("expected occupancy snapshot to be stored")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.RecordNotice(session.Notice{Kind: session.KindEntered})

	snap1 := tr.Snapshot()
	tr.RecordNotice(session.Notice{Kind: session.KindEntered})

	if snap1.Transitions.Entries != 1 {
		t.Error("snapshot should be a copy; counts were modified")
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime:      start,
		Now:            start.Add(time.Hour),
		MQTTConnected:  true,
		ActiveSessions: 12,
		VenueCount:     4,
		Occupancy: &occupancy.Snapshot{
			Counts: map[string]int{"a": 5, "b": 6},
			At:     start.Add(59 * time.Minute),
			Seq:    59,
		},
		Config: Config{Broker: "tcp://localhost:1883", Store: "sqlite", HeartbeatMs: 300000, EntryRadius: 45, ExitRadius: 60},
	}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.UptimeSeconds != 3600 {
		t.Errorf("UptimeSeconds: got %d, want 3600", parsed.Status.UptimeSeconds)
	}
	if parsed.Status.Timestamp != "2026-01-01T01:00:00Z" {
		t.Errorf("Timestamp: got %q", parsed.Status.Timestamp)
	}
	if !parsed.Status.MQTT.Connected || parsed.Status.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("MQTT: got %+v", parsed.Status.MQTT)
	}
	if parsed.Status.Sessions != 12 || parsed.Status.Venues != 4 {
		t.Errorf("sessions/venues: got %d/%d", parsed.Status.Sessions, parsed.Status.Venues)
	}
	if parsed.Status.Occupancy == nil || parsed.Status.Occupancy.Total != 11 || parsed.Status.Occupancy.Seq != 59 {
		t.Errorf("Occupancy: got %+v", parsed.Status.Occupancy)
	}
	if parsed.Status.Config.Store != "sqlite" || parsed.Status.Config.ExitRadius != 60 {
		t.Errorf("Config: got %+v", parsed.Status.Config)
	}
	if parsed.Status.Event != "" {
		t.Error("web JSON should not carry an event")
	}
}

func TestFormatJSONOmitsOccupancyBeforeFirstScan(t *testing.T) {
	snap := Snapshot{StartTime: time.Unix(0, 0), Now: time.Unix(1, 0)}

	var raw map[string]interface{}
	if err := json.Unmarshal(FormatJSON(snap), &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	status := raw["status"].(map[string]interface{})
	if _, exists := status["occupancy"]; exists {
		t.Error("occupancy should be omitted before the first scan")
	}
}

func TestFormatStatusEvent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
		Config:    Config{Broker: "tcp://localhost:1883"},
	}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatStatusEvent(snap, "STATUS", ""), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "STATUS" {
		t.Errorf("Event: got %q, want STATUS", parsed.Status.Event)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
}

func TestFormatStatusEventShutdown(t *testing.T) {
	snap := Snapshot{StartTime: time.Unix(0, 0), Now: time.Unix(60, 0)}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM"), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" || parsed.Status.Reason != "SIGTERM" {
		t.Errorf("got event=%q reason=%q", parsed.Status.Event, parsed.Status.Reason)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{StartTime: time.Unix(0, 0), Now: time.Unix(1, 0)}

	var raw map[string]interface{}
	json.Unmarshal(FormatStatusEvent(snap, "STARTUP", ""), &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.RecordNotice(session.Notice{Kind: session.KindEntered, Err: errors.New("x")})
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetActiveSessions(i)
			tr.SetOccupancy(&occupancy.Snapshot{Seq: uint64(i)})
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}
