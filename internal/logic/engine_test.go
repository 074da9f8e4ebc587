package logic

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/sweeney/venue-presence/internal/geo"
)

var (
	clubA = geo.Coordinates{Lat: -26.2041, Lng: 28.0473}
	clubB = geo.Offset(clubA, 0, 300) // 300 m east of A
	t0    = time.Date(2026, 1, 1, 22, 0, 0, 0, time.UTC)
)

func venuesAB() []Venue {
	a, b := clubA, clubB
	return []Venue{
		{ID: "club-a", Name: "Club A", Location: &a},
		{ID: "club-b", Name: "Club B", Location: &b},
	}
}

// at returns a point meters north of clubA.
func at(meters float64) geo.Coordinates {
	return geo.Offset(clubA, meters, 0)
}

// setupInside returns an engine and a membership that entered club-a at t0.
func setupInside(t *testing.T) (Engine, Membership) {
	t.Helper()
	e := NewEngine(DefaultConfig())
	m, d := e.Evaluate(Membership{}, at(10), venuesAB(), t0)
	if d.Outcome != OutcomeEntered || m.VenueID != "club-a" {
		t.Fatalf("setup: expected entry into club-a, got %s %q", d.Outcome, m.VenueID)
	}
	return e, m
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.EntryRadius != 45 {
		t.Errorf("EntryRadius: got %v, want 45", cfg.EntryRadius)
	}
	if cfg.ExitRadius != 60 {
		t.Errorf("ExitRadius: got %v, want 60", cfg.ExitRadius)
	}
	if cfg.Cooldown != 60*time.Second {
		t.Errorf("Cooldown: got %v, want 60s", cfg.Cooldown)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"default", DefaultConfig(), true},
		{"equal radii", Config{EntryRadius: 50, ExitRadius: 50}, true},
		{"exit smaller", Config{EntryRadius: 60, ExitRadius: 45}, false},
		{"zero entry", Config{EntryRadius: 0, ExitRadius: 60}, false},
		{"nan entry", Config{EntryRadius: math.NaN(), ExitRadius: 60}, false},
		{"negative cooldown", Config{EntryRadius: 45, ExitRadius: 60, Cooldown: -time.Second}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestEntryWithinRadius(t *testing.T) {
	e := NewEngine(DefaultConfig())

	m, d := e.Evaluate(Membership{}, at(30), venuesAB(), t0)
	if d.Outcome != OutcomeEntered {
		t.Fatalf("expected ENTERED, got %s", d.Outcome)
	}
	if m.VenueID != "club-a" {
		t.Errorf("VenueID: got %q, want club-a", m.VenueID)
	}
	if !m.LastTransitionAt.Equal(t0) {
		t.Errorf("LastTransitionAt: got %v, want %v", m.LastTransitionAt, t0)
	}
	if math.Abs(d.Distance-30) > 0.5 {
		t.Errorf("Distance: got %.2f, want ~30", d.Distance)
	}
}

func TestNoEntryOutsideRadius(t *testing.T) {
	e := NewEngine(DefaultConfig())
	for _, meters := range []float64{46, 50, 59, 100} {
		m, d := e.Evaluate(Membership{}, at(meters), venuesAB(), t0)
		if d.Outcome != OutcomeNone {
			t.Errorf("%vm: expected NONE, got %s", meters, d.Outcome)
		}
		if m.Inside() {
			t.Errorf("%vm: should remain outside", meters)
		}
	}
}

func TestEntryPicksNearestVenue(t *testing.T) {
	near := geo.Offset(clubA, 0, 20)
	far := geo.Offset(clubA, 0, -30)
	venues := []Venue{
		{ID: "far", Location: &far},
		{ID: "near", Location: &near},
	}
	e := NewEngine(DefaultConfig())

	m, d := e.Evaluate(Membership{}, clubA, venues, t0)
	if d.Outcome != OutcomeEntered || m.VenueID != "near" {
		t.Errorf("expected entry into near, got %s %q", d.Outcome, m.VenueID)
	}
}

func TestEntryCooldownAfterExit(t *testing.T) {
	e, m := setupInside(t)

	// Exit after cooldown
	m, d := e.Evaluate(m, at(100), venuesAB(), t0.Add(61*time.Second))
	if d.Outcome != OutcomeExited {
		t.Fatalf("expected EXITED, got %s", d.Outcome)
	}

	// Coming straight back is held by cooldown
	m2, d := e.Evaluate(m, at(10), venuesAB(), t0.Add(90*time.Second))
	if d.Outcome != OutcomeEntryPending {
		t.Errorf("expected ENTRY_PENDING, got %s", d.Outcome)
	}
	if m2 != m {
		t.Errorf("pending entry must not change state: %+v -> %+v", m, m2)
	}

	// Allowed once cooldown has elapsed since the exit
	m3, d := e.Evaluate(m2, at(10), venuesAB(), t0.Add(122*time.Second))
	if d.Outcome != OutcomeEntered || m3.VenueID != "club-a" {
		t.Errorf("expected re-entry, got %s %q", d.Outcome, m3.VenueID)
	}
}

func TestExitHeldByCooldown(t *testing.T) {
	e, m := setupInside(t)

	// 70 m is outside exit radius but within cooldown of the entry
	for _, offset := range []time.Duration{5 * time.Second, 30 * time.Second, 60 * time.Second} {
		next, d := e.Evaluate(m, at(70), venuesAB(), t0.Add(offset))
		if d.Outcome != OutcomeExitPending {
			t.Errorf("+%v: expected EXIT_PENDING, got %s", offset, d.Outcome)
		}
		if next != m {
			t.Errorf("+%v: pending exit changed state to %+v", offset, next)
		}
	}

	// Strictly greater than cooldown
	next, d := e.Evaluate(m, at(70), venuesAB(), t0.Add(60*time.Second+time.Millisecond))
	if d.Outcome != OutcomeExited {
		t.Fatalf("expected EXITED after cooldown, got %s", d.Outcome)
	}
	if next.Inside() {
		t.Error("should be outside after exit")
	}
	if d.VenueID != "club-a" {
		t.Errorf("exit VenueID: got %q, want club-a", d.VenueID)
	}
	if !next.LastTransitionAt.Equal(t0.Add(60*time.Second + time.Millisecond)) {
		t.Errorf("LastTransitionAt not updated on exit: %v", next.LastTransitionAt)
	}
}

func TestHysteresisBandAbsorbsJitter(t *testing.T) {
	e, m := setupInside(t)

	now := t0
	for i := 0; i < 200; i++ {
		now = now.Add(17 * time.Second)
		dist := 50.0
		if i%2 == 1 {
			dist = 55.0
		}
		var d Decision
		m, d = e.Evaluate(m, at(dist), venuesAB(), now)
		if d.Outcome != OutcomeNone {
			t.Fatalf("iteration %d at %vm: expected NONE, got %s", i, dist, d.Outcome)
		}
	}
	if m.VenueID != "club-a" {
		t.Errorf("expected to remain in club-a, got %q", m.VenueID)
	}
	if !m.LastTransitionAt.Equal(t0) {
		t.Errorf("jitter reset LastTransitionAt to %v", m.LastTransitionAt)
	}
}

func TestBandDoesNotEnterFromOutside(t *testing.T) {
	e := NewEngine(DefaultConfig())
	m := Membership{}
	now := t0
	for i := 0; i < 50; i++ {
		now = now.Add(10 * time.Second)
		var d Decision
		m, d = e.Evaluate(m, at(50+float64(i%6)), venuesAB(), now)
		if d.Outcome != OutcomeNone {
			t.Fatalf("iteration %d: expected NONE, got %s", i, d.Outcome)
		}
	}
}

func TestSelfTransitionIsNoop(t *testing.T) {
	e, m := setupInside(t)

	next, d := e.Evaluate(m, at(5), venuesAB(), t0.Add(10*time.Minute))
	if d.Outcome != OutcomeNone {
		t.Errorf("expected NONE, got %s", d.Outcome)
	}
	if next != m {
		t.Errorf("self-transition changed state: %+v -> %+v", m, next)
	}
}

func TestExitTakesPrecedenceOverEntry(t *testing.T) {
	e, m := setupInside(t)

	// Sample sits inside club-b's entry radius and outside club-a's exit radius
	next, d := e.Evaluate(m, geo.Offset(clubB, 0, -10), venuesAB(), t0.Add(2*time.Minute))
	if d.Outcome != OutcomeExited || d.VenueID != "club-a" {
		t.Fatalf("expected exit from club-a, got %s %q", d.Outcome, d.VenueID)
	}
	if next.Inside() {
		t.Errorf("exit and entry must not happen in the same sample, now in %q", next.VenueID)
	}
}

func TestInsideNeverSwitchesDirectly(t *testing.T) {
	near := geo.Offset(clubA, 0, 40)
	a := clubA
	venues := []Venue{{ID: "club-a", Location: &a}, {ID: "next-door", Location: &near}}
	e := NewEngine(DefaultConfig())
	m, _ := e.Evaluate(Membership{}, clubA, venues, t0)

	// 35 m from A, 5 m from next-door: still within A's exit radius
	next, d := e.Evaluate(m, geo.Offset(clubA, 0, 35), venues, t0.Add(5*time.Minute))
	if d.Outcome != OutcomeNone || next.VenueID != "club-a" {
		t.Errorf("expected to stay in club-a, got %s %q", d.Outcome, next.VenueID)
	}
}

func TestNoResolvableVenuesIsNoop(t *testing.T) {
	e, m := setupInside(t)
	tests := []struct {
		name   string
		venues []Venue
	}{
		{"nil", nil},
		{"no coordinates", []Venue{{ID: "club-a"}, {ID: "club-b"}}},
		{"invalid coordinates", []Venue{{ID: "club-a", Location: &geo.Coordinates{Lat: 200}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, d := e.Evaluate(m, at(500), tt.venues, t0.Add(time.Hour))
			if d.Outcome != OutcomeNone {
				t.Errorf("expected NONE, got %s", d.Outcome)
			}
			if next != m {
				t.Errorf("state changed: %+v", next)
			}

			out, d := e.Evaluate(Membership{}, at(0), tt.venues, t0)
			if d.Outcome != OutcomeNone || out.Inside() {
				t.Errorf("outside: expected NONE, got %s %q", d.Outcome, out.VenueID)
			}
		})
	}
}

func TestInvalidVenueSkipped(t *testing.T) {
	bad := geo.Coordinates{Lat: math.NaN(), Lng: 28}
	b := clubB
	venues := []Venue{
		{ID: "broken", Location: &bad},
		{ID: "no-coords"},
		{ID: "club-b", Location: &b},
	}
	e := NewEngine(DefaultConfig())

	m, d := e.Evaluate(Membership{}, clubB, venues, t0)
	if d.Outcome != OutcomeEntered || m.VenueID != "club-b" {
		t.Errorf("expected entry into club-b, got %s %q", d.Outcome, m.VenueID)
	}
}

func TestVanishedVenueExits(t *testing.T) {
	e, m := setupInside(t)
	b := clubB
	onlyB := []Venue{{ID: "club-b", Location: &b}}

	_, d := e.Evaluate(m, at(0), onlyB, t0.Add(10*time.Second))
	if d.Outcome != OutcomeExitPending {
		t.Errorf("within cooldown: expected EXIT_PENDING, got %s", d.Outcome)
	}

	next, d := e.Evaluate(m, at(0), onlyB, t0.Add(2*time.Minute))
	if d.Outcome != OutcomeExited {
		t.Errorf("expected EXITED, got %s", d.Outcome)
	}
	if !math.IsInf(d.Distance, 1) {
		t.Errorf("Distance: got %v, want +Inf", d.Distance)
	}
	if next.Inside() {
		t.Error("should be outside")
	}
}

func TestInvalidSampleIsNoop(t *testing.T) {
	e, m := setupInside(t)
	next, d := e.Evaluate(m, geo.Coordinates{Lat: math.NaN()}, venuesAB(), t0.Add(time.Hour))
	if d.Outcome != OutcomeNone || next != m {
		t.Errorf("NaN sample: got %s %+v", d.Outcome, next)
	}
}

func TestEvaluateDoesNotMutateVenues(t *testing.T) {
	venues := venuesAB()
	before := *venues[0].Location
	e := NewEngine(DefaultConfig())
	e.Evaluate(Membership{}, at(10), venues, t0)
	if *venues[0].Location != before {
		t.Error("Evaluate mutated venue coordinates")
	}
}

func TestValidateVenue(t *testing.T) {
	ok := clubA
	tests := []struct {
		name string
		v    Venue
		ok   bool
	}{
		{"valid", Venue{ID: "a", Location: &ok}, true},
		{"missing id", Venue{Location: &ok}, false},
		{"nil location", Venue{ID: "a"}, false},
		{"out of range", Venue{ID: "a", Location: &geo.Coordinates{Lat: -91}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateVenue(tt.v)
			if (err == nil) != tt.ok {
				t.Fatalf("ValidateVenue() = %v, want ok=%v", err, tt.ok)
			}
			if err != nil && !errors.Is(err, ErrInvalidVenueData) {
				t.Errorf("error %v does not wrap ErrInvalidVenueData", err)
			}
		})
	}
}

func TestTransitionCounts(t *testing.T) {
	var c TransitionCounts
	for _, o := range []Outcome{OutcomeEntered, OutcomeExitPending, OutcomeExitPending, OutcomeExited, OutcomeEntryPending, OutcomeNone} {
		c.Add(Decision{Outcome: o})
	}
	want := TransitionCounts{Entries: 1, Exits: 1, ExitPending: 2, EntryPending: 1}
	if c != want {
		t.Errorf("counts: got %+v, want %+v", c, want)
	}
}
