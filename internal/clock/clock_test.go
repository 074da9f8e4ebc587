package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 22, 0, 0, 0, time.UTC)

func TestFixedStartTime(t *testing.T) {
	c := NewFake(epoch)
	if !c.Now().Equal(epoch) {
		t.Errorf("Now: got %v, want %v", c.Now(), epoch)
	}
}

func TestFakeFiresInDeadlineOrder(t *testing.T) {
	c := NewFake(epoch)
	var order []string
	c.AfterFunc(3*time.Second, func() { order = append(order, "c") })
	c.AfterFunc(1*time.Second, func() { order = append(order, "a") })
	c.AfterFunc(2*time.Second, func() { order = append(order, "b") })

	c.Advance(1500 * time.Millisecond)
	if len(order) != 1 || order[0] != "a" {
		t.Fatalf("after 1.5s: got %v, want [a]", order)
	}
	if c.Pending() != 2 {
		t.Errorf("Pending: got %d, want 2", c.Pending())
	}

	c.Advance(2 * time.Second)
	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d]: got %s, want %s", i, order[i], want[i])
		}
	}
	if !c.Now().Equal(epoch.Add(3500 * time.Millisecond)) {
		t.Errorf("Now: got %v", c.Now())
	}
}

func TestFakeCallbackSeesDeadlineTime(t *testing.T) {
	c := NewFake(epoch)
	var seen time.Time
	c.AfterFunc(time.Minute, func() { seen = c.Now() })

	c.Advance(time.Hour)
	if !seen.Equal(epoch.Add(time.Minute)) {
		t.Errorf("callback saw %v, want %v", seen, epoch.Add(time.Minute))
	}
}

func TestFakeStop(t *testing.T) {
	c := NewFake(epoch)
	fired := false
	tm := c.AfterFunc(time.Second, func() { fired = true })

	if !tm.Stop() {
		t.Error("first Stop should return true")
	}
	if tm.Stop() {
		t.Error("second Stop should return false")
	}
	if c.Pending() != 0 {
		t.Errorf("Pending: got %d, want 0", c.Pending())
	}

	c.Advance(time.Minute)
	if fired {
		t.Error("stopped timer fired")
	}
}

func TestFakeStopAfterFire(t *testing.T) {
	c := NewFake(epoch)
	tm := c.AfterFunc(time.Second, func() {})
	c.Advance(time.Second)
	if tm.Stop() {
		t.Error("Stop after fire should return false")
	}
}

func TestFakeRearmFromCallback(t *testing.T) {
	c := NewFake(epoch)
	count := 0
	var tick func()
	tick = func() {
		count++
		c.AfterFunc(time.Minute, tick)
	}
	c.AfterFunc(time.Minute, tick)

	c.Advance(5 * time.Minute)
	if count != 5 {
		t.Errorf("ticks: got %d, want 5", count)
	}
	if c.Pending() != 1 {
		t.Errorf("Pending: got %d, want 1", c.Pending())
	}
}

func TestSystemClock(t *testing.T) {
	c := NewSystem()
	done := make(chan struct{})
	c.AfterFunc(time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("system timer did not fire")
	}
	if c.Now().Location() != time.UTC {
		t.Error("system clock should report UTC")
	}
}
