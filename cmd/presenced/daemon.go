package main

import (
	"log"
	"os"
	"syscall"
	"time"

	"github.com/sweeney/venue-presence/internal/clock"
	"github.com/sweeney/venue-presence/internal/logic"
	"github.com/sweeney/venue-presence/internal/mqtt"
	"github.com/sweeney/venue-presence/internal/occupancy"
	"github.com/sweeney/venue-presence/internal/presence"
	"github.com/sweeney/venue-presence/internal/session"
	"github.com/sweeney/venue-presence/internal/status"
	"github.com/sweeney/venue-presence/internal/venues"
)

// reloader is implemented by directories that can be re-read on SIGHUP.
type reloader interface {
	Reload() error
}

type daemon struct {
	dir        venues.Directory
	manager    *session.Manager
	agg        *occupancy.Aggregator
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
}

func newDaemon(dir venues.Directory, store presence.Store, clk clock.Clock, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, o options) *daemon {
	d := &daemon{
		dir:        dir,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
	}
	d.manager = session.NewManager(o.session, dir, store, clk, d.notice)
	d.agg = occupancy.New(store, clk, o.aggregate, occupancy.Hooks{
		OnSnapshot: d.occupancy,
		OnError:    func(error) { tracker.RecordStoreFailure() },
	})
	return d
}

// notice logs a session notice, counts it and publishes transitions.
func (d *daemon) notice(n session.Notice) {
	d.tracker.RecordNotice(n)

	switch n.Kind {
	case session.KindEntered, session.KindExited:
		log.Printf("presence: device %s %s %s (%.1fm)", n.DeviceID, n.Kind, n.VenueID, n.Distance)
		outcome := logic.OutcomeEntered
		if n.Kind == session.KindExited {
			outcome = logic.OutcomeExited
		}
		event := mqtt.TransitionEvent{Timestamp: n.Time, Event: string(outcome), VenueID: n.VenueID}
		if err := d.publisher.PublishTransition(event); err != nil {
			log.Printf("publish error: %v", err)
			d.tracker.RecordPublishFailure()
		}
	case session.KindExitPending, session.KindEntryPending:
		log.Printf("presence: device %s %s %s held by cooldown", n.DeviceID, n.Kind, n.VenueID)
	case session.KindLocationUnavailable, session.KindStoreUnreachable:
		log.Printf("presence: device %s %s: %v", n.DeviceID, n.Kind, n.Err)
	}
}

// occupancy publishes every new snapshot.
func (d *daemon) occupancy(s *occupancy.Snapshot) {
	d.tracker.SetOccupancy(s)
	d.tracker.SetActiveSessions(d.manager.Active())
	if err := d.publisher.PublishOccupancy(mqtt.NewOccupancyUpdate(s, d.dir.Venues())); err != nil {
		log.Printf("occupancy publish error: %v", err)
		d.tracker.RecordPublishFailure()
	}
}

func (d *daemon) refreshStatus() {
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
	d.tracker.SetActiveSessions(d.manager.Active())
	d.tracker.SetVenueCount(len(d.dir.Venues()))
}

func publishSystem(publisher mqtt.Publisher, tracker *status.Tracker, event, reason string) {
	snap := tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   event != "STATUS",
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := publisher.PublishSystem(ev); err != nil {
		log.Printf("failed to publish %s event: %v", event, err)
		return
	}
	log.Printf("published %s event", event)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// runLoop serves signals and status ticks until shutdown. On return every
// session and the aggregator are stopped and SHUTDOWN has been published.
func runLoop(d *daemon, statusTick <-chan time.Time, sig <-chan os.Signal, samplerDone <-chan error) error {
	shutdown := func(reason string) {
		d.manager.Close()
		d.agg.Stop()
		d.refreshStatus()
		publishSystem(d.publisher, d.tracker, "SHUTDOWN", reason)
	}

	for {
		select {
		case s := <-sig:
			if s == syscall.SIGHUP {
				d.reloadVenues()
				continue
			}
			log.Printf("received %v, shutting down", s)
			shutdown(signalName(s))
			return nil

		case err := <-samplerDone:
			log.Printf("location source stopped: %v", err)
			shutdown("SAMPLER_STOPPED")
			return err

		case <-statusTick:
			d.refreshStatus()
			publishSystem(d.publisher, d.tracker, "STATUS", "")
		}
	}
}

func (d *daemon) reloadVenues() {
	r, ok := d.dir.(reloader)
	if !ok {
		log.Printf("venues: directory does not support reload")
		return
	}
	if err := r.Reload(); err != nil {
		log.Printf("venues: reload failed, keeping previous list: %v", err)
		return
	}
	d.tracker.SetVenueCount(len(d.dir.Venues()))
	log.Printf("venues: reloaded %d venues", len(d.dir.Venues()))
}
