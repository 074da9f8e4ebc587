// Command presenced tracks devices against venue geofences and publishes
// live venue occupancy to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sweeney/venue-presence/internal/clock"
	"github.com/sweeney/venue-presence/internal/debounce"
	"github.com/sweeney/venue-presence/internal/heartbeat"
	"github.com/sweeney/venue-presence/internal/logic"
	"github.com/sweeney/venue-presence/internal/mqtt"
	"github.com/sweeney/venue-presence/internal/occupancy"
	"github.com/sweeney/venue-presence/internal/presence"
	"github.com/sweeney/venue-presence/internal/presence/postgres"
	"github.com/sweeney/venue-presence/internal/presence/sqlite"
	"github.com/sweeney/venue-presence/internal/session"
	"github.com/sweeney/venue-presence/internal/status"
	"github.com/sweeney/venue-presence/internal/venues"
	"github.com/sweeney/venue-presence/internal/web"
)

type options struct {
	broker         string
	clientID       string
	locationTopic  string
	store          string
	venuesPath     string
	httpAddr       string
	wsBroker       string
	statusInterval time.Duration
	session        session.Config
	aggregate      occupancy.Config
}

func main() {
	// .env.local wins over .env; neither overrides the real environment.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if err := run(opts); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// parseFlags reads flags whose defaults come from PRESENCE_* environment
// variables.
func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("presenced", flag.ContinueOnError)
	var o options

	fs.StringVar(&o.broker, "broker", envString("PRESENCE_BROKER", "tcp://localhost:1883"), "MQTT broker address")
	fs.StringVar(&o.clientID, "client-id", envString("PRESENCE_CLIENT_ID", "presenced"), "MQTT client id prefix")
	fs.StringVar(&o.locationTopic, "location-topic", envString("PRESENCE_LOCATION_TOPIC", mqtt.DefaultLocationTopic), "MQTT topic filter for device locations")
	fs.StringVar(&o.store, "store", envString("PRESENCE_STORE", "memory"), `Presence store: "memory", "sqlite:<path>" or a postgres:// URL`)
	fs.StringVar(&o.venuesPath, "venues", envString("PRESENCE_VENUES", "venues.yaml"), "Venue directory YAML file")
	fs.StringVar(&o.httpAddr, "http", envString("PRESENCE_HTTP", ":8080"), "HTTP status address (empty to disable)")
	fs.StringVar(&o.wsBroker, "ws-broker", envString("PRESENCE_WS_BROKER", "=broker"), `MQTT websocket URL for live UI ("=broker" derives from --broker, "off" disables)`)
	fs.DurationVar(&o.statusInterval, "status-interval", envDuration("PRESENCE_STATUS_INTERVAL", 15*time.Minute), "STATUS event interval (0 to disable)")

	fs.DurationVar(&o.session.Debounce, "debounce", envDuration("PRESENCE_DEBOUNCE", debounce.DefaultDelay), "Quiet period before a sample is evaluated")
	fs.Float64Var(&o.session.Engine.EntryRadius, "entry-radius", envFloat("PRESENCE_ENTRY_RADIUS", logic.DefaultEntryRadius), "Entry radius in meters")
	fs.Float64Var(&o.session.Engine.ExitRadius, "exit-radius", envFloat("PRESENCE_EXIT_RADIUS", logic.DefaultExitRadius), "Exit radius in meters")
	fs.DurationVar(&o.session.Engine.Cooldown, "cooldown", envDuration("PRESENCE_COOLDOWN", logic.DefaultCooldown), "Minimum time between transitions")
	fs.DurationVar(&o.session.Heartbeat.Interval, "heartbeat", envDuration("PRESENCE_HEARTBEAT", heartbeat.DefaultInterval), "Presence ping interval while inside a venue")
	fs.DurationVar(&o.aggregate.Interval, "aggregate", envDuration("PRESENCE_AGGREGATE", occupancy.DefaultInterval), "Occupancy aggregation interval")
	fs.DurationVar(&o.aggregate.Retention, "retention", envDuration("PRESENCE_RETENTION", occupancy.DefaultRetention), "How long a ping keeps a device counted")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	o.session.Heartbeat.Timeout = heartbeat.DefaultTimeout
	o.aggregate.Timeout = occupancy.DefaultTimeout
	o.wsBroker = resolveWSBroker(o.wsBroker, o.broker)

	if err := o.validate(); err != nil {
		return options{}, err
	}
	return o, nil
}

func (o options) validate() error {
	if err := o.session.Validate(); err != nil {
		return err
	}
	if err := o.aggregate.ValidateAgainst(o.session.Heartbeat.Interval); err != nil {
		return fmt.Errorf("occupancy: %w", err)
	}
	if o.statusInterval < 0 {
		return errors.New("status interval must not be negative")
	}
	if _, _, err := parseStore(o.store); err != nil {
		return err
	}
	return nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("config: ignoring %s=%q: %v", key, v, err)
		return def
	}
	return d
}

func envFloat(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("config: ignoring %s=%q: %v", key, v, err)
		return def
	}
	return f
}

// Store kinds accepted by -store.
const (
	storeMemory   = "memory"
	storeSQLite   = "sqlite"
	storePostgres = "postgres"
)

// parseStore splits a -store value into its kind and target.
func parseStore(dsn string) (kind, target string, err error) {
	switch {
	case dsn == storeMemory || dsn == "":
		return storeMemory, "", nil
	case strings.HasPrefix(dsn, "sqlite:"):
		path := strings.TrimPrefix(dsn, "sqlite:")
		if path == "" {
			return "", "", errors.New("sqlite store needs a path, e.g. sqlite:presence.db")
		}
		return storeSQLite, path, nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return storePostgres, dsn, nil
	}
	return "", "", fmt.Errorf("unknown store %q", dsn)
}

// openStore returns the store and a func that releases it.
func openStore(ctx context.Context, dsn string) (presence.Store, func(), string, error) {
	kind, target, err := parseStore(dsn)
	if err != nil {
		return nil, nil, "", err
	}
	switch kind {
	case storeSQLite:
		s, err := sqlite.Open(target)
		if err != nil {
			return nil, nil, "", err
		}
		return s, func() { s.Close() }, kind, nil
	case storePostgres:
		s, err := postgres.Connect(ctx, target)
		if err != nil {
			return nil, nil, "", err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, nil, "", err
		}
		return s, s.Close, kind, nil
	}
	return presence.NewMemoryStore(), func() {}, storeMemory, nil
}

func run(o options) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir, err := venues.Load(o.venuesPath)
	if err != nil {
		return fmt.Errorf("load venues: %w", err)
	}

	openCtx, openCancel := context.WithTimeout(ctx, 10*time.Second)
	store, closeStore, storeKind, err := openStore(openCtx, o.store)
	openCancel()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	publisher := mqtt.NewRealPublisher(o.broker, o.clientID)
	defer publisher.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		Broker:        o.broker,
		LocationTopic: o.locationTopic,
		Store:         storeKind,
		VenuesFile:    o.venuesPath,
		DebounceMs:    o.session.Debounce.Milliseconds(),
		CooldownMs:    o.session.Engine.Cooldown.Milliseconds(),
		HeartbeatMs:   o.session.Heartbeat.Interval.Milliseconds(),
		AggregateMs:   o.aggregate.Interval.Milliseconds(),
		RetentionMs:   o.aggregate.Retention.Milliseconds(),
		EntryRadius:   o.session.Engine.EntryRadius,
		ExitRadius:    o.session.Engine.ExitRadius,
		HTTPAddr:      o.httpAddr,
		WSBroker:      o.wsBroker,
	})
	tracker.SetVenueCount(len(dir.Venues()))

	clk := clock.NewSystem()
	d := newDaemon(dir, store, clk, publisher, publisher, tracker, o)

	publishSystem(publisher, tracker, "STARTUP", "")

	if o.httpAddr != "" {
		srv := web.New(o.httpAddr, web.Deps{
			Tracker:   tracker,
			Venues:    dir,
			Occupancy: d.agg,
			Store:     store,
			Clock:     clk,
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", o.httpAddr)
	}

	scanCtx, scanCancel := context.WithTimeout(ctx, o.aggregate.Timeout)
	if _, err := d.agg.RunOnce(scanCtx); err != nil {
		log.Printf("initial occupancy scan failed: %v", err)
	}
	scanCancel()
	d.agg.Start()

	sampler := mqtt.NewLocationSubscriber(o.broker, o.clientID+"-locations", o.locationTopic)
	samplerDone := make(chan error, 1)
	go func() {
		samplerDone <- sampler.Run(ctx, d.manager.Handle)
	}()

	log.Printf("started: broker=%s topic=%s store=%s venues=%d debounce=%v cooldown=%v heartbeat=%v retention=%v",
		o.broker, o.locationTopic, storeKind, len(dir.Venues()),
		o.session.Debounce, o.session.Engine.Cooldown, o.session.Heartbeat.Interval, o.aggregate.Retention)

	var statusTick <-chan time.Time
	if o.statusInterval > 0 {
		ticker := time.NewTicker(o.statusInterval)
		defer ticker.Stop()
		statusTick = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	return runLoop(d, statusTick, sigCh, samplerDone)
}

// resolveWSBroker converts the --ws-broker flag value into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; empty disables.
func resolveWSBroker(ws, broker string) string {
	if ws == "off" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	u, err := url.Parse(broker)
	if err != nil {
		log.Printf("ws-broker: cannot parse --broker %q: %v", broker, err)
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}
