package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string          `json:"event,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	StartTime     string          `json:"start_time"`
	Timestamp     string          `json:"timestamp"`
	MQTT          MQTTStatus      `json:"mqtt"`
	Sessions      int             `json:"active_sessions"`
	Venues        int             `json:"venues"`
	Transitions   TransitionsJSON `json:"transitions"`
	Failures      FailuresJSON    `json:"failures"`
	Occupancy     *OccupancyJSON  `json:"occupancy,omitempty"`
	Config        ConfigJSON      `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// TransitionsJSON is the JSON representation of transition counts.
type TransitionsJSON struct {
	Entered      int `json:"entered"`
	Exited       int `json:"exited"`
	ExitPending  int `json:"exit_pending"`
	EntryPending int `json:"entry_pending"`
}

// FailuresJSON is the JSON representation of failure counts.
type FailuresJSON struct {
	LocationUnavailable int `json:"location_unavailable"`
	StoreUnreachable    int `json:"store_unreachable"`
	PublishFailed       int `json:"publish_failed"`
}

// OccupancyJSON summarises the latest occupancy snapshot.
type OccupancyJSON struct {
	Timestamp string `json:"timestamp"`
	Seq       uint64 `json:"seq"`
	Total     int    `json:"total"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Broker        string  `json:"broker"`
	LocationTopic string  `json:"location_topic"`
	Store         string  `json:"store"`
	VenuesFile    string  `json:"venues_file,omitempty"`
	DebounceMs    int64   `json:"debounce_ms"`
	CooldownMs    int64   `json:"cooldown_ms"`
	HeartbeatMs   int64   `json:"heartbeat_ms"`
	AggregateMs   int64   `json:"aggregate_ms"`
	RetentionMs   int64   `json:"retention_ms"`
	EntryRadius   float64 `json:"entry_radius_m"`
	ExitRadius    float64 `json:"exit_radius_m"`
	HTTPAddr      string  `json:"http_addr"`
	WSBroker      string  `json:"ws_broker,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Sessions:      snap.ActiveSessions,
		Venues:        snap.VenueCount,
		Transitions: TransitionsJSON{
			Entered:      snap.Transitions.Entries,
			Exited:       snap.Transitions.Exits,
			ExitPending:  snap.Transitions.ExitPending,
			EntryPending: snap.Transitions.EntryPending,
		},
		Failures: FailuresJSON{
			LocationUnavailable: snap.Failures.LocationUnavailable,
			StoreUnreachable:    snap.Failures.StoreUnreachable,
			PublishFailed:       snap.Failures.PublishFailed,
		},
		Config: ConfigJSON{
			Broker:        snap.Config.Broker,
			LocationTopic: snap.Config.LocationTopic,
			Store:         snap.Config.Store,
			VenuesFile:    snap.Config.VenuesFile,
			DebounceMs:    snap.Config.DebounceMs,
			CooldownMs:    snap.Config.CooldownMs,
			HeartbeatMs:   snap.Config.HeartbeatMs,
			AggregateMs:   snap.Config.AggregateMs,
			RetentionMs:   snap.Config.RetentionMs,
			EntryRadius:   snap.Config.EntryRadius,
			ExitRadius:    snap.Config.ExitRadius,
			HTTPAddr:      snap.Config.HTTPAddr,
			WSBroker:      snap.Config.WSBroker,
		},
	}
	if o := snap.Occupancy; o != nil {
		inner.Occupancy = &OccupancyJSON{
			Timestamp: o.At.UTC().Format(time.RFC3339),
			Seq:       o.Seq,
			Total:     o.Total(),
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
