package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/sweeney/venue-presence/internal/geo"
	"github.com/sweeney/venue-presence/internal/location"
)

// deviceNamespace scopes the name-based UUIDs derived from topics.
var deviceNamespace = uuid.MustParse("6f1d1a52-8f43-4c8e-9b8e-3c0b8a7d9e21")

// DeviceID derives the anonymous device id for a location topic. The
// same topic always yields the same id.
func DeviceID(topic string) string {
	return uuid.NewSHA1(deviceNamespace, []byte(topic)).String()
}

// ownTracksMessage is the subset of the OwnTracks JSON format we read.
// "error" messages carry a geolocation error code instead of a fix.
type ownTracksMessage struct {
	Type    string   `json:"_type"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
	Tst     int64    `json:"tst"`
	Acc     float64  `json:"acc"`
	Code    int      `json:"code"`
	Message string   `json:"message"`
}

// ErrMalformed marks a location payload that could not be decoded.
var ErrMalformed = errors.New("malformed location payload")

// ParseOwnTracks decodes one message from topic. It returns false for
// message types that carry no location, such as waypoints.
// received is used when the message has no timestamp.
func ParseOwnTracks(topic string, payload []byte, received time.Time) (location.Reading, bool, error) {
	var m ownTracksMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return location.Reading{}, false, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	r := location.Reading{DeviceID: DeviceID(topic)}
	switch m.Type {
	case "location":
		if m.Lat == nil || m.Lon == nil {
			return location.Reading{}, false, fmt.Errorf("%w: missing lat/lon", ErrMalformed)
		}
		at := received
		if m.Tst > 0 {
			at = time.Unix(m.Tst, 0).UTC()
		}
		r.Sample = location.Sample{
			At:       geo.Coordinates{Lat: *m.Lat, Lng: *m.Lon},
			Time:     at,
			Accuracy: m.Acc,
		}
		return r, true, nil
	case "error":
		r.Err = location.FromCode(m.Code, m.Message)
		return r, true, nil
	default:
		return location.Reading{}, false, nil
	}
}

// LocationSubscriber is a location.Sampler fed by device reports on MQTT.
type LocationSubscriber struct {
	broker   string
	clientID string
	topic    string
	logEvery *rate.Sometimes
}

// NewLocationSubscriber creates a subscriber for topic, which may contain
// wildcards. An empty topic means DefaultLocationTopic.
func NewLocationSubscriber(broker, clientID, topic string) *LocationSubscriber {
	if topic == "" {
		topic = DefaultLocationTopic
	}
	return &LocationSubscriber{
		broker:   broker,
		clientID: clientID,
		topic:    topic,
		logEvery: &rate.Sometimes{First: 3, Interval: time.Minute},
	}
}

// Topic returns the subscription filter.
func (s *LocationSubscriber) Topic() string {
	return s.topic
}

// Run subscribes and delivers readings until ctx is done. The subscription
// is renewed on every reconnect. Messages are handled in arrival order.
func (s *LocationSubscriber) Run(ctx context.Context, deliver func(location.Reading)) error {
	handler := func(_ paho.Client, m paho.Message) {
		s.handle(m.Topic(), m.Payload(), deliver)
	}

	opts := clientOptions(s.broker, s.clientID).
		SetOrderMatters(true).
		SetOnConnectHandler(func(c paho.Client) {
			token := c.Subscribe(s.topic, 1, handler)
			go func() {
				if !token.WaitTimeout(publishTimeout) {
					log.Printf("mqtt: subscribe %s: timeout", s.topic)
					return
				}
				if err := token.Error(); err != nil {
					log.Printf("mqtt: subscribe %s: %v", s.topic, err)
					return
				}
				log.Printf("mqtt: subscribed to %s", s.topic)
			}()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: location subscription lost: %v", err)
		})

	client := paho.NewClient(opts)
	client.Connect()
	defer client.Disconnect(250)

	<-ctx.Done()
	return nil
}

func (s *LocationSubscriber) handle(topic string, payload []byte, deliver func(location.Reading)) {
	r, ok, err := ParseOwnTracks(topic, payload, time.Now().UTC())
	if err != nil {
		s.logEvery.Do(func() {
			log.Printf("mqtt: dropping message on %s: %v", topic, err)
		})
		return
	}
	if ok {
		deliver(r)
	}
}
