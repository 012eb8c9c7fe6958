// Package telemetry reports the station state to remote sinks.
// Delivery is best effort: a failed report is dropped, never queued.
package telemetry

import (
	"encoding/json"
	"errors"
	"log"
	"math"
	"time"

	"github.com/sweeney/t12-station/internal/status"
)

// Default MQTT topics.
const (
	Topic       = "t12/station/telemetry"
	TopicSystem = "t12/station/system"
)

// Lifecycle event names.
const (
	EventStartup  = "STARTUP"
	EventShutdown = "SHUTDOWN"
	EventOffline  = "OFFLINE"
)

// ErrNotConnected is returned when a publish is attempted without a broker
// connection.
var ErrNotConnected = errors.New("not connected")

// Payload is the periodic telemetry record.
type Payload struct {
	Ambient float64 `json:"ambient"`
	Tip     float64 `json:"tip"`
	Voltage float64 `json:"voltage"`
	PWM     int     `json:"pwm"`
	Power   float64 `json:"power"`
	Status  string  `json:"status"`
}

// FromSnapshot builds the telemetry record for a snapshot.
func FromSnapshot(snap status.Snapshot) Payload {
	return Payload{
		Ambient: float64(snap.Reading.Ambient),
		Tip:     float64(snap.Reading.Tip),
		Voltage: round2(snap.Reading.SupplyVolts),
		PWM:     snap.Drive,
		Power:   round2(snap.Power()),
		Status:  snap.Status(),
	}
}

// FormatPayload creates the JSON body for a telemetry record.
func FormatPayload(p Payload) ([]byte, error) {
	return json.Marshal(p)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Publisher sends telemetry to one sink.
type Publisher interface {
	// Publish sends a telemetry record.
	// Returns error if publishing fails (should not crash the process).
	Publish(p Payload) error

	// PublishSystem sends a lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close releases the sink.
	Close() error
}

// ConnectionStatus reports whether a broker connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a lifecycle event (startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string
	RawPayload []byte // pre-formatted JSON; returned as is by FormatSystemPayload
	Retained   bool
}

// SystemPayload is the body of a lifecycle event without a status snapshot
// (the OFFLINE will).
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the lifecycle event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON body for a lifecycle event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	inner := SystemPayloadInner{Event: event.Event, Reason: event.Reason}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}

// SnapshotEvent builds a lifecycle event carrying the full status snapshot.
func SnapshotEvent(snap status.Snapshot, event, reason string) SystemEvent {
	return SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
}

// Reporter publishes snapshots and logs failures once per failure streak.
type Reporter struct {
	pub     Publisher
	failing bool
	sent    uint64
	dropped uint64
}

// NewReporter creates a Reporter over pub.
func NewReporter(pub Publisher) *Reporter {
	return &Reporter{pub: pub}
}

// Report publishes the telemetry record for snap. A failure drops the record.
func (r *Reporter) Report(snap status.Snapshot) error {
	err := r.pub.Publish(FromSnapshot(snap))
	if err != nil {
		r.dropped++
		if !r.failing {
			log.Printf("telemetry: publish failed, dropping reports: %v", err)
			r.failing = true
		}
		return err
	}
	r.sent++
	if r.failing {
		log.Printf("telemetry: publishing again after %d dropped", r.dropped)
		r.failing = false
	}
	return nil
}

// Counts returns the number of sent and dropped reports.
func (r *Reporter) Counts() (sent, dropped uint64) {
	return r.sent, r.dropped
}
