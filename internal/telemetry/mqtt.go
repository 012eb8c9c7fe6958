package telemetry

import (
	"fmt"
	"log"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig selects the broker and topics.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	Topic       string
	SystemTopic string
}

// MQTTPublisher publishes to an MQTT broker.
type MQTTPublisher struct {
	client      paho.Client
	topic       string
	systemTopic string
}

// NewMQTTPublisher creates a publisher and starts connecting in the
// background. Publishes fail with ErrNotConnected until the broker is
// reachable; the client reconnects on its own.
func NewMQTTPublisher(cfg MQTTConfig) *MQTTPublisher {
	if cfg.ClientID == "" {
		cfg.ClientID = "t12-station"
	}
	if cfg.Topic == "" {
		cfg.Topic = Topic
	}
	if cfg.SystemTopic == "" {
		cfg.SystemTopic = TopicSystem
	}

	will, _ := FormatSystemPayload(SystemEvent{Event: EventOffline, Reason: "connection lost"})

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(cfg.SystemTopic, string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) {
			log.Printf("mqtt: connected to %s", cfg.Broker)
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	client := paho.NewClient(opts)
	client.Connect()

	return &MQTTPublisher{
		client:      client,
		topic:       cfg.Topic,
		systemTopic: cfg.SystemTopic,
	}
}

// Publish sends a telemetry record.
func (p *MQTTPublisher) Publish(pl Payload) error {
	if !p.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	payload, err := FormatPayload(pl)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	token := p.client.Publish(p.topic, 0, false, payload)
	if !token.WaitTimeout(time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishSystem sends a lifecycle event.
func (p *MQTTPublisher) PublishSystem(event SystemEvent) error {
	if !p.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 so startup and shutdown reach the broker
	token := p.client.Publish(p.systemTopic, 1, event.Retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish system timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *MQTTPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
