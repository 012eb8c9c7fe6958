package telemetry

import "go.uber.org/multierr"

// Multi fans a report out to several sinks. Every sink is tried; the errors
// are combined.
type Multi []Publisher

// Publish sends p to every sink.
func (m Multi) Publish(p Payload) error {
	var err error
	for _, pub := range m {
		err = multierr.Append(err, pub.Publish(p))
	}
	return err
}

// PublishSystem sends event to every sink.
func (m Multi) PublishSystem(event SystemEvent) error {
	var err error
	for _, pub := range m {
		err = multierr.Append(err, pub.PublishSystem(event))
	}
	return err
}

// IsConnected reports whether any sink with a connection is connected.
// Sinks without a connection do not count.
func (m Multi) IsConnected() bool {
	for _, pub := range m {
		if cs, ok := pub.(ConnectionStatus); ok && cs.IsConnected() {
			return true
		}
	}
	return false
}

// Close closes every sink.
func (m Multi) Close() error {
	var err error
	for _, pub := range m {
		err = multierr.Append(err, pub.Close())
	}
	return err
}

// Nop discards everything. It stands in when no sink is configured.
type Nop struct{}

func (Nop) Publish(Payload) error           { return nil }
func (Nop) PublishSystem(SystemEvent) error { return nil }
func (Nop) Close() error                    { return nil }
