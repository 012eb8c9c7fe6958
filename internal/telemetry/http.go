package telemetry

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPPublisher posts telemetry records as JSON to a collector URL.
type HTTPPublisher struct {
	url    string
	client *http.Client
}

// NewHTTPPublisher creates a publisher for url. A nil client gets a 2s timeout.
func NewHTTPPublisher(url string, client *http.Client) *HTTPPublisher {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}
	return &HTTPPublisher{url: url, client: client}
}

// Publish posts one record.
func (p *HTTPPublisher) Publish(pl Payload) error {
	body, err := FormatPayload(pl)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	resp, err := p.client.Post(p.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("post: collector returned %s", resp.Status)
	}
	return nil
}

// PublishSystem is a no-op; the collector only keeps telemetry.
func (p *HTTPPublisher) PublishSystem(SystemEvent) error { return nil }

// Close releases idle connections.
func (p *HTTPPublisher) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
