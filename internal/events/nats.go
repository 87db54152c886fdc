// Package events publishes marketplace events on NATS for live listeners
// such as websocket broadcasters.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"

	"github.com/sharon232323/bidmate/internal/notify"
)

// SubjectPrefix is followed by the item id.
const SubjectPrefix = "market.events."

// Subject returns the subject events of an item are published on.
func Subject(ev notify.Event) string {
	return SubjectPrefix + ev.ItemID.String()
}

// publisher is the part of *nats.Conn we use.
type publisher interface {
	Publish(subj string, data []byte) error
}

// NATSPublisher is a notify.Notifier publishing JSON events.
type NATSPublisher struct {
	conn publisher
}

// Connect dials NATS and returns a publisher together with the connection
// so the caller can drain it on shutdown.
func Connect(url string) (*NATSPublisher, *nats.Conn, error) {
	conn, err := nats.Connect(url, nats.Name("bidmate-api"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Printf("Connected to NATS at %s", conn.ConnectedUrl())
	return NewNATSPublisher(conn), conn, nil
}

// NewNATSPublisher wraps an open connection.
func NewNATSPublisher(conn publisher) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

// Notify publishes ev. Publish only buffers, so it does not wait on the server.
func (p *NATSPublisher) Notify(_ context.Context, ev notify.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", ev.EventID, err)
	}
	subject := Subject(ev)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", subject, err)
	}
	return nil
}
