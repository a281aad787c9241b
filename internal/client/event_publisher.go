package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// EventPublisher publishes procurement lifecycle events to NATS for
// consumption by downstream services (notifications, reporting).
//
// Subject convention: notifications.procurement.<event_type>
// Event types: request_approved, request_rejected, order_received
//
// All publish operations are non-fatal. Errors are logged but never
// propagated to the caller, so event delivery failures never interrupt
// procurement operations.
type EventPublisher struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// Event is the JSON schema published to NATS.
type Event struct {
	EventType  string         `json:"event_type"`
	ResourceID string         `json:"resource_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// NewEventPublisher creates a publisher backed by the given NATS connection.
// A nil connection yields a no-op publisher.
func NewEventPublisher(conn *nats.Conn, log zerolog.Logger) *EventPublisher {
	return &EventPublisher{conn: conn, log: log}
}

// PublishEvent publishes a procurement event.
// Subject: notifications.procurement.<eventType>
func (p *EventPublisher) PublishEvent(ctx context.Context, eventType, resourceID string, payload map[string]any) {
	if p.conn == nil {
		return
	}

	event := &Event{
		EventType:  eventType,
		ResourceID: resourceID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("events: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.procurement.%s", eventType)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("resource_id", resourceID).
			Msg("events: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("resource_id", resourceID).
		Msg("events: event published")
}
