// Package events publishes domain events to downstream consumers.
// Delivery and retry semantics are the broker's problem; this package
// only guarantees that a publish either reached the broker or returned
// an error.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event type names carried in the envelope meta.
const (
	TypeChatCreated    = "chat.created.v1"
	TypeMessageCreated = "message.created.v1"
)

// Meta describes an event instance.
type Meta struct {
	CorrelationID *string   `json:"correlation_id,omitempty"`
	ID            string    `json:"id"`
	Producer      *string   `json:"producer,omitempty"`
	Time          time.Time `json:"time"`
	Type          string    `json:"type"`
}

// Envelope wraps an event payload with its meta.
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// NewEnvelope builds an envelope for eventType with a fresh id.
func NewEnvelope(eventType, producer string, data any) Envelope {
	env := Envelope{
		Meta: Meta{
			ID:   uuid.NewString(),
			Time: time.Now().UTC(),
			Type: eventType,
		},
		Data: data,
	}
	if producer != "" {
		env.Meta.Producer = &producer
	}
	return env
}

// Publisher sends envelopes keyed by a routing key.
type Publisher interface {
	Publish(ctx context.Context, key string, env Envelope) error
	Close() error
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct {
	log *slog.Logger
}

// NewNoop builds a NoopPublisher.
func NewNoop(logger *slog.Logger) Publisher {
	return &NoopPublisher{log: logger}
}

func (p *NoopPublisher) Publish(ctx context.Context, key string, env Envelope) error {
	p.log.Debug("event dropped, no broker configured",
		slog.String("key", key),
		slog.String("type", env.Meta.Type),
	)
	return nil
}

func (p *NoopPublisher) Close() error { return nil }
