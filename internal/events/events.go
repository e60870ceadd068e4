// Package events publishes domain events for downstream collaborators
// (reviews, reporting) on a RabbitMQ topic exchange.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Routing keys.
const (
	RequestCreated   = "requests.created.v1"
	RequestUpdated   = "requests.updated.v1"
	RequestAccepted  = "requests.accepted.v1"
	RequestCancelled = "requests.cancelled.v1"
	RequestExpired   = "requests.expired.v1"
	BookingUpdated   = "bookings.updated.v1"
	BookingCompleted = "bookings.completed.v1"
)

const producer = "handyhub"

type Meta struct {
	// Trace / request correlation ID
	CorrelationID *string `json:"correlation_id,omitempty"`
	// Unique event ID
	ID       string    `json:"id"`
	Producer *string   `json:"producer,omitempty"`
	Time     time.Time `json:"time"`
	// Event name and version, e.g. requests.accepted.v1
	Type string `json:"type"`
}

type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// NewEnvelope wraps data for routing key typ.
func NewEnvelope(typ string, data any) Envelope {
	p := producer
	return Envelope{
		Meta: Meta{ID: uuid.NewString(), Producer: &p, Time: time.Now().UTC(), Type: typ},
		Data: data,
	}
}

type Publisher interface {
	Publish(ctx context.Context, key string, msg Envelope) error
	Close() error
}

// Noop discards every event. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, string, Envelope) error { return nil }
func (Noop) Close() error                                    { return nil }
