package event

import (
	"context"

	"github.com/viant/phasegate/internal/clock"
	"github.com/viant/phasegate/service/messaging"
)

// Publisher publishes engine events to a queue. A nil publisher is a valid
// no-op, so wiring an event queue stays entirely optional.
type Publisher struct {
	sessionID string
	queue     messaging.Queue[Event]
}

// NewPublisher creates a publisher bound to a session.
func NewPublisher(sessionID string, queue messaging.Queue[Event]) *Publisher {
	return &Publisher{sessionID: sessionID, queue: queue}
}

// Publish emits one event. Publish failures are returned but are never fatal
// to the triggering operation.
func (p *Publisher) Publish(ctx context.Context, topic Topic, data interface{}) error {
	if p == nil || p.queue == nil {
		return nil
	}
	return p.queue.Publish(ctx, &Event{
		Topic:     topic,
		SessionID: p.sessionID,
		Data:      data,
		CreatedAt: clock.Now(),
	})
}

// Consume retrieves and acknowledges the next event, for tests and pull
// based observers.
func (p *Publisher) Consume(ctx context.Context) (*Event, error) {
	msg, err := p.queue.Consume(ctx)
	if err != nil {
		return nil, err
	}
	if err = msg.Ack(); err != nil {
		return nil, err
	}
	return msg.T(), nil
}
