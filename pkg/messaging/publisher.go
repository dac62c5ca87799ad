package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/medflow/pharmacy-inventory/pkg/actor"
	"github.com/medflow/pharmacy-inventory/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

// EventPublisher is implemented by Publisher and by test doubles
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data any) error
}

// Publisher handles publishing events to RabbitMQ
type Publisher struct {
	rmq      *RabbitMQ
	exchange string
	source   string
	logger   *logger.Logger
	mu       sync.Mutex
}

// NewPublisher creates a new publisher for the given exchange
func NewPublisher(rmq *RabbitMQ, exchange, source string, log *logger.Logger) (*Publisher, error) {
	if err := rmq.DeclareExchange(exchange); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &Publisher{
		rmq:      rmq,
		exchange: exchange,
		source:   source,
		logger:   log,
	}, nil
}

// Publish publishes an event to the exchange, using the event type as the
// routing key. A closed channel triggers one reconnect and a single retry.
func (p *Publisher) Publish(ctx context.Context, eventType string, data any) error {
	correlationID := getCorrelationID(ctx)

	event, err := NewEvent(eventType, p.source, correlationID, actor.IDFromContext(ctx), data)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     event.ID,
		CorrelationId: correlationID,
		Timestamp:     event.Timestamp,
		Type:          eventType,
		Body:          body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.rmq.Channel().PublishWithContext(ctx, p.exchange, eventType, false, false, msg)
	if err == amqp.ErrClosed {
		if rerr := p.rmq.Reconnect(ctx); rerr != nil {
			return fmt.Errorf("failed to publish event: %w", rerr)
		}
		if rerr := p.rmq.DeclareExchange(p.exchange); rerr != nil {
			return fmt.Errorf("failed to redeclare exchange %s: %w", p.exchange, rerr)
		}
		err = p.rmq.Channel().PublishWithContext(ctx, p.exchange, eventType, false, false, msg)
	}
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug().
		Str("event_type", eventType).
		Str("event_id", event.ID).
		Str("correlation_id", correlationID).
		Msg("event published")

	return nil
}

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// WithCorrelationID adds a correlation ID to the context
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

func getCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}
