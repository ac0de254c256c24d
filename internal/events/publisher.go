package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Publisher emits lifecycle events. Publishing is best-effort and never
// blocks the request path; a commerce transaction that already committed is
// not rolled back because an event could not be delivered.
type Publisher interface {
	Publish(ctx context.Context, eventType, entityID string, payload any)
	Close() error
}

// NopPublisher discards events; used when Kafka is disabled and in tests.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, any) {}
func (NopPublisher) Close() error                                 { return nil }

// KafkaPublisher publishes envelopes to a single topic through an async
// writer fed by a buffered inbox, so a slow broker back-pressures into
// dropped events rather than blocked requests.
type KafkaPublisher struct {
	writer *kafka.Writer
	inbox  chan kafka.Message
	done   chan struct{}
	logger zerolog.Logger
}

// NewKafkaPublisher creates a publisher and starts its delivery loop.
func NewKafkaPublisher(brokers []string, topic string, logger zerolog.Logger) *KafkaPublisher {
	p := &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 50 * time.Millisecond,
		},
		inbox:  make(chan kafka.Message, 256),
		done:   make(chan struct{}),
		logger: logger.With().Str("component", "event-publisher").Logger(),
	}

	go p.deliver()
	return p
}

func (p *KafkaPublisher) deliver() {
	defer close(p.done)
	for m := range p.inbox {
		if err := p.writer.WriteMessages(context.Background(), m); err != nil {
			p.logger.Error().Err(err).Str("key", string(m.Key)).Msg("failed to publish event")
		}
	}
}

// Publish enqueues one event; the envelope is dropped (and logged) when the
// inbox is full or the payload cannot be marshalled.
func (p *KafkaPublisher) Publish(ctx context.Context, eventType, entityID string, payload any) {
	env, err := NewEnvelope(eventType, entityID, payload)
	if err != nil {
		p.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to build event envelope")
		return
	}

	value, err := json.Marshal(env)
	if err != nil {
		p.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event envelope")
		return
	}

	msg := kafka.Message{
		Key:   []byte(entityID),
		Value: value,
		Time:  env.OccurredAt,
	}

	select {
	case p.inbox <- msg:
	default:
		p.logger.Warn().
			Str("event_type", eventType).
			Str("entity_id", entityID).
			Msg("event inbox full, dropping event")
	}
}

// Close flushes queued events and shuts the writer down.
func (p *KafkaPublisher) Close() error {
	close(p.inbox)
	<-p.done
	return p.writer.Close()
}
