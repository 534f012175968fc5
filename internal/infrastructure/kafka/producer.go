// Package kafka publica los eventos del outbox en un tópico de Kafka.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// Config conexión del productor.
type Config struct {
	Brokers      []string
	Topic        string
	Source       string // ce-source de los mensajes
	BatchTimeout time.Duration
	RequiredAcks int // -1 todos, 1 líder, 0 ninguno
}

// MessageWriter lo que el productor necesita de *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publica un evento de outbox por mensaje. La key es bodega:producto, así los
// eventos de un mismo saldo caen en la misma partición y conservan el orden.
type Producer struct {
	writer MessageWriter
	source string
}

// NewProducer crea el writer síncrono del tópico.
func NewProducer(cfg Config) *Producer {
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	return NewProducerWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Async:        false,
	}, cfg.Source)
}

// NewProducerWithWriter permite inyectar el writer (tests).
func NewProducerWithWriter(w MessageWriter, source string) *Producer {
	if source == "" {
		source = "stock-ledger"
	}
	return &Producer{writer: w, source: source}
}

// Publish escribe el evento y espera el ack del broker.
func (p *Producer) Publish(ctx context.Context, e *entity.OutboxEvent) error {
	if err := p.writer.WriteMessages(ctx, p.message(e)); err != nil {
		return fmt.Errorf("publish event %s: %w", e.ID, err)
	}
	return nil
}

func (p *Producer) message(e *entity.OutboxEvent) kafka.Message {
	return kafka.Message{
		Key:   []byte(e.AggregateID),
		Value: e.Payload,
		Headers: []kafka.Header{
			{Key: "ce-specversion", Value: []byte("1.0")},
			{Key: "ce-id", Value: []byte(e.ID)},
			{Key: "ce-type", Value: []byte(e.EventType)},
			{Key: "ce-source", Value: []byte(p.source)},
			{Key: "ce-time", Value: []byte(e.CreatedAt.UTC().Format(time.RFC3339Nano))},
			{Key: "ce-tenantid", Value: []byte(e.TenantID)},
			{Key: "content-type", Value: []byte("application/json")},
		},
		Time: e.CreatedAt,
	}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
