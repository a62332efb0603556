package picking

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// MessageWriter is the part of *kafka.Writer used by KafkaPublisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds a writer for the picking topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: false,
	}
}

// KafkaPublisher publishes picking events as JSON, keyed by company so one
// company's events keep their order.
type KafkaPublisher struct {
	writer MessageWriter
}

// NewKafkaPublisher wraps writer.
func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// PublishPickingCreated implements EventPublisher.
func (p *KafkaPublisher) PublishPickingCreated(ctx context.Context, evt PickingCreatedEvent) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("picking: encode event: %w", err)
	}
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	headers := []kafka.Header{{Key: "event_type", Value: []byte("picking.created")}}
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	msg := kafka.Message{
		Key:     []byte(strconv.FormatInt(evt.CompanyID, 10)),
		Value:   value,
		Headers: headers,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("picking: publish %s: %w", evt.Reference, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
