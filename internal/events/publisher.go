package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/akylbek/ticketing-system/ticketing-service/internal/models"
)

const (
	TopicPaymentStateChanged   = "payment.state.changed"
	TopicTicketIssued          = "ticket.issued"
	TopicVerificationRequested = "payment.verification.requested"
)

// MessageWriter is the subset of *kafka.Writer the publisher uses. The writer
// must be created without a Topic so each message can name its own.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// DefaultPublishTimeout bounds how long a request waits on the broker.
const DefaultPublishTimeout = 2 * time.Second

type Publisher struct {
	writer  MessageWriter
	timeout time.Duration
}

func NewPublisher(writer MessageWriter, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &Publisher{writer: writer, timeout: timeout}
}

func (p *Publisher) PaymentStateChanged(ctx context.Context, e models.PaymentStateEvent) error {
	return p.publish(ctx, TopicPaymentStateChanged, e.Reference, e)
}

func (p *Publisher) TicketIssued(ctx context.Context, e models.TicketIssuedEvent) error {
	return p.publish(ctx, TopicTicketIssued, e.Reference, e)
}

func (p *Publisher) publish(ctx context.Context, topic, key string, v any) error {
	value, err := json.Marshal(v)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
}
