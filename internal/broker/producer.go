package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TicketSnapshot is the exported view of the ticket after the change.
type TicketSnapshot struct {
	ExternalKey  string                `json:"external_key"`
	ClientID     string                `json:"client_id"`
	TechnicianID *string               `json:"technician_id,omitempty"`
	Status       domain.TicketStatus   `json:"status"`
	Priority     domain.TicketPriority `json:"priority"`
	Category     domain.TicketCategory `json:"category"`
}

type exportedEvent struct {
	events.Event
	Ticket *TicketSnapshot `json:"ticket,omitempty"`
}

// Producer exports ticket events to a Kafka topic, keyed by ticket id so a
// ticket's events stay ordered within a partition. Without brokers every
// method is a no-op.
type Producer struct {
	writer messageWriter
	logger *zap.Logger
}

// NewProducer creates a producer. Empty brokers or topic disables export.
func NewProducer(brokers []string, topic string, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(brokers) == 0 || topic == "" {
		return &Producer{logger: logger}
	}
	return &Producer{
		logger: logger,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			Async:        true,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					logger.Warn("kafka: ticket event export failed", zap.Int("messages", len(messages)), zap.Error(err))
				}
			},
		},
	}
}

// Enabled reports whether events are exported.
func (p *Producer) Enabled() bool {
	return p.writer != nil
}

// Register subscribes the producer to every ticket event.
func (p *Producer) Register(dispatcher events.Dispatcher) {
	if !p.Enabled() {
		return
	}
	events.SubscribeAll(dispatcher, p.HandleEvent)
}

// HandleEvent writes one event. Failures are logged by the caller's dispatcher.
func (p *Producer) HandleEvent(ctx context.Context, event events.Event) error {
	if p.writer == nil {
		return nil
	}
	body, err := json.Marshal(toExported(event))
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TicketID),
		Value: body,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	})
}

// Close flushes pending messages.
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func toExported(event events.Event) exportedEvent {
	out := exportedEvent{Event: event}
	if t := event.Ticket; t != nil {
		out.Ticket = &TicketSnapshot{
			ExternalKey:  t.ExternalKey,
			ClientID:     t.ClientID,
			TechnicianID: t.TechnicianID,
			Status:       t.Status,
			Priority:     t.Priority,
			Category:     t.Category,
		}
	}
	return out
}
