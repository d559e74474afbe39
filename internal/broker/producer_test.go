package broker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
)

type captureWriter struct {
	messages []kafka.Message
	closed   bool
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

func TestProducerDisabledWithoutBrokers(t *testing.T) {
	p := NewProducer(nil, "topic", nil)
	if p.Enabled() {
		t.Fatal("producer without brokers must be disabled")
	}
	if err := p.HandleEvent(context.Background(), events.Event{}); err != nil {
		t.Fatalf("disabled producer returned %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestProducerExportsSubscribedEvents(t *testing.T) {
	w := &captureWriter{}
	p := &Producer{writer: w}
	d := events.NewInMemoryDispatcher(nil)
	p.Register(d)

	ticket := &domain.Ticket{ID: "t1", ExternalKey: "TCK-1", ClientID: "u1", Status: domain.TicketStatusOpen}
	actor := domain.Subject{Type: domain.SubjectTypeUser, ID: "u1"}
	_ = d.Publish(context.Background(), events.NewTicketEvent(events.EventTicketCreated, actor, ticket, nil))
	_ = d.Publish(context.Background(), events.NewTicketEvent(events.EventTicketCancelled, actor, ticket, events.TicketCancelledPayload{Reason: "dup"}))

	if len(w.messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(w.messages))
	}
	msg := w.messages[1]
	if string(msg.Key) != "t1" {
		t.Fatalf("unexpected key %q", msg.Key)
	}
	var body map[string]any
	if err := json.Unmarshal(msg.Value, &body); err != nil {
		t.Fatal(err)
	}
	if body["type"] != string(events.EventTicketCancelled) {
		t.Fatalf("unexpected type %v", body["type"])
	}
	snapshot, _ := body["ticket"].(map[string]any)
	if snapshot["external_key"] != "TCK-1" || snapshot["status"] != "open" {
		t.Fatalf("unexpected snapshot %v", snapshot)
	}
	payload, _ := body["payload"].(map[string]any)
	if payload["reason"] != "dup" {
		t.Fatalf("unexpected payload %v", payload)
	}

	_ = p.Close()
	if !w.closed {
		t.Fatal("Close should close the writer")
	}
}
